// Package postgres implements the record and profile stores on PostgreSQL.
// Conditional semantics map directly onto single statements: create-if-absent
// is INSERT .. ON CONFLICT DO NOTHING, update-if-exists is one UPDATE that
// sets status, timestamp, fields and error message together.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"callinsight/internal/models"
	"callinsight/internal/store"
)

// RecordStore implements store.RecordStore over a pgx pool.
type RecordStore struct {
	pool *pgxpool.Pool
}

// NewRecordStore creates a record store backed by the given pool.
func NewRecordStore(pool *pgxpool.Pool) *RecordStore {
	return &RecordStore{pool: pool}
}

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

const recordColumns = `call_id, status, s3_bucket, s3_object_key,
	upload_timestamp, last_updated_timestamp,
	transcription_result, analysis_result, error_message,
	transcription_id, analysis_id, metadata`

// CreateIfAbsent inserts the initial record. A conflicting call_id reports
// store.ErrAlreadyExists without touching the existing row.
func (r *RecordStore) CreateIfAbsent(ctx context.Context, rec models.CallRecord) error {
	if rec.LastUpdatedTimestamp.IsZero() {
		rec.LastUpdatedTimestamp = time.Now().UTC()
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO calls (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), $12)
		ON CONFLICT (call_id) DO NOTHING`,
		rec.CallID, string(rec.Status), rec.Source.Bucket, rec.Source.Key,
		rec.UploadTimestamp, rec.LastUpdatedTimestamp,
		rec.TranscriptionResult, rec.AnalysisResult, rec.ErrorMessage,
		rec.TranscriptionID, rec.AnalysisID, rec.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

// Get fetches one record by call id.
func (r *RecordStore) Get(ctx context.Context, callID string) (models.CallRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM calls WHERE call_id = $1`, callID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CallRecord{}, store.ErrNotFound
		}
		return models.CallRecord{}, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// UpdateFields applies status, timestamp, the supplied fields and the error
// message in one UPDATE. A nil errMsg clears error_message; result fields
// that are unset in fields keep their stored values, so retrying the same
// update is harmless.
func (r *RecordStore) UpdateFields(ctx context.Context, callID string, status models.Status, fields store.Fields, errMsg *string) (models.CallRecord, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE calls SET
			status = $2,
			last_updated_timestamp = GREATEST(last_updated_timestamp, now()),
			transcription_result = COALESCE($3, transcription_result),
			analysis_result = COALESCE($4, analysis_result),
			transcription_id = COALESCE(NULLIF($5, ''), transcription_id),
			analysis_id = COALESCE(NULLIF($6, ''), analysis_id),
			error_message = $7
		WHERE call_id = $1
		RETURNING `+recordColumns,
		callID, string(status),
		fields.TranscriptionResult, fields.AnalysisResult,
		fields.TranscriptionID, fields.AnalysisID,
		errMsg,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CallRecord{}, store.ErrNotFound
		}
		return models.CallRecord{}, fmt.Errorf("failed to update record: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (models.CallRecord, error) {
	var rec models.CallRecord
	var status string
	var errMsg, transcriptionID, analysisID *string
	err := row.Scan(
		&rec.CallID, &status, &rec.Source.Bucket, &rec.Source.Key,
		&rec.UploadTimestamp, &rec.LastUpdatedTimestamp,
		&rec.TranscriptionResult, &rec.AnalysisResult, &errMsg,
		&transcriptionID, &analysisID, &rec.Metadata,
	)
	if err != nil {
		return models.CallRecord{}, err
	}
	rec.Status = models.Status(status)
	if errMsg != nil {
		rec.ErrorMessage = *errMsg
	}
	if transcriptionID != nil {
		rec.TranscriptionID = *transcriptionID
	}
	if analysisID != nil {
		rec.AnalysisID = *analysisID
	}
	return rec, nil
}
