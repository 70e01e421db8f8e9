// Package store defines the durable record and profile stores the pipeline
// stages coordinate through. Implementations must provide conditional
// single-record writes: create-if-absent and update-if-exists.
package store

import (
	"context"
	"errors"

	"callinsight/internal/models"
)

var (
	// ErrNotFound - no record exists for the call id.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists - a record for the call id was created earlier.
	// Expected under at-least-once delivery; callers treat it as a skip,
	// not a failure.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrProfileNotFound - no analysis profile exists for the id.
	ErrProfileNotFound = errors.New("analysis profile not found")
)

// Fields carries the optional result columns an update may set alongside
// the status. Nil members are left untouched.
type Fields struct {
	TranscriptionResult []byte
	AnalysisResult      map[string]string
	TranscriptionID     string
	AnalysisID          string
}

// RecordStore is the durable map from call id to pipeline record.
//
// UpdateFields atomically sets status, last_updated_timestamp, the supplied
// fields, and either sets (errMsg != nil) or clears (errMsg == nil)
// error_message in the same write. Retrying an update with identical
// arguments after a transient failure must not corrupt state.
type RecordStore interface {
	CreateIfAbsent(ctx context.Context, rec models.CallRecord) error
	Get(ctx context.Context, callID string) (models.CallRecord, error)
	UpdateFields(ctx context.Context, callID string, status models.Status, fields Fields, errMsg *string) (models.CallRecord, error)
}

// ProfileStore resolves administrator-managed analysis profiles. The
// pipeline only reads profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, profileID string) (models.AnalysisProfile, error)
}
