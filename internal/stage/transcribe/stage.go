package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"callinsight/internal/models"
	"callinsight/internal/observability/logging"
	"callinsight/internal/observability/metrics"
	"callinsight/internal/secrets"
	"callinsight/internal/status"
	"callinsight/internal/storage"
	"callinsight/internal/store"
)

// Stage runs one transcription invocation for a call record.
type Stage struct {
	store    store.RecordStore
	tracker  *status.Tracker
	fetcher  storage.Fetcher
	client   Client
	secrets  secrets.Source
	apiKeyID string
	metrics  *metrics.Metrics
}

// NewStage wires the transcription stage.
func NewStage(recordStore store.RecordStore, tracker *status.Tracker, fetcher storage.Fetcher, client Client, secretSource secrets.Source, apiKeyID string) *Stage {
	return &Stage{
		store:    recordStore,
		tracker:  tracker,
		fetcher:  fetcher,
		client:   client,
		secrets:  secretSource,
		apiKeyID: apiKeyID,
		metrics:  metrics.DefaultMetrics,
	}
}

// Run executes the stage for one invocation. Re-invocation against a
// record already terminal, or already transcribed, is a no-op success.
// On a transcription failure the call is retried exactly once within
// this invocation; the second failure leaves the record at
// RetryingTranscription with the second error recorded and propagates,
// so the orchestrator can branch to failure handling.
func (s *Stage) Run(ctx context.Context, req models.StageRequest) (result models.StageResult, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordStage("transcribe", err, time.Since(start).Seconds()) }()

	if req.CallID == "" {
		return models.StageResult{}, fmt.Errorf("transcription requires call_id")
	}
	logger := logging.WithStage(req.CallID, "transcribe")

	rec, err := s.store.Get(ctx, req.CallID)
	if err != nil {
		return models.StageResult{}, fmt.Errorf("failed to load record: %w", err)
	}

	if rec.Status.IsTerminal() {
		logger.Info().Str("status", rec.Status.String()).Msg("Record already terminal, nothing to do")
		return models.SuccessResult(req.CallID), nil
	}
	if rec.Status == models.StatusTranscribed && len(rec.TranscriptionResult) > 0 {
		logger.Info().Msg("Record already transcribed, nothing to do")
		return models.SuccessResult(req.CallID), nil
	}

	bucket, key := req.Bucket, req.Key
	if bucket == "" || key == "" {
		bucket, key = rec.Source.Bucket, rec.Source.Key
	}
	if bucket == "" || key == "" {
		return models.StageResult{}, fmt.Errorf("transcription requires a source location")
	}

	if _, err := s.tracker.Apply(ctx, models.StatusUpdate{CallID: req.CallID, Status: models.StatusReading}); err != nil {
		return models.StageResult{}, err
	}

	apiKey, err := s.secrets.GetSecret(ctx, s.apiKeyID)
	if err != nil {
		return models.StageResult{}, s.fail(ctx, req.CallID, "CredentialError", err)
	}

	audio, err := s.fetcher.Fetch(ctx, bucket, key)
	if err != nil {
		return models.StageResult{}, s.fail(ctx, req.CallID, "AudioFetchError", err)
	}
	logger.Info().Int("bytes", len(audio)).Msg("Audio fetched")

	if _, err := s.tracker.Apply(ctx, models.StatusUpdate{CallID: req.CallID, Status: models.StatusPreparingToSend}); err != nil {
		return models.StageResult{}, err
	}
	if _, err := s.tracker.Apply(ctx, models.StatusUpdate{CallID: req.CallID, Status: models.StatusTranscribing}); err != nil {
		return models.StageResult{}, err
	}

	payload, err := s.transcribeWithRetry(ctx, req.CallID, apiKey, audio)
	if err != nil {
		return models.StageResult{}, err
	}

	upd := models.StatusUpdate{CallID: req.CallID, Status: models.StatusTranscribed}
	if _, err := s.tracker.Transition(ctx, upd, store.Fields{TranscriptionResult: payload}); err != nil {
		return models.StageResult{}, fmt.Errorf("failed to persist transcription: %w", err)
	}
	logger.Info().Msg("Transcription complete")

	return models.SuccessResult(req.CallID), nil
}

// transcribeWithRetry calls the provider, retrying exactly once after
// recording the first failure on the record. The second failure is left
// on the record at RetryingTranscription, replacing the first, and
// propagated.
func (s *Stage) transcribeWithRetry(ctx context.Context, callID, apiKey string, audio []byte) (json.RawMessage, error) {
	logger := logging.WithStage(callID, "transcribe")

	payload, firstErr := s.client.Transcribe(ctx, apiKey, audio)
	if firstErr == nil {
		return payload, nil
	}
	logger.Warn().Err(firstErr).Msg("Transcription attempt failed, retrying once")

	if _, err := s.tracker.Apply(ctx, models.StatusUpdate{
		CallID:    callID,
		Status:    models.StatusRetryingTranscription,
		Error:     firstErr.Error(),
		ErrorKind: "TranscriptionError",
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to record retry status")
		return nil, firstErr
	}
	s.metrics.RecordTranscriptionRetry()

	if _, err := s.tracker.Apply(ctx, models.StatusUpdate{CallID: callID, Status: models.StatusTranscribing}); err != nil {
		return nil, err
	}

	payload, secondErr := s.client.Transcribe(ctx, apiKey, audio)
	if secondErr == nil {
		return payload, nil
	}
	logger.Error().Err(secondErr).Msg("Transcription retry failed")

	// Best effort: leave the record at RetryingTranscription carrying
	// the second error so the orchestrator can branch; never mask the
	// provider error with a bookkeeping one.
	if _, err := s.tracker.Apply(ctx, models.StatusUpdate{
		CallID:    callID,
		Status:    models.StatusRetryingTranscription,
		Error:     secondErr.Error(),
		ErrorKind: "TranscriptionError",
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to record second transcription failure")
	}
	return nil, fmt.Errorf("transcription failed after retry: %w", secondErr)
}

// fail records a pre-transcription failure on the record best effort and
// returns the original error.
func (s *Stage) fail(ctx context.Context, callID, kind string, cause error) error {
	if _, err := s.tracker.Apply(ctx, models.StatusUpdate{
		CallID:    callID,
		Status:    models.StatusRetryingTranscription,
		Error:     cause.Error(),
		ErrorKind: kind,
	}); err != nil {
		logger := logging.WithStage(callID, "transcribe")
		logger.Error().Err(err).Msg("Failed to record stage failure")
	}
	return cause
}
