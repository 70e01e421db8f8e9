// Package status implements the shared status-transition writer. Every
// stage routes its record transitions through the Tracker, and the external
// orchestrator invokes it directly between stages to record outcomes.
package status

import (
	"context"
	"errors"
	"fmt"

	"callinsight/internal/alerts"
	"callinsight/internal/models"
	"callinsight/internal/observability/logging"
	"callinsight/internal/observability/metrics"
	"callinsight/internal/store"
)

// ErrInvalidTransition - the requested status is not reachable from the
// record's current status.
var ErrInvalidTransition = errors.New("status transition not permitted")

// Tracker writes status transitions, emits error metrics, and raises
// alerts for critical terminal failures. Metric and alert problems are
// logged and swallowed; they never fail or roll back the status write.
type Tracker struct {
	store    store.RecordStore
	notifier alerts.Notifier
	metrics  *metrics.Metrics
}

// NewTracker creates a tracker over the given store and alert notifier.
// notifier may be nil when alerting is not wired (tests, local runs).
func NewTracker(recordStore store.RecordStore, notifier alerts.Notifier) *Tracker {
	return &Tracker{
		store:    recordStore,
		notifier: notifier,
		metrics:  metrics.DefaultMetrics,
	}
}

// Apply performs a plain status transition, the orchestrator-facing write
// path: no result fields beyond the identifiers carried in upd.
func (t *Tracker) Apply(ctx context.Context, upd models.StatusUpdate) (models.CallRecord, error) {
	return t.Transition(ctx, upd, store.Fields{})
}

// Transition performs one conditional status write together with the
// supplied result fields.
//
// A record already in a terminal state is returned unchanged with no
// write: re-invoked stages must observe success, not an error, and must
// not disturb results or timestamps.
func (t *Tracker) Transition(ctx context.Context, upd models.StatusUpdate, fields store.Fields) (models.CallRecord, error) {
	logger := logging.WithCall(upd.CallID)

	if upd.CallID == "" || upd.Status == "" {
		return models.CallRecord{}, fmt.Errorf("status update requires call_id and status")
	}
	if !upd.Status.IsValid() {
		return models.CallRecord{}, fmt.Errorf("unknown status %q", upd.Status)
	}

	rec, err := t.store.Get(ctx, upd.CallID)
	if err != nil {
		return models.CallRecord{}, fmt.Errorf("failed to load record: %w", err)
	}

	if rec.Status.IsTerminal() {
		logger.Info().
			Str("status", rec.Status.String()).
			Str("requested", upd.Status.String()).
			Msg("Record already terminal, transition skipped")
		return rec, nil
	}

	if !rec.Status.CanTransitionTo(upd.Status) {
		return models.CallRecord{}, fmt.Errorf("%w: %s -> %s",
			ErrInvalidTransition, rec.Status, upd.Status)
	}

	if upd.TranscriptionID != "" {
		fields.TranscriptionID = upd.TranscriptionID
	}
	if upd.AnalysisID != "" {
		fields.AnalysisID = upd.AnalysisID
	}

	var errMsg *string
	if upd.Error != "" {
		errMsg = &upd.Error
	}

	rec, err = t.store.UpdateFields(ctx, upd.CallID, upd.Status, fields, errMsg)
	if err != nil {
		return models.CallRecord{}, fmt.Errorf("failed to write status %s: %w", upd.Status, err)
	}
	t.metrics.RecordStatusTransition(upd.Status.String())
	logger.Info().Str("status", upd.Status.String()).Msg("Status updated")

	if upd.Error != "" {
		t.reportError(ctx, upd)
	}

	return rec, nil
}

// reportError emits the error metric and, for critical terminal statuses,
// dispatches an alert. Best effort only.
func (t *Tracker) reportError(ctx context.Context, upd models.StatusUpdate) {
	kind := upd.ErrorKind
	if kind == "" {
		kind = "UnknownError"
	}
	t.metrics.RecordProcessingError(upd.Status.String(), kind)

	if !upd.Status.IsCritical() || t.notifier == nil {
		return
	}

	subject := fmt.Sprintf("CallInsight processing error: %s", upd.Status)
	message := fmt.Sprintf("Error processing call %s: %s", upd.CallID, upd.Error)
	if err := t.notifier.Publish(ctx, subject, message); err != nil {
		logger := logging.WithCall(upd.CallID)
		logger.Error().Err(err).Msg("Failed to dispatch alert")
		return
	}
	t.metrics.RecordAlert()
}
