package status

import (
	"context"
	"errors"
	"strings"
	"testing"

	"callinsight/internal/models"
	"callinsight/internal/store"
	"callinsight/internal/store/memory"
)

type recordingNotifier struct {
	subjects []string
	messages []string
	fail     bool
}

func (n *recordingNotifier) Publish(_ context.Context, subject, message string) error {
	if n.fail {
		return errors.New("broker unavailable")
	}
	n.subjects = append(n.subjects, subject)
	n.messages = append(n.messages, message)
	return nil
}

func seed(t *testing.T, s *memory.Store, status models.Status) {
	t.Helper()
	err := s.CreateIfAbsent(context.Background(), models.CallRecord{
		CallID: "call-1",
		Status: status,
		Source: models.SourceLocation{Bucket: "calls", Key: "calls/1.aac"},
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func TestApply_WritesStatusAndError(t *testing.T) {
	s := memory.New()
	seed(t, s, models.StatusRetryingTranscription)
	tr := NewTracker(s, nil)

	rec, err := tr.Apply(context.Background(), models.StatusUpdate{
		CallID: "call-1",
		Status: models.StatusTranscriptionFailed,
		Error:  "provider returned 500",
	})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if rec.Status != models.StatusTranscriptionFailed {
		t.Errorf("expected TranscriptionFailed, got %s", rec.Status)
	}
	if rec.ErrorMessage != "provider returned 500" {
		t.Errorf("expected error message persisted, got %q", rec.ErrorMessage)
	}
}

func TestApply_ClearsErrorOnSuccessTransition(t *testing.T) {
	s := memory.New()
	seed(t, s, models.StatusRetryingTranscription)
	tr := NewTracker(s, nil)
	ctx := context.Background()

	msg := "first attempt failed"
	if _, err := s.UpdateFields(ctx, "call-1", models.StatusRetryingTranscription, store.Fields{}, &msg); err != nil {
		t.Fatalf("seed error failed: %v", err)
	}

	rec, err := tr.Apply(ctx, models.StatusUpdate{CallID: "call-1", Status: models.StatusTranscribing})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if rec.ErrorMessage != "" {
		t.Errorf("expected error cleared, got %q", rec.ErrorMessage)
	}
}

func TestApply_TerminalIsNoOp(t *testing.T) {
	s := memory.New()
	seed(t, s, models.StatusQueued)
	tr := NewTracker(s, nil)
	ctx := context.Background()

	walk := []models.Status{
		models.StatusReading, models.StatusPreparingToSend,
		models.StatusTranscribing, models.StatusTranscribed,
		models.StatusAnalyzing, models.StatusCompleted,
	}
	for _, st := range walk {
		if _, err := tr.Apply(ctx, models.StatusUpdate{CallID: "call-1", Status: st}); err != nil {
			t.Fatalf("walk to %s failed: %v", st, err)
		}
	}

	before, _ := s.Get(ctx, "call-1")
	rec, err := tr.Apply(ctx, models.StatusUpdate{
		CallID: "call-1",
		Status: models.StatusAnalyzing,
		Error:  "should not be written",
	})
	if err != nil {
		t.Fatalf("terminal re-apply must succeed, got %v", err)
	}
	if rec.Status != models.StatusCompleted {
		t.Errorf("expected record left at Completed, got %s", rec.Status)
	}
	after, _ := s.Get(ctx, "call-1")
	if !after.LastUpdatedTimestamp.Equal(before.LastUpdatedTimestamp) {
		t.Error("terminal no-op must not touch last_updated_timestamp")
	}
	if after.ErrorMessage != "" {
		t.Error("terminal no-op must not write an error message")
	}
}

func TestApply_RejectsImpermissibleEdge(t *testing.T) {
	s := memory.New()
	seed(t, s, models.StatusQueued)
	tr := NewTracker(s, nil)

	_, err := tr.Apply(context.Background(), models.StatusUpdate{
		CallID: "call-1",
		Status: models.StatusTranscribed,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	rec, _ := s.Get(context.Background(), "call-1")
	if rec.Status != models.StatusQueued {
		t.Errorf("record must be untouched after rejected transition, got %s", rec.Status)
	}
}

func TestApply_NotFound(t *testing.T) {
	tr := NewTracker(memory.New(), nil)
	_, err := tr.Apply(context.Background(), models.StatusUpdate{
		CallID: "missing",
		Status: models.StatusReading,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApply_AlertsOnCriticalStatus(t *testing.T) {
	s := memory.New()
	seed(t, s, models.StatusAnalyzing)
	n := &recordingNotifier{}
	tr := NewTracker(s, n)

	_, err := tr.Apply(context.Background(), models.StatusUpdate{
		CallID: "call-1",
		Status: models.StatusAnalysisFailed,
		Error:  "llm unreachable",
	})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if len(n.subjects) != 1 {
		t.Fatalf("expected one alert, got %d", len(n.subjects))
	}
	if !strings.Contains(n.subjects[0], "AnalysisFailed") {
		t.Errorf("alert subject should name the status: %q", n.subjects[0])
	}
	if !strings.Contains(n.messages[0], "call-1") {
		t.Errorf("alert message should name the call: %q", n.messages[0])
	}
}

func TestApply_NoAlertOnNonCriticalError(t *testing.T) {
	s := memory.New()
	seed(t, s, models.StatusTranscribing)
	n := &recordingNotifier{}
	tr := NewTracker(s, n)

	_, err := tr.Apply(context.Background(), models.StatusUpdate{
		CallID: "call-1",
		Status: models.StatusRetryingTranscription,
		Error:  "provider timeout",
	})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if len(n.subjects) != 0 {
		t.Errorf("expected no alert for non-critical status, got %v", n.subjects)
	}
}

func TestApply_NotifierFailureIsSwallowed(t *testing.T) {
	s := memory.New()
	seed(t, s, models.StatusRetryingTranscription)
	tr := NewTracker(s, &recordingNotifier{fail: true})

	rec, err := tr.Apply(context.Background(), models.StatusUpdate{
		CallID: "call-1",
		Status: models.StatusTranscriptionFailed,
		Error:  "provider returned 500",
	})
	if err != nil {
		t.Fatalf("notifier failure must not fail the status write: %v", err)
	}
	if rec.Status != models.StatusTranscriptionFailed {
		t.Errorf("status write must survive notifier failure, got %s", rec.Status)
	}
}

func TestApply_PersistsProviderIdentifiers(t *testing.T) {
	s := memory.New()
	seed(t, s, models.StatusQueued)
	tr := NewTracker(s, nil)

	rec, err := tr.Apply(context.Background(), models.StatusUpdate{
		CallID:          "call-1",
		Status:          models.StatusReading,
		TranscriptionID: "tr-42",
	})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if rec.TranscriptionID != "tr-42" {
		t.Errorf("expected transcription id persisted, got %q", rec.TranscriptionID)
	}
}
