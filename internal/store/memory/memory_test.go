package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"callinsight/internal/models"
	"callinsight/internal/store"
)

func newRecord(id string) models.CallRecord {
	return models.CallRecord{
		CallID: id,
		Status: models.StatusQueued,
		Source: models.SourceLocation{Bucket: "calls", Key: "calls/1.aac"},
		Metadata: map[string]string{
			"source_system": "ivr",
		},
	}
}

func TestCreateIfAbsent_Conflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateIfAbsent(ctx, newRecord("call-1")); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	err := s.CreateIfAbsent(ctx, newRecord("call-1"))
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	// The original record must not have been overwritten.
	rec, err := s.Get(ctx, "call-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if rec.Status != models.StatusQueued {
		t.Errorf("expected status Queued after conflict, got %s", rec.Status)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateFields_SetsAndClearsError(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.CreateIfAbsent(ctx, newRecord("call-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	msg := "provider returned 500"
	rec, err := s.UpdateFields(ctx, "call-1", models.StatusRetryingTranscription, store.Fields{}, &msg)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if rec.ErrorMessage != msg {
		t.Errorf("expected error message %q, got %q", msg, rec.ErrorMessage)
	}

	rec, err = s.UpdateFields(ctx, "call-1", models.StatusTranscribing, store.Fields{}, nil)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if rec.ErrorMessage != "" {
		t.Errorf("expected error cleared on successful transition, got %q", rec.ErrorMessage)
	}
}

func TestUpdateFields_NotFound(t *testing.T) {
	s := New()
	_, err := s.UpdateFields(context.Background(), "missing", models.StatusReading, store.Fields{}, nil)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateFields_SetsResultsAndIdentifiers(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.CreateIfAbsent(ctx, newRecord("call-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	payload := []byte(`{"text":"hello"}`)
	rec, err := s.UpdateFields(ctx, "call-1", models.StatusTranscribed, store.Fields{
		TranscriptionResult: payload,
		TranscriptionID:     "tr-9",
	}, nil)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if string(rec.TranscriptionResult) != string(payload) {
		t.Errorf("transcription result not persisted: %s", rec.TranscriptionResult)
	}
	if rec.TranscriptionID != "tr-9" {
		t.Errorf("transcription id not persisted: %s", rec.TranscriptionID)
	}

	rec, err = s.UpdateFields(ctx, "call-1", models.StatusCompleted, store.Fields{
		AnalysisResult: map[string]string{"summary": "short call"},
	}, nil)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if rec.AnalysisResult["summary"] != "short call" {
		t.Errorf("analysis result not persisted: %v", rec.AnalysisResult)
	}
	// Earlier fields survive updates that do not touch them.
	if string(rec.TranscriptionResult) != string(payload) {
		t.Error("transcription result lost by later update")
	}
}

func TestUpdateFields_TimestampMonotone(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.CreateIfAbsent(ctx, newRecord("call-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })
	rec, _ := s.UpdateFields(ctx, "call-1", models.StatusReading, store.Fields{}, nil)
	first := rec.LastUpdatedTimestamp

	// Clock going backwards must not move the timestamp backwards.
	s.SetClock(func() time.Time { return base.Add(-time.Hour) })
	rec, _ = s.UpdateFields(ctx, "call-1", models.StatusPreparingToSend, store.Fields{}, nil)
	if rec.LastUpdatedTimestamp.Before(first) {
		t.Errorf("timestamp moved backwards: %v -> %v", first, rec.LastUpdatedTimestamp)
	}
}

func TestGetProfile(t *testing.T) {
	s := New()
	_, err := s.GetProfile(context.Background(), "nope")
	if !errors.Is(err, store.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}

	s.PutProfile(models.AnalysisProfile{ID: "p1", Kind: models.ProfileSeparate})
	p, err := s.GetProfile(context.Background(), "p1")
	if err != nil {
		t.Fatalf("get profile failed: %v", err)
	}
	if p.ID != "p1" {
		t.Errorf("expected profile p1, got %s", p.ID)
	}
}
