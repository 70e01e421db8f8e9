package models

import "testing"

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPendingUpload, false},
		{StatusQueued, false},
		{StatusTranscribing, false},
		{StatusRetryingTranscription, false},
		{StatusTranscribed, false},
		{StatusAnalyzing, false},
		{StatusCompleted, true},
		{StatusTranscriptionFailed, true},
		{StatusAnalysisFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal(%s) = %v, want %v", tt.status, got, tt.terminal)
			}
		})
	}
}

func TestStatus_CanTransitionTo(t *testing.T) {
	allowed := []struct {
		from, to Status
	}{
		{StatusPendingUpload, StatusUploading},
		{StatusUploading, StatusQueued},
		{StatusQueued, StatusReading},
		{StatusReading, StatusPreparingToSend},
		{StatusPreparingToSend, StatusTranscribing},
		{StatusTranscribing, StatusTranscribed},
		{StatusTranscribing, StatusRetryingTranscription},
		{StatusRetryingTranscription, StatusTranscribing},
		{StatusRetryingTranscription, StatusTranscriptionFailed},
		{StatusTranscribed, StatusAnalyzing},
		{StatusAnalyzing, StatusCompleted},
		{StatusAnalyzing, StatusAnalysisFailed},
		// Stage restart after partial completion.
		{StatusPreparingToSend, StatusReading},
		{StatusTranscribing, StatusReading},
		{StatusReading, StatusRetryingTranscription},
		// Re-invoked stage rewriting its current status.
		{StatusReading, StatusReading},
		{StatusAnalyzing, StatusAnalyzing},
	}
	for _, tt := range allowed {
		if !tt.from.CanTransitionTo(tt.to) {
			t.Errorf("expected %s -> %s to be permitted", tt.from, tt.to)
		}
	}

	denied := []struct {
		from, to Status
	}{
		{StatusQueued, StatusTranscribing},
		{StatusTranscribing, StatusCompleted},
		{StatusTranscribed, StatusCompleted},
		{StatusCompleted, StatusAnalyzing},
		{StatusCompleted, StatusCompleted},
		{StatusTranscriptionFailed, StatusTranscribing},
		{StatusAnalysisFailed, StatusAnalyzing},
		{StatusReading, StatusTranscribing},
	}
	for _, tt := range denied {
		if tt.from.CanTransitionTo(tt.to) {
			t.Errorf("expected %s -> %s to be rejected", tt.from, tt.to)
		}
	}
}

func TestStatus_TerminalStatesPermitNothing(t *testing.T) {
	all := []Status{
		StatusPendingUpload, StatusUploading, StatusQueued, StatusReading,
		StatusPreparingToSend, StatusTranscribing, StatusRetryingTranscription,
		StatusTranscribed, StatusAnalyzing, StatusCompleted,
		StatusTranscriptionFailed, StatusAnalysisFailed,
	}
	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			if from.CanTransitionTo(to) {
				t.Errorf("terminal %s permits transition to %s", from, to)
			}
		}
	}
}

func TestStatus_FailureStates(t *testing.T) {
	for _, s := range []Status{StatusRetryingTranscription, StatusTranscriptionFailed, StatusAnalysisFailed} {
		if !s.IsFailure() {
			t.Errorf("expected %s to be a failure status", s)
		}
	}
	for _, s := range []Status{StatusQueued, StatusTranscribed, StatusCompleted} {
		if s.IsFailure() {
			t.Errorf("expected %s to not be a failure status", s)
		}
	}
}

func TestStatus_Critical(t *testing.T) {
	if !StatusTranscriptionFailed.IsCritical() || !StatusAnalysisFailed.IsCritical() {
		t.Error("expected both failure terminals to be critical")
	}
	if StatusCompleted.IsCritical() {
		t.Error("Completed must not be critical")
	}
	if StatusRetryingTranscription.IsCritical() {
		t.Error("RetryingTranscription must not be critical")
	}
}

func TestStatus_IsValid(t *testing.T) {
	if !StatusQueued.IsValid() || !StatusCompleted.IsValid() {
		t.Error("known statuses must be valid")
	}
	if Status("Bogus").IsValid() {
		t.Error("unknown status must be invalid")
	}
}
