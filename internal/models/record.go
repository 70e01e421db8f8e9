// Package models holds the pipeline domain types: the call record, its
// status state machine, and the stage invocation payloads exchanged with
// the external workflow orchestrator.
package models

import (
	"encoding/json"
	"time"
)

// Status is the processing state of a call record, stored as a string.
type Status string

const (
	// StatusPendingUpload - record created ahead of a browser upload.
	StatusPendingUpload Status = "PendingUpload"
	// StatusUploading - presigned upload in progress.
	StatusUploading Status = "Uploading"
	// StatusQueued - audio landed, pipeline not started yet.
	StatusQueued Status = "Queued"
	// StatusReading - transcription stage is fetching the audio object.
	StatusReading Status = "Reading"
	// StatusPreparingToSend - audio fetched, request being assembled.
	StatusPreparingToSend Status = "PreparingToSend"
	// StatusTranscribing - transcription provider call in flight.
	StatusTranscribing Status = "Transcribing"
	// StatusRetryingTranscription - first provider call failed, one
	// in-stage retry remains.
	StatusRetryingTranscription Status = "RetryingTranscription"
	// StatusTranscribed - provider payload persisted.
	StatusTranscribed Status = "Transcribed"
	// StatusAnalyzing - analysis provider calls in flight.
	StatusAnalyzing Status = "Analyzing"
	// StatusCompleted - analysis result persisted. Terminal.
	StatusCompleted Status = "Completed"
	// StatusTranscriptionFailed - retry exhausted. Terminal.
	StatusTranscriptionFailed Status = "TranscriptionFailed"
	// StatusAnalysisFailed - analysis failed. Terminal.
	StatusAnalysisFailed Status = "AnalysisFailed"
)

// transitions is the set of permitted edges. A status missing from the map
// is terminal. The orchestrator may re-invoke a stage after partial
// completion, so each mid-transcription status also permits falling back to
// Reading (stage restart) and failing over to RetryingTranscription.
var transitions = map[Status][]Status{
	StatusPendingUpload:         {StatusUploading},
	StatusUploading:             {StatusQueued},
	StatusQueued:                {StatusReading},
	StatusReading:               {StatusPreparingToSend, StatusRetryingTranscription},
	StatusPreparingToSend:       {StatusTranscribing, StatusReading, StatusRetryingTranscription},
	StatusTranscribing:          {StatusTranscribed, StatusRetryingTranscription, StatusReading},
	StatusRetryingTranscription: {StatusTranscribing, StatusTranscriptionFailed, StatusReading},
	StatusTranscribed:           {StatusAnalyzing},
	StatusAnalyzing:             {StatusCompleted, StatusAnalysisFailed},
}

// String returns the status as stored in the record.
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no stage may transition the record out of s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusTranscriptionFailed, StatusAnalysisFailed:
		return true
	}
	return false
}

// IsFailure reports whether s denotes a retry or failure state, i.e. the
// states in which error_message must be present.
func (s Status) IsFailure() bool {
	switch s {
	case StatusRetryingTranscription, StatusTranscriptionFailed, StatusAnalysisFailed:
		return true
	}
	return false
}

// IsCritical reports whether reaching s with an error should raise an
// operator alert.
func (s Status) IsCritical() bool {
	return s == StatusTranscriptionFailed || s == StatusAnalysisFailed
}

// IsValid reports whether s is one of the known status values.
func (s Status) IsValid() bool {
	if s.IsTerminal() {
		return true
	}
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether the edge s -> next is permitted.
// Terminal states permit nothing. Rewriting the current non-terminal
// status is permitted so a re-invoked stage can repeat its walk.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return !s.IsTerminal()
	}
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// SourceLocation points at the uploaded audio object. Immutable once the
// record is created.
type SourceLocation struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// CallRecord is the shared durable record one pipeline instance mutates as
// it moves through the stages. All cross-stage coordination happens through
// conditional writes of this record; stages never share memory.
type CallRecord struct {
	CallID               string            `json:"call_id"`
	Status               Status            `json:"status"`
	Source               SourceLocation    `json:"source_location"`
	UploadTimestamp      time.Time         `json:"upload_timestamp"`
	LastUpdatedTimestamp time.Time         `json:"last_updated_timestamp"`
	TranscriptionResult  json.RawMessage   `json:"transcription_result,omitempty"`
	AnalysisResult       map[string]string `json:"analysis_result,omitempty"`
	ErrorMessage         string            `json:"error_message,omitempty"`
	TranscriptionID      string            `json:"transcription_id,omitempty"`
	AnalysisID           string            `json:"analysis_id,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}
