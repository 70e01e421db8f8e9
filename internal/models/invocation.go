package models

import "encoding/json"

// StageRequest is the structured input the orchestrator hands to the
// transcription and analysis stages. Bucket/Key are required for
// transcription; Transcript optionally carries the provider payload inline
// so analysis can skip the record read.
type StageRequest struct {
	CallID     string            `json:"call_id"`
	Bucket     string            `json:"s3_bucket_name,omitempty"`
	Key        string            `json:"s3_object_key,omitempty"`
	Transcript json.RawMessage   `json:"transcript_data,omitempty"`
	ProfileID  string            `json:"profile_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// StageResult is returned to the orchestrator on success so it can branch
// on a stable shape.
type StageResult struct {
	Status string `json:"status"`
	CallID string `json:"call_id"`
}

// SuccessResult builds the canonical success output for a stage.
func SuccessResult(callID string) StageResult {
	return StageResult{Status: "Success", CallID: callID}
}

// StatusUpdateResult echoes the record's status after a tracker write. A
// terminal no-op answers with the unchanged terminal status, so the
// orchestrator can tell a write from a skip.
type StatusUpdateResult struct {
	Status Status `json:"status"`
	CallID string `json:"call_id"`
}

// StatusUpdate is the status tracker's input: a target status plus the
// optional error and provider identifiers to record alongside it.
type StatusUpdate struct {
	CallID          string `json:"call_id"`
	Status          Status `json:"status"`
	Error           string `json:"error,omitempty"`
	ErrorKind       string `json:"error_kind,omitempty"`
	TranscriptionID string `json:"transcription_id,omitempty"`
	AnalysisID      string `json:"analysis_id,omitempty"`
}
