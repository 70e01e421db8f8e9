package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"callinsight/internal/models"
	"callinsight/internal/observability/logging"
	"callinsight/internal/observability/metrics"
	"callinsight/internal/secrets"
	"callinsight/internal/status"
	"callinsight/internal/store"
)

// Stage runs one analysis invocation for a call record.
type Stage struct {
	store        store.RecordStore
	profiles     store.ProfileStore
	tracker      *status.Tracker
	client       Client
	secrets      secrets.Source
	apiKeyID     string
	defaultModel string
	metrics      *metrics.Metrics
}

// NewStage wires the analysis stage. profiles may be nil when only the
// built-in default profile is in play.
func NewStage(recordStore store.RecordStore, profiles store.ProfileStore, tracker *status.Tracker, client Client, secretSource secrets.Source, apiKeyID, defaultModel string) *Stage {
	return &Stage{
		store:        recordStore,
		profiles:     profiles,
		tracker:      tracker,
		client:       client,
		secrets:      secretSource,
		apiKeyID:     apiKeyID,
		defaultModel: defaultModel,
		metrics:      metrics.DefaultMetrics,
	}
}

// Run executes the stage for one invocation. The transcript comes inline
// with the request when the orchestrator passes it through, otherwise it
// is read from the record; a record with no transcript is a precondition
// failure and does not transition. Failures after the record enters
// Analyzing transition it to AnalysisFailed and propagate.
func (s *Stage) Run(ctx context.Context, req models.StageRequest) (result models.StageResult, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordStage("analyze", err, time.Since(start).Seconds()) }()

	if req.CallID == "" {
		return models.StageResult{}, fmt.Errorf("analysis requires call_id")
	}
	logger := logging.WithStage(req.CallID, "analyze")

	rec, err := s.store.Get(ctx, req.CallID)
	if err != nil {
		return models.StageResult{}, fmt.Errorf("failed to load record: %w", err)
	}
	if rec.Status.IsTerminal() {
		logger.Info().Str("status", rec.Status.String()).Msg("Record already terminal, nothing to do")
		return models.SuccessResult(req.CallID), nil
	}

	transcript := req.Transcript
	if len(transcript) == 0 {
		transcript = rec.TranscriptionResult
	}
	if len(transcript) == 0 {
		return models.StageResult{}, fmt.Errorf("record %s has no transcription result to analyze", req.CallID)
	}

	if _, err := s.tracker.Apply(ctx, models.StatusUpdate{CallID: req.CallID, Status: models.StatusAnalyzing}); err != nil {
		return models.StageResult{}, err
	}

	text, err := TranscriptText(transcript)
	if err != nil {
		return models.StageResult{}, s.fail(ctx, req.CallID, "ExtractionError", err)
	}

	profile, err := s.resolveProfile(ctx, req.ProfileID)
	if err != nil {
		return models.StageResult{}, s.fail(ctx, req.CallID, "ProfileError", err)
	}

	apiKey, err := s.secrets.GetSecret(ctx, s.apiKeyID)
	if err != nil {
		return models.StageResult{}, s.fail(ctx, req.CallID, "CredentialError", err)
	}

	results, analysisID, err := s.dispatch(ctx, apiKey, profile, text)
	if err != nil {
		return models.StageResult{}, s.fail(ctx, req.CallID, "AnalysisError", err)
	}

	upd := models.StatusUpdate{CallID: req.CallID, Status: models.StatusCompleted, AnalysisID: analysisID}
	if _, err := s.tracker.Transition(ctx, upd, store.Fields{AnalysisResult: results}); err != nil {
		return models.StageResult{}, fmt.Errorf("failed to persist analysis: %w", err)
	}
	logger.Info().Int("analyses", len(results)).Str("profile", profile.ID).Msg("Analysis complete")

	return models.SuccessResult(req.CallID), nil
}

// resolveProfile looks the requested profile up, falling back to the
// built-in default when the invocation names none.
func (s *Stage) resolveProfile(ctx context.Context, profileID string) (models.AnalysisProfile, error) {
	if profileID == "" {
		return models.DefaultProfile(s.defaultModel), nil
	}
	if s.profiles == nil {
		return models.AnalysisProfile{}, fmt.Errorf("profile %s requested but no profile store configured", profileID)
	}
	profile, err := s.profiles.GetProfile(ctx, profileID)
	if err != nil {
		return models.AnalysisProfile{}, fmt.Errorf("failed to resolve profile %s: %w", profileID, err)
	}
	return profile, nil
}

// dispatch runs the profile against the provider: one call per named
// prompt for the separate variant, one schema-shaped call for the
// comprehensive variant. Returns the analysis-kind to result mapping and
// the last provider completion id.
func (s *Stage) dispatch(ctx context.Context, apiKey string, profile models.AnalysisProfile, text string) (map[string]string, string, error) {
	switch profile.Kind {
	case models.ProfileSeparate:
		return s.runSeparate(ctx, apiKey, profile, text)
	case models.ProfileComprehensive:
		return s.runComprehensive(ctx, apiKey, profile, text)
	}
	return nil, "", fmt.Errorf("profile %s has unknown kind %d", profile.ID, profile.Kind)
}

func (s *Stage) runSeparate(ctx context.Context, apiKey string, profile models.AnalysisProfile, text string) (map[string]string, string, error) {
	if len(profile.Prompts) == 0 {
		return nil, "", fmt.Errorf("profile %s has no prompts", profile.ID)
	}

	kinds := make([]string, 0, len(profile.Prompts))
	for kind := range profile.Prompts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	results := make(map[string]string, len(kinds))
	var lastID string
	for _, kind := range kinds {
		completion, err := s.client.Complete(ctx, apiKey, CompletionRequest{
			Model:       profile.Model,
			Prompt:      profile.Prompts[kind] + text,
			Temperature: profile.Temperature,
		})
		if err != nil {
			return nil, "", fmt.Errorf("%s analysis failed: %w", kind, err)
		}
		results[kind] = completion.Text
		lastID = completion.ID
	}
	return results, lastID, nil
}

func (s *Stage) runComprehensive(ctx context.Context, apiKey string, profile models.AnalysisProfile, text string) (map[string]string, string, error) {
	if profile.Prompt == "" {
		return nil, "", fmt.Errorf("profile %s has no comprehensive prompt", profile.ID)
	}

	completion, err := s.client.Complete(ctx, apiKey, CompletionRequest{
		Model:          profile.Model,
		Prompt:         profile.Prompt + text,
		Temperature:    profile.Temperature,
		ResponseSchema: profile.ResponseSchema,
	})
	if err != nil {
		return nil, "", fmt.Errorf("comprehensive analysis failed: %w", err)
	}

	// A schema-shaped answer decomposes into per-kind entries; anything
	// else is kept whole under a single key.
	var structured map[string]string
	if err := json.Unmarshal([]byte(completion.Text), &structured); err == nil && len(structured) > 0 {
		return structured, completion.ID, nil
	}
	return map[string]string{"comprehensive": completion.Text}, completion.ID, nil
}

// fail transitions the record to AnalysisFailed best effort and returns
// the original error.
func (s *Stage) fail(ctx context.Context, callID, kind string, cause error) error {
	if _, err := s.tracker.Apply(ctx, models.StatusUpdate{
		CallID:    callID,
		Status:    models.StatusAnalysisFailed,
		Error:     cause.Error(),
		ErrorKind: kind,
	}); err != nil {
		logger := logging.WithStage(callID, "analyze")
		logger.Error().Err(err).Msg("Failed to record stage failure")
	}
	return cause
}
