// Package transcribe implements the transcription stage: fetch the source
// audio, run it through the speech-to-text provider with one bounded
// retry, and persist the structured result on the record.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"callinsight/internal/config"
)

// Client calls the speech-to-text provider with a fixed query
// configuration and returns the raw structured response.
type Client interface {
	Transcribe(ctx context.Context, apiKey string, audio []byte) (json.RawMessage, error)
}

// HTTPClient implements Client against an ElevenLabs-compatible
// speech-to-text endpoint.
type HTTPClient struct {
	baseURL     string
	modelID     string
	language    string
	contentType string
	http        *http.Client
}

// NewHTTPClient creates a provider client from the transcription
// configuration. The configured timeout bounds each individual call.
func NewHTTPClient(cfg config.TranscriptionConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 3 * time.Minute
	}
	return &HTTPClient{
		baseURL:     cfg.BaseURL,
		modelID:     cfg.ModelID,
		language:    cfg.Language,
		contentType: cfg.ContentType,
		http:        &http.Client{Timeout: timeout},
	}
}

// Transcribe posts the audio payload and returns the provider's JSON
// response. Any non-2xx status or unparsable body is an error.
func (c *HTTPClient) Transcribe(ctx context.Context, apiKey string, audio []byte) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("model_id", c.modelID)
	q.Set("language_code", c.language)
	q.Set("tag_audio_events", "true")
	q.Set("diarize", "true")
	endpoint := fmt.Sprintf("%s/v1/speech-to-text?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("failed to build transcription request: %w", err)
	}
	req.Header.Set("xi-api-key", apiKey)
	req.Header.Set("Content-Type", c.contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcription response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("transcription provider returned %d: %s", resp.StatusCode, truncate(body, 200))
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("transcription provider returned invalid JSON")
	}
	return json.RawMessage(body), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
