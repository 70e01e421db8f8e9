// Package analyze implements the analysis stage: extract the transcript
// text, run the profile's prompts against the analysis provider, and
// persist the combined result on the record.
package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"callinsight/internal/config"
)

// Completion is one provider answer.
type Completion struct {
	ID   string
	Text string
}

// Client runs one prompt through the analysis provider.
type Client interface {
	Complete(ctx context.Context, apiKey string, req CompletionRequest) (Completion, error)
}

// CompletionRequest describes one prompt invocation.
type CompletionRequest struct {
	Model          string
	Prompt         string
	Temperature    float64
	ResponseSchema json.RawMessage // optional, forces a schema-shaped JSON answer
}

// HTTPClient implements Client against an OpenAI-compatible chat
// completions endpoint.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates a provider client from the analysis configuration.
func NewHTTPClient(cfg config.AnalysisConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = time.Minute
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat json.RawMessage `json:"response_format,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete posts one prompt and returns the first choice's content.
func (c *HTTPClient) Complete(ctx context.Context, apiKey string, req CompletionRequest) (Completion, error) {
	payload := chatRequest{
		Model:       req.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   100,
	}
	if len(req.ResponseSchema) > 0 {
		payload.ResponseFormat = req.ResponseSchema
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("failed to build completion request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Completion{}, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to read analysis response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Completion{}, fmt.Errorf("analysis provider returned %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Completion{}, fmt.Errorf("analysis provider returned invalid JSON: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return Completion{}, fmt.Errorf("analysis provider returned no completion")
	}
	return Completion{ID: parsed.ID, Text: parsed.Choices[0].Message.Content}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
