package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mapvivid/cityroute/internal/config"
	"github.com/mapvivid/cityroute/internal/planner"
)

// Generator produces one JSON document from a prompt. The returned
// responseID is a provider correlation id, kept for diagnostics.
type Generator interface {
	Generate(ctx context.Context, prompt string) (parsed json.RawMessage, responseID string, err error)
}

// OpenAIClient calls the OpenAI Responses API.
type OpenAIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

type responsesRequest struct {
	Model string        `json:"model"`
	Input string        `json:"input"`
	Text  responsesText `json:"text"`
}

type responsesText struct {
	Format responsesFormat `json:"format"`
}

type responsesFormat struct {
	Type string `json:"type"`
}

type responsesResponse struct {
	ID         string `json:"id"`
	OutputText string `json:"output_text"`
}

// NewOpenAIClient creates a generation client. Generation calls carry no
// deadline of their own beyond the transport timeout; work continues
// independent of any client being attached.
func NewOpenAIClient(cfg *config.OpenAIConfig) *OpenAIClient {
	return &OpenAIClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// Generate sends the prompt and returns the cleaned, repaired JSON body
// of the response text.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (json.RawMessage, string, error) {
	if !c.IsConfigured() {
		return nil, "", errors.New("missing OpenAI API key")
	}

	reqBody := responsesRequest{
		Model: c.model,
		Input: prompt,
		Text:  responsesText{Format: responsesFormat{Type: "json_object"}},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, "", errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, "", errors.Wrap(err, "create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.Newf("openai %d: %s", resp.StatusCode, truncateBody(respBody, 800))
	}

	var out responsesResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, "", errors.Wrap(err, "unmarshal response")
	}

	text := strings.TrimSpace(out.OutputText)
	if text == "" {
		return nil, out.ID, errors.New("empty output_text")
	}

	cleaned := planner.CleanJSON(text)
	var parsed json.RawMessage
	if err := planner.ParseWithRepair(cleaned, &parsed); err != nil {
		return nil, out.ID, err
	}
	return parsed, out.ID, nil
}

// IsConfigured returns true if the client has valid configuration.
func (c *OpenAIClient) IsConfigured() bool {
	return c.apiKey != ""
}

func truncateBody(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
