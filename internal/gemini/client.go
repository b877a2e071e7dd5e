// Package gemini is an HTTP client for the Google Gemini generateContent
// API. It implements domain.Generator: one attempt per call, no retry.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gembot/internal/domain"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-1.5-flash-latest"

	// Bounds a hung backend call; the pipeline itself imposes no timeout.
	defaultHTTPTimeout = 120 * time.Second
)

// Client calls the Gemini API with a fixed content-safety policy.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	safety  []safetySetting
	logger  *slog.Logger
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string // overridable for tests
	Logger  *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		safety:  defaultSafetySettings(),
		logger:  cfg.Logger,
	}
}

// defaultSafetySettings blocks medium-and-above content in all four harm
// categories. The policy is fixed at construction and sent with every call.
func defaultSafetySettings() []safetySetting {
	categories := []string{
		"HARM_CATEGORY_HARASSMENT",
		"HARM_CATEGORY_HATE_SPEECH",
		"HARM_CATEGORY_SEXUALLY_EXPLICIT",
		"HARM_CATEGORY_DANGEROUS_CONTENT",
	}
	settings := make([]safetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, safetySetting{Category: c, Threshold: "BLOCK_MEDIUM_AND_ABOVE"})
	}
	return settings
}

type generateRequest struct {
	Contents       []content       `json:"contents"`
	SafetySettings []safetySetting `json:"safetySettings,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generateResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason"`
}

func (c *Client) Name() string { return "gemini" }

// Healthy reports whether the client is usable at all. It does not probe
// the network.
func (c *Client) Healthy(ctx context.Context) error {
	if c.apiKey == "" {
		return fmt.Errorf("gemini: no API key configured")
	}
	return nil
}

// Generate sends the prompt and returns the raw result: the concatenated
// text of the first candidate, plus the prompt feedback when the API
// supplied one. Classification of empty results is the caller's job.
func (c *Client) Generate(ctx context.Context, prompt string) (*domain.GenerationResult, error) {
	body := generateRequest{
		Contents:       []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		SafetySettings: c.safety,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gemini %d: %s", resp.StatusCode, string(respBody))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	result := &domain.GenerationResult{}
	if len(genResp.Candidates) > 0 {
		var textParts []string
		for _, p := range genResp.Candidates[0].Content.Parts {
			textParts = append(textParts, p.Text)
		}
		result.Text = strings.Join(textParts, "")
	}
	if genResp.PromptFeedback != nil {
		result.Feedback = &domain.SafetyFeedback{BlockReason: genResp.PromptFeedback.BlockReason}
	}

	c.logger.Debug("gemini response", "text_len", len(result.Text), "has_feedback", result.Feedback != nil)
	return result, nil
}
