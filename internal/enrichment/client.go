// Package enrichment calls the multimodal analysis model and turns its output
// into a structured recipe payload.
package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/woktalk/recipe-engine/internal/recipe"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// maxTranscriptChars bounds the transcript excerpt embedded in the prompt so
// long videos cannot blow up the request size.
const maxTranscriptChars = 5000

// errQuotaExhausted marks a permanent quota failure; retrying burns money for
// nothing.
var errQuotaExhausted = errors.New("model quota exhausted")

// Config controls the model client.
type Config struct {
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	// BaseURL is overridable in tests.
	BaseURL string
}

// Client implements recipe.EnrichmentService against the Gemini
// generateContent REST endpoint.
type Client struct {
	cfg    Config
	http   *http.Client
	policy retryPolicy
	logger *zap.Logger
}

// New constructs a model client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("enrichment.api_key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		policy: newRetryPolicy(cfg.MaxRetries),
		logger: logger,
	}, nil
}

// Analyze asks the model to extract a structured recipe from the video and its
// transcript. The returned payload is guaranteed to be a well-formed JSON
// object.
func (c *Client) Analyze(ctx context.Context, key recipe.Key, rawInput string, transcript string) (recipe.Payload, error) {
	prompt := buildPrompt(rawInput, transcript)

	var lastErr error
	for attempt := 0; ; attempt++ {
		payload, err := c.generate(ctx, prompt)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if !c.policy.shouldRetry(err, attempt) {
			break
		}
		wait := c.policy.backoff(attempt)
		c.logger.Warn("enrichment attempt failed, retrying",
			zap.String("key", key.String()),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("enrichment canceled: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("analyze video %s: %w", key, lastErr)
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) generate(ctx context.Context, prompt string) (recipe.Payload, error) {
	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
		},
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call model: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("model returned 429: %w", errQuotaExhausted)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var gr generateResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if gr.Error != nil {
		return nil, fmt.Errorf("model error %d %s: %s", gr.Error.Code, gr.Error.Status, gr.Error.Message)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("model returned no candidates")
	}

	var text string
	for _, p := range gr.Candidates[0].Content.Parts {
		text += p.Text
	}
	payload, err := salvageJSON(text)
	if err != nil {
		return nil, fmt.Errorf("parse model output: %w", err)
	}
	return recipe.Payload(payload), nil
}

func buildPrompt(rawInput string, transcript string) string {
	var b bytes.Buffer
	b.WriteString("You are a culinary assistant. Extract the complete recipe demonstrated ")
	b.WriteString("in this cooking video as a single JSON object with the fields: ")
	b.WriteString(`"title", "description", "ingredients" (array of {"name", "quantity"}), `)
	b.WriteString(`"steps" (array of strings, in order), "tips" (array of strings), `)
	b.WriteString(`"cuisine", "servings". Use the transcript as the primary source. `)
	b.WriteString("Respond with the JSON object only.\n\n")
	fmt.Fprintf(&b, "Video: %s\n\n", rawInput)
	if len(transcript) > maxTranscriptChars {
		transcript = transcript[:maxTranscriptChars]
	}
	if transcript != "" {
		fmt.Fprintf(&b, "Transcript:\n%s\n", transcript)
	} else {
		b.WriteString("Transcript: (none available; rely on the video content)\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
