// Package llm is the boundary to the text-generation collaborator. Workers
// treat it as a black box that returns free text or a JSON-decodable object,
// and fall back to deterministic defaults when it fails.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mtzanidakis/helios/internal/config"
)

// ErrNotConfigured is returned when no provider endpoint is set. Workers
// treat it like any other generation failure and use their fallbacks.
var ErrNotConfigured = errors.New("llm: no provider configured")

type Client interface {
	// Generate returns free text for a prompt.
	Generate(ctx context.Context, prompt, system string) (string, error)
	// GenerateStructured asks for a JSON object and decodes it into out.
	GenerateStructured(ctx context.Context, prompt string, out any, system string) error
}

// HTTPClient talks to a provider over a minimal JSON API:
// POST {base_url}/v1/generate with {model, system, prompt} returning {text}.
type HTTPClient struct {
	cfg  config.LLMConfig
	http *http.Client
}

func NewHTTP(cfg config.LLMConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPClient{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

func (c *HTTPClient) Generate(ctx context.Context, prompt, system string) (string, error) {
	if c.cfg.BaseURL == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(generateRequest{
		Model:  c.cfg.Model,
		System: system,
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("provider error: %s", out.Error)
	}
	return out.Text, nil
}

func (c *HTTPClient) GenerateStructured(ctx context.Context, prompt string, out any, system string) error {
	text, err := c.Generate(ctx, prompt+"\n\nRespond with a single JSON object and nothing else.", system)
	if err != nil {
		return err
	}
	cleaned := stripFences(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("decode structured response: %w", err)
	}
	return nil
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
