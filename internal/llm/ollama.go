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

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/observability"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "qwen3:14b"
	DefaultTimeout     = 30 * time.Second
)

// OllamaConfig configures an OllamaClient.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OllamaClient talks to an Ollama server's non-streaming generate endpoint.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *observability.Logger
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaClient creates an OllamaClient. Zero config fields take defaults.
func NewOllamaClient(cfg OllamaConfig, logger *observability.Logger) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  observability.OrNop(logger).WithSource("ollama"),
	}
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// Complete sends prompt to /api/generate and returns the response text.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{Model: c.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return "", &Error{Type: ErrorTypeTimeout, Message: "request timeout", Cause: err, Model: c.model}
		}
		return "", &Error{Type: ErrorTypeUnavailable, Message: "connection failed", Cause: err, Model: c.model}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		errType := ErrorTypeUnavailable
		if resp.StatusCode == http.StatusNotFound {
			errType = ErrorTypeModel
		}
		return "", &Error{
			Type:       errType,
			Message:    strings.TrimSpace(string(detail)),
			StatusCode: resp.StatusCode,
			Model:      c.model,
		}
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &Error{Type: ErrorTypeUnknown, Message: "decode response", Cause: err, Model: c.model}
	}

	c.logger.Debug().
		Str("model", c.model).
		Dur("duration", time.Since(start)).
		Int("response_len", len(out.Response)).
		Msg("Ollama generate completed")

	if strings.TrimSpace(out.Response) == "" {
		return "", &Error{Type: ErrorTypeEmpty, Message: "empty response", Model: c.model}
	}
	return out.Response, nil
}

var _ Completer = (*OllamaClient)(nil)
