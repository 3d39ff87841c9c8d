package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/observability"
)

// OpenAIConfig configures an OpenAIClient. BaseURL points it at any
// OpenAI-compatible server.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// OpenAIClient completes prompts through the chat completions API.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	logger      *observability.Logger
}

// NewOpenAIClient creates an OpenAIClient.
func NewOpenAIClient(cfg OpenAIConfig, logger *observability.Logger) (*OpenAIClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      observability.OrNop(logger).WithSource("openai"),
	}, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete sends prompt as a single user message.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", c.classify(err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &Error{Type: ErrorTypeEmpty, Message: "no choices in response", Model: c.model}
	}

	c.logger.Debug().
		Str("model", c.model).
		Dur("duration", time.Since(start)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Chat completion completed")

	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) classify(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e := &Error{Type: ErrorTypeUnknown, Message: apiErr.Message, Cause: err, StatusCode: apiErr.HTTPStatusCode, Model: c.model}
		switch {
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			e.Type = ErrorTypeAuth
		case apiErr.HTTPStatusCode == 404:
			e.Type = ErrorTypeModel
		case apiErr.HTTPStatusCode >= 500:
			e.Type = ErrorTypeUnavailable
		}
		return e
	}
	e := ClassifyError(err)
	e.Model = c.model
	return e
}

var _ Completer = (*OpenAIClient)(nil)
