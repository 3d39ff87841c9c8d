package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripThinking(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no tags", "คำตอบ", "คำตอบ"},
		{"leading block", "<think>reasoning\nmore</think>\nคำตอบ", "คำตอบ"},
		{"several blocks", "<think>a</think>one <think>b</think>two", "one two"},
		{"unterminated", "answer <think>still thinking", "answer"},
		{"dangling close", "half thought</think> answer", "answer"},
		{"uppercase", "<THINK>x</THINK>ok", "ok"},
		{"only thinking", "<think>x</think>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripThinking(tt.in))
		})
	}
}

func TestFiltered(t *testing.T) {
	next := CompleterFunc(func(_ context.Context, prompt string) (string, error) {
		return "<think>hmm</think> " + prompt, nil
	})
	out, err := Filtered{Next: next}.Complete(context.Background(), "สวัสดี")
	require.NoError(t, err)
	assert.Equal(t, "สวัสดี", out)

	empty := CompleterFunc(func(context.Context, string) (string, error) {
		return "<think>only</think>", nil
	})
	_, err = Filtered{Next: empty}.Complete(context.Background(), "x")
	assert.True(t, IsType(err, ErrorTypeEmpty))

	boom := errors.New("boom")
	failing := CompleterFunc(func(context.Context, string) (string, error) { return "", boom })
	_, err = Filtered{Next: failing}.Complete(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorType
	}{
		{context.DeadlineExceeded, ErrorTypeTimeout},
		{fmt.Errorf("call: %w", context.DeadlineExceeded), ErrorTypeTimeout},
		{errors.New("dial tcp: connection refused"), ErrorTypeUnavailable},
		{errors.New("status 401 Unauthorized"), ErrorTypeAuth},
		{errors.New("model \"x\" not found"), ErrorTypeModel},
		{errors.New("weird"), ErrorTypeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyError(tt.err).Type, tt.err.Error())
	}
	assert.Nil(t, ClassifyError(nil))

	typed := NewError(ErrorTypeEmpty, "empty", nil)
	assert.Same(t, typed, ClassifyError(fmt.Errorf("wrap: %w", typed)))
}

func TestError_Message(t *testing.T) {
	cause := errors.New("refused")
	err := &Error{Type: ErrorTypeUnavailable, Message: "connection failed", Cause: cause, StatusCode: 503, Model: "m"}
	assert.Equal(t, "unavailable HTTP 503 model=m connection failed: refused", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestOllamaClient_Complete(t *testing.T) {
	var got ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "สมชาย อายุ 34 ปี", Done: true})
	}))
	defer srv.Close()

	c := NewOllamaClient(OllamaConfig{BaseURL: srv.URL + "/"}, nil)
	out, err := c.Complete(context.Background(), "คำถาม")
	require.NoError(t, err)

	assert.Equal(t, "สมชาย อายุ 34 ปี", out)
	assert.Equal(t, DefaultOllamaModel, got.Model)
	assert.Equal(t, "คำถาม", got.Prompt)
	assert.False(t, got.Stream)
}

func TestOllamaClient_Errors(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewOllamaClient(OllamaConfig{BaseURL: srv.URL}, nil).Complete(context.Background(), "x")
		var llmErr *Error
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, ErrorTypeUnavailable, llmErr.Type)
		assert.Equal(t, http.StatusServiceUnavailable, llmErr.StatusCode)
	})

	t.Run("unknown model", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, Model: "nope"}, nil).Complete(context.Background(), "x")
		assert.True(t, IsType(err, ErrorTypeModel))
	})

	t.Run("empty response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "  ", Done: true})
		}))
		defer srv.Close()

		_, err := NewOllamaClient(OllamaConfig{BaseURL: srv.URL}, nil).Complete(context.Background(), "x")
		assert.True(t, IsType(err, ErrorTypeEmpty))
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		c := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, nil)
		_, err := c.Complete(context.Background(), "x")
		assert.True(t, IsType(err, ErrorTypeTimeout))
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewOllamaClient(OllamaConfig{BaseURL: url}, nil).Complete(context.Background(), "x")
		assert.True(t, IsType(err, ErrorTypeUnavailable))
	})
}

func TestOpenAIClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
			"echo: "+req.Messages[0].Content)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-test"}, nil)
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)
}

func TestOpenAIClient_Errors(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{APIKey: "k"}, nil)
	require.Error(t, err)

	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorType
	}{
		{"auth", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, ErrorTypeAuth},
		{"model", http.StatusNotFound, `{"error":{"message":"no such model","type":"invalid_request_error"}}`, ErrorTypeModel},
		{"server", http.StatusBadGateway, `{"error":{"message":"upstream","type":"server_error"}}`, ErrorTypeUnavailable},
		{"no choices", http.StatusOK, `{"id":"1","choices":[]}`, ErrorTypeEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"}, nil)
			require.NoError(t, err)
			_, err = c.Complete(context.Background(), "x")
			assert.True(t, IsType(err, tt.want), "got %v", err)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt(PromptInput{System: "SYS", Context: "CTX", Question: "Q"})
	assert.Equal(t, "SYS\n\nข้อมูลที่เกี่ยวข้อง:\nCTX\n\nคำถาม: Q\n\nคำตอบ:", got)

	got = BuildPrompt(PromptInput{System: "SYS", Context: "CTX", Question: "Q", Previous: "P"})
	assert.Equal(t, "SYS\n\nบทสนทนาก่อนหน้า: P\n\nข้อมูลที่เกี่ยวข้อง:\nCTX\n\nคำถาม: Q\n\nคำตอบ:", got)

	got = BuildPrompt(PromptInput{System: "  ", Question: "Q"})
	assert.True(t, strings.HasPrefix(got, DefaultSystemPrompt))
	assert.Contains(t, DefaultSystemPrompt, "NT AI ONE")
}

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 3, EstimateTokens("hello world"))
	// Thai runes are three bytes each.
	assert.Equal(t, 5, EstimateTokens("สวัสดี"))

	tc := NewTokenCounter("")
	assert.Zero(t, tc.Count(""))
	assert.False(t, tc.Exact())
	assert.Equal(t, EstimateTokens("hello world"), tc.Count("hello world"))
}
