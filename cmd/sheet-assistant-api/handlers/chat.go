// Package handlers provides HTTP handlers for the sheet assistant API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/assistant"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/memory"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/observability"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/storage"
)

// Assistant is the part of assistant.Service the HTTP API calls.
type Assistant interface {
	HandleQuery(ctx context.Context, raw string) assistant.Result
	AdminHelp(question string) string
	Settings(ctx context.Context) (assistant.Settings, error)
	UpdateSetting(ctx context.Context, key, value, updatedBy string) error
	TestConnection(ctx context.Context) assistant.ConnectionStatus
	Refresh(ctx context.Context) (assistant.RefreshResult, error)
	Popular(n int) []memory.QueryCount
	ClearMemory()
	History(ctx context.Context, n int) ([]*storage.Interaction, error)
}

// ChatHandler handles chat and help requests.
type ChatHandler struct {
	logger    *observability.Logger
	assistant Assistant
	now       func() time.Time
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(logger *observability.Logger, a Assistant) *ChatHandler {
	return &ChatHandler{
		logger:    observability.OrNop(logger),
		assistant: a,
		now:       time.Now,
	}
}

// MessageRequestDTO is the body of chat and admin-help requests.
type MessageRequestDTO struct {
	Message string `json:"message"`
}

// ChatResponseDTO represents the chat response.
type ChatResponseDTO struct {
	Success         bool    `json:"success"`
	Response        string  `json:"response"`
	ContextFound    bool    `json:"context_found"`
	Intent          string  `json:"intent"`
	Confidence      float64 `json:"confidence"`
	MatchedRowCount int     `json:"matched_row_count"`
	InteractionID   string  `json:"interaction_id,omitempty"`
	Timestamp       string  `json:"timestamp"`
}

// Chat handles POST /chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req MessageRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required", "")
		return
	}

	res := h.assistant.HandleQuery(r.Context(), req.Message)
	writeJSON(w, http.StatusOK, ChatResponseDTO{
		Success:         true,
		Response:        res.ResponseText,
		ContextFound:    res.ContextFound,
		Intent:          string(res.Intent),
		Confidence:      res.Confidence,
		MatchedRowCount: res.MatchedRowCount,
		InteractionID:   res.InteractionID,
		Timestamp:       h.now().UTC().Format(time.RFC3339),
	})
}

// AdminHelp handles POST /admin-help.
func (h *ChatHandler) AdminHelp(w http.ResponseWriter, r *http.Request) {
	var req MessageRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": h.assistant.AdminHelp(req.Message)})
}

// Popular handles GET /popular?n=.
func (h *ChatHandler) Popular(w http.ResponseWriter, r *http.Request) {
	n, ok := queryInt(w, r, "n", 5)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queries": h.assistant.Popular(n)})
}

// ClearMemory handles DELETE /memory.
func (h *ChatHandler) ClearMemory(w http.ResponseWriter, r *http.Request) {
	h.assistant.ClearMemory()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// History handles GET /history?n=.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	n, ok := queryInt(w, r, "n", 20)
	if !ok {
		return
	}
	items, err := h.assistant.History(r.Context(), n)
	if errors.Is(err, assistant.ErrNoInteractionLog) {
		writeError(w, http.StatusNotImplemented, "interaction log not configured", "")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("History query failed")
		writeError(w, http.StatusInternalServerError, "history query failed", err.Error())
		return
	}
	if items == nil {
		items = []*storage.Interaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"interactions": items})
}

func queryInt(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid "+key, raw)
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]any{
		"success": false,
		"error":   message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}
