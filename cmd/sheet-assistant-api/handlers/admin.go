package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/cmd/sheet-assistant-api/middleware"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/assistant"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/observability"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/storage"
)

// AdminHandler handles settings and data-source maintenance.
type AdminHandler struct {
	logger    *observability.Logger
	assistant Assistant
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(logger *observability.Logger, a Assistant) *AdminHandler {
	return &AdminHandler{logger: observability.OrNop(logger), assistant: a}
}

// GetSettings handles GET /settings.
func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.assistant.Settings(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load settings")
		writeError(w, http.StatusInternalServerError, "failed to load settings", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateSettings handles POST /settings. The body maps setting keys to
// values; every key is validated before any is written.
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "no settings given", "")
		return
	}

	keys := make([]string, 0, len(body))
	for k := range body {
		if !storage.ValidSettingKey(k) {
			writeError(w, http.StatusBadRequest, "unknown setting", k)
			return
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	caller := middleware.CallerFromContext(r.Context())
	for _, k := range keys {
		err := h.assistant.UpdateSetting(r.Context(), k, body[k], caller)
		switch {
		case errors.Is(err, assistant.ErrNoSettingsStore):
			writeError(w, http.StatusNotImplemented, "settings store not configured", "")
			return
		case err != nil:
			h.logger.Error().Err(err).Str("key", k).Msg("Failed to update setting")
			writeError(w, http.StatusInternalServerError, "failed to update setting", err.Error())
			return
		}
	}

	h.GetSettings(w, r)
}

// TestConnection handles POST /test-connection.
func (h *AdminHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.assistant.TestConnection(r.Context()))
}

// Refresh handles POST /refresh.
func (h *AdminHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.assistant.Refresh(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Str("source_id", res.SourceID).Msg("Refresh failed")
		writeError(w, http.StatusBadGateway, "data source unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
