package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/analysis"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/memory"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/storage"
)

// Common errors
var (
	ErrNoSettingsStore  = errors.New("settings store not configured")
	ErrNoInteractionLog = errors.New("interaction log not configured")
	ErrNoIndexer        = errors.New("semantic index not configured")
	ErrUnknownSetting   = errors.New("unknown setting")
)

// Settings are the admin-editable values.
type Settings struct {
	SystemPrompt string `json:"system_prompt"`
	SheetID      string `json:"sheet_id"`
	LineToken    string `json:"line_token"`
	TelegramAPI  string `json:"telegram_api"`
}

// ConnectionStatus reports whether the data source and LLM answered.
type ConnectionStatus struct {
	DataSource bool   `json:"google_sheets"`
	LLM        bool   `json:"ai_model"`
	Message    string `json:"message"`
}

// LoadSettings applies stored sheet_id and system_prompt values. It is
// called once at startup.
func (s *Service) LoadSettings(ctx context.Context) error {
	if s.settings == nil {
		return nil
	}
	current, err := s.Settings(ctx)
	if err != nil {
		return err
	}
	s.apply(ctx, storage.SettingSheetID, current.SheetID)
	s.apply(ctx, storage.SettingSystemPrompt, current.SystemPrompt)
	return nil
}

// Settings returns the current settings. Unstored keys report the values
// in effect.
func (s *Service) Settings(ctx context.Context) (Settings, error) {
	out := Settings{SystemPrompt: s.SystemPrompt(), SheetID: s.store.SourceID()}
	if s.settings == nil {
		return out, nil
	}

	stored, err := s.settings.List(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	for _, st := range stored {
		switch st.Key {
		case storage.SettingSystemPrompt:
			out.SystemPrompt = st.Value
		case storage.SettingSheetID:
			out.SheetID = st.Value
		case storage.SettingLineToken:
			out.LineToken = st.Value
		case storage.SettingTelegramAPI:
			out.TelegramAPI = st.Value
		}
	}
	return out, nil
}

// UpdateSetting stores one setting and applies it. A new sheet_id re-points
// the dataset store; a new system_prompt changes subsequent prompts.
func (s *Service) UpdateSetting(ctx context.Context, key, value, updatedBy string) error {
	if !storage.ValidSettingKey(key) {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	if s.settings == nil {
		return ErrNoSettingsStore
	}

	k := storage.SettingKey(key)
	value = strings.TrimSpace(value)
	if err := s.settings.Set(ctx, k, value, updatedBy); err != nil {
		return err
	}
	s.apply(ctx, k, value)
	s.logger.Info().Str("key", key).Str("updated_by", updatedBy).Msg("Setting updated")
	return nil
}

func (s *Service) apply(ctx context.Context, key storage.SettingKey, value string) {
	switch key {
	case storage.SettingSheetID:
		if value != "" && value != s.store.SourceID() {
			s.store.SetSourceID(ctx, value)
		}
	case storage.SettingSystemPrompt:
		if value != "" {
			s.mu.Lock()
			s.systemPrompt = value
			s.mu.Unlock()
		}
	}
}

// TestConnection fetches the dataset and sends a probe prompt to the LLM.
func (s *Service) TestConnection(ctx context.Context) ConnectionStatus {
	var st ConnectionStatus

	if ds, err := s.store.Refresh(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Connection test: data source failed")
	} else {
		st.DataSource = ds.Len() > 0 || ds.Columns() > 0
	}

	if _, err := s.completer.Complete(ctx, "test"); err != nil {
		s.logger.Warn().Err(err).Msg("Connection test: LLM failed")
	} else {
		st.LLM = true
	}

	st.Message = fmt.Sprintf("Google Sheets: %s, AI Model: %s", mark(st.DataSource), mark(st.LLM))
	return st
}

func mark(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

// RefreshResult describes a forced refetch.
type RefreshResult struct {
	SourceID string `json:"source_id"`
	Rows     int    `json:"rows"`
	Columns  int    `json:"columns"`
}

// Refresh drops cached snapshots and fetches the dataset again.
func (s *Service) Refresh(ctx context.Context) (RefreshResult, error) {
	ds, err := s.store.Refresh(ctx)
	if err != nil {
		return RefreshResult{SourceID: s.store.SourceID()}, err
	}
	return RefreshResult{SourceID: ds.SourceID, Rows: ds.Len(), Columns: ds.Columns()}, nil
}

// Analyze runs a full analysis of the current dataset.
func (s *Service) Analyze(ctx context.Context) (*analysis.Report, error) {
	ds, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := s.engine.Retrieve(ctx, "", retrieval.Classification{Intent: retrieval.IntentAnalysis},
		retrieval.Parameters{Aggregations: []retrieval.Aggregation{retrieval.AggregationSum}}, ds)
	if out.Analysis == nil {
		return nil, errors.New(out.Message)
	}
	return out.Analysis, nil
}

// Index embeds the current dataset rows into the semantic index.
func (s *Service) Index(ctx context.Context, progress func(done, total int)) (int, error) {
	if s.indexer == nil {
		return 0, ErrNoIndexer
	}
	ds, err := s.store.Get(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.indexer.Index(ctx, ds, progress); err != nil {
		return 0, err
	}
	return ds.Len(), nil
}

// Popular returns the n most frequently asked queries.
func (s *Service) Popular(n int) []memory.QueryCount {
	return s.memory.Popular(n)
}

// Recent returns the n most recent in-memory interactions.
func (s *Service) Recent(n int) []memory.Interaction {
	return s.memory.Recent(n)
}

// History returns the n most recent persisted interactions.
func (s *Service) History(ctx context.Context, n int) ([]*storage.Interaction, error) {
	if s.interactions == nil {
		return nil, ErrNoInteractionLog
	}
	return s.interactions.ListRecent(ctx, n)
}

// Seed replays persisted interactions, newest first as History returns
// them, into conversation memory in the order they happened.
func (s *Service) Seed(items []*storage.Interaction) {
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		s.memory.Add(it.Query, it.Preview, it.ContextFound)
	}
}

// ClearMemory empties the conversation memory and its counters.
func (s *Service) ClearMemory() {
	s.memory.Clear()
	s.logger.Info().Msg("Conversation memory cleared")
}

// AdminHelp answers an admin question from the help desk.
func (s *Service) AdminHelp(question string) string {
	return s.helpDesk.Answer(question)
}
