// Package assistant answers chat messages from spreadsheet rows. A Service
// owns the dataset store, conversation memory, retrieval engine and context
// composer, and is the single entry point the transports call.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/composer"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/dataset"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/llm"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/memory"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/observability"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/storage"
)

// Degraded response texts.
const (
	MessageEmptyQuery      = "ไม่พบข้อความ"
	MessageLLMFailure      = "ขออภัย เกิดข้อผิดพลาดในการเชื่อมต่อ AI"
	MessageEmptyAnswer     = "ไม่สามารถสร้างคำตอบได้"
	MessageProcessingError = "เกิดข้อผิดพลาดในการประมวลผล"
)

// DatasetStore serves the current dataset snapshot.
type DatasetStore interface {
	Get(ctx context.Context) (*dataset.Dataset, error)
	Refresh(ctx context.Context) (*dataset.Dataset, error)
	SetSourceID(ctx context.Context, sourceID string)
	SourceID() string
}

// SettingsStore persists key/value settings.
type SettingsStore interface {
	Value(ctx context.Context, key storage.SettingKey, fallback string) (string, error)
	List(ctx context.Context) ([]*storage.Setting, error)
	Set(ctx context.Context, key storage.SettingKey, value, updatedBy string) error
}

// InteractionLog persists handled queries.
type InteractionLog interface {
	Create(ctx context.Context, it *storage.Interaction) error
	ListRecent(ctx context.Context, limit int) ([]*storage.Interaction, error)
}

// Options holds the collaborators of a Service. Store and Completer are
// required; the rest default to in-memory reference implementations.
type Options struct {
	Logger       *observability.Logger
	Store        DatasetStore
	Completer    llm.Completer
	Classifier   *retrieval.IntentClassifier
	Extractor    *retrieval.ParameterExtractor
	Engine       *retrieval.Engine
	Composer     *composer.Composer
	Memory       *memory.ConversationMemory
	HelpDesk     *HelpDesk
	Settings     SettingsStore
	Interactions InteractionLog
	Tokens       *llm.TokenCounter
	Indexer      *retrieval.SemanticIndex
	SystemPrompt string
}

// Result is the outcome of one chat message. It is always well-formed.
type Result struct {
	ResponseText    string             `json:"response"`
	ContextFound    bool               `json:"context_found"`
	Intent          retrieval.Intent   `json:"intent"`
	Confidence      float64            `json:"confidence"`
	MatchedRowCount int                `json:"matched_row_count"`
	InteractionID   string             `json:"interaction_id,omitempty"`
	Context         string             `json:"-"`
	Outcome         *retrieval.Outcome `json:"-"`
}

// Service handles chat messages. It is safe for concurrent use.
type Service struct {
	logger       *observability.Logger
	store        DatasetStore
	completer    llm.Completer
	classifier   *retrieval.IntentClassifier
	extractor    *retrieval.ParameterExtractor
	engine       *retrieval.Engine
	composer     *composer.Composer
	memory       *memory.ConversationMemory
	helpDesk     *HelpDesk
	settings     SettingsStore
	interactions InteractionLog
	tokens       *llm.TokenCounter
	indexer      *retrieval.SemanticIndex

	mu           sync.RWMutex
	systemPrompt string
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("dataset store is required")
	}
	if opts.Completer == nil {
		return nil, errors.New("llm completer is required")
	}

	logger := observability.OrNop(opts.Logger)
	s := &Service{
		logger:       logger.WithOperation("handle_query"),
		store:        opts.Store,
		completer:    opts.Completer,
		classifier:   opts.Classifier,
		extractor:    opts.Extractor,
		engine:       opts.Engine,
		composer:     opts.Composer,
		memory:       opts.Memory,
		helpDesk:     opts.HelpDesk,
		settings:     opts.Settings,
		interactions: opts.Interactions,
		tokens:       opts.Tokens,
		indexer:      opts.Indexer,
		systemPrompt: opts.SystemPrompt,
	}
	if s.classifier == nil {
		s.classifier = retrieval.NewIntentClassifier()
	}
	if s.extractor == nil {
		s.extractor = retrieval.NewParameterExtractor()
	}
	if s.engine == nil {
		s.engine = retrieval.NewEngine(logger, nil, nil, nil, retrieval.DefaultEngineConfig(retrieval.ProfileBaseline))
	}
	if s.composer == nil {
		s.composer = composer.New(logger, composer.DefaultConfig())
	}
	if s.memory == nil {
		s.memory = memory.New(memory.DefaultConfig())
	}
	if s.helpDesk == nil {
		s.helpDesk = DefaultHelpDesk()
	}
	if s.systemPrompt == "" {
		s.systemPrompt = llm.DefaultSystemPrompt
	}
	return s, nil
}

// SystemPrompt returns the instructions prefixed to every prompt.
func (s *Service) SystemPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemPrompt
}

// HandleQuery answers one chat message. Data, retrieval and LLM failures
// become a degraded ResponseText with ContextFound false.
func (s *Service) HandleQuery(ctx context.Context, raw string) (res Result) {
	logger := s.logger.WithContext(ctx)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Query handling failed")
			res = Result{ResponseText: MessageProcessingError, Intent: retrieval.IntentGeneral}
		}
	}()

	query := strings.TrimSpace(raw)
	if query == "" {
		return Result{ResponseText: MessageEmptyQuery, Intent: retrieval.IntentGeneral}
	}

	cls := s.classifier.Classify(query)
	params := s.extractor.Extract(query)

	if cls.Intent == retrieval.IntentHelp {
		if entry, ok := s.helpDesk.Match(query); ok {
			res = Result{ResponseText: entry.Answer, Intent: cls.Intent, Confidence: cls.Confidence}
			s.record(ctx, query, &res)
			logger.Info().Str("intent", string(cls.Intent)).Str("topic", entry.Topic).Msg("Answered from help desk")
			return res
		}
	}

	ds, err := s.store.Get(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("source_id", s.store.SourceID()).Msg("Dataset unavailable")
		ds = nil
	}

	outcome := s.engine.Retrieve(ctx, query, cls, params, ds)
	contextText := s.composer.Compose(outcome)

	res = Result{
		Intent:          cls.Intent,
		Confidence:      cls.Confidence,
		ContextFound:    outcome.ContextFound(),
		MatchedRowCount: outcome.MatchedRowCount(),
		Context:         contextText,
		Outcome:         outcome,
	}

	if outcome.Kind == retrieval.OutcomeUnavailable {
		res.ResponseText = outcome.Message
		s.record(ctx, query, &res)
		logger.Warn().Str("intent", string(cls.Intent)).Msg("Answered without data")
		return res
	}

	var previous string
	if it, ok := s.memory.Recall(query); ok {
		previous = fmt.Sprintf("%s → %s", it.Query, it.Result)
	}

	prompt := llm.BuildPrompt(llm.PromptInput{
		System:   s.SystemPrompt(),
		Context:  contextText,
		Question: query,
		Previous: previous,
	})
	if s.tokens != nil {
		logger.Debug().Int("prompt_tokens", s.tokens.Count(prompt)).Bool("exact", s.tokens.Exact()).Msg("Prompt built")
	}

	answer, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		llmErr := llm.ClassifyError(err)
		logger.Warn().Err(err).Str("llm_error", string(llmErr.Type)).Msg("Completion failed")
		res.ContextFound = false
		res.ResponseText = MessageLLMFailure
		if llmErr.Type == llm.ErrorTypeEmpty {
			res.ResponseText = MessageEmptyAnswer
		}
	} else {
		res.ResponseText = answer
	}

	s.record(ctx, query, &res)

	logger.Info().
		Str("intent", string(res.Intent)).
		Float64("confidence", res.Confidence).
		Str("outcome", string(outcome.Kind)).
		Int("matched_rows", res.MatchedRowCount).
		Bool("context_found", res.ContextFound).
		Dur("elapsed", time.Since(start)).
		Msg("Query handled")
	return res
}

// record adds the interaction to memory and the interaction log.
func (s *Service) record(ctx context.Context, query string, res *Result) {
	it := s.memory.Add(query, res.ResponseText, res.ContextFound)
	res.InteractionID = it.ID

	if s.interactions == nil {
		return
	}
	id, err := uuid.Parse(it.ID)
	if err != nil {
		id = uuid.New()
	}
	err = s.interactions.Create(ctx, &storage.Interaction{
		ID:           id,
		CreatedAt:    it.Timestamp,
		Query:        query,
		Preview:      it.Result,
		ContextFound: res.ContextFound,
		Intent:       string(res.Intent),
		Fingerprint:  it.Fingerprint,
		SourceID:     s.store.SourceID(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist interaction")
	}
}
