package assistant

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/analysis"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/cache"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/composer"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/config"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/dataset"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/embedding"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/llm"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/memory"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/observability"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/storage"
)

// Runtime is a Service together with the resources it was built from.
type Runtime struct {
	Service *Service
	DB      *sql.DB
	Store   *dataset.Store
	Logger  *observability.Logger

	closers []func() error
}

// Close releases the runtime's resources in reverse order.
func (r *Runtime) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}

// Ping checks the database connection.
func (r *Runtime) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

// NewRuntime builds every component named by cfg. Background work such as
// file watching stops when ctx is cancelled.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *observability.Logger) (_ *Runtime, err error) {
	logger = observability.OrNop(logger)
	rt := &Runtime{Logger: logger}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	driver := storage.DriverSQLite
	if cfg.Database.Driver == "postgres" {
		driver = storage.DriverPostgres
	}
	db, err := storage.Open(ctx, driver, cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == storage.DriverPostgres {
		db.SetMaxOpenConns(cfg.Database.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.Postgres.ConnMaxLifetime)
	}
	rt.DB = db
	rt.closers = append(rt.closers, db.Close)
	if err := storage.Migrate(ctx, db); err != nil {
		return nil, err
	}

	shared, err := newCache(cfg)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, shared.Close)

	source, err := newSource(cfg, logger)
	if err != nil {
		return nil, err
	}
	rt.Store = dataset.NewStore(logger, source, shared, dataset.StoreConfig{
		SourceID:     cfg.SourceID(),
		TTL:          cfg.Source.TTL,
		FetchTimeout: cfg.Source.FetchTimeout,
	})
	if fs, ok := source.(*dataset.FileSource); ok && cfg.Source.Watch {
		go func() {
			if err := fs.Watch(ctx, cfg.Source.FilePath, func() { rt.Store.Invalidate(ctx) }); err != nil {
				logger.Warn().Err(err).Msg("File watching stopped")
			}
		}()
	}

	completer, err := newCompleter(cfg, logger)
	if err != nil {
		return nil, err
	}

	engineCfg := EngineConfig(cfg.Retrieval)
	var (
		indexer  *retrieval.SemanticIndex
		semantic retrieval.RowSearcher
	)
	if cfg.Embedding.Provider != "none" {
		indexer, err = newSemanticIndex(ctx, cfg, logger, rt)
		if err != nil {
			return nil, err
		}
		if engineCfg.SemanticEnabled {
			semantic = indexer
		}
	}

	analyzer := analysis.NewAnalyzer(logger, analysis.Config{
		SampleRows:      cfg.Analysis.SampleRows,
		NumericFraction: cfg.Analysis.NumericFraction,
		PatternColumns:  cfg.Analysis.PatternColumns,
		PatternTop:      cfg.Analysis.PatternTop,
		SummaryColumns:  cfg.Analysis.SummaryColumns,
	})

	mem := memory.New(memory.Config{
		Capacity:       cfg.Memory.Capacity,
		PreviewRunes:   cfg.Memory.PreviewRunes,
		RecallWindow:   cfg.Memory.RecallWindow,
		RecallMinScore: cfg.Memory.RecallMinScore,
	})

	tokens := llm.NewTokenCounter("")
	tokens.Preload()

	svc, err := New(Options{
		Logger:     logger,
		Store:      rt.Store,
		Completer:  completer,
		Classifier: retrieval.NewIntentClassifier(),
		Extractor:  retrieval.NewParameterExtractor(),
		Engine:     retrieval.NewEngine(logger, analyzer, nil, semantic, engineCfg),
		Composer: composer.New(logger, composer.Config{
			MaxRunes: cfg.Composer.MaxRunes,
			RowLabel: cfg.Composer.RowLabel,
			Sentinel: cfg.Composer.Sentinel,
		}),
		Memory:       mem,
		Settings:     storage.NewSettingsRepository(db),
		Interactions: storage.NewInteractionRepository(db),
		Tokens:       tokens,
		Indexer:      indexer,
	})
	if err != nil {
		return nil, err
	}
	if err := svc.LoadSettings(ctx); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	rt.Service = svc

	logger.Info().
		Str("database", cfg.Database.Driver).
		Str("cache", cfg.Cache.Driver).
		Str("source", cfg.Source.Kind).
		Str("llm", cfg.LLM.Provider).
		Str("model", cfg.LLM.Model).
		Str("profile", string(engineCfg.Profile)).
		Bool("semantic", semantic != nil).
		Msg("Assistant runtime ready")
	return rt, nil
}

// EngineConfig resolves the retrieval profile and applies overrides.
func EngineConfig(rc config.RetrievalConfig) retrieval.EngineConfig {
	ec := retrieval.DefaultEngineConfig(retrieval.Profile(rc.Profile))
	if rc.DefaultRows > 0 {
		ec.DefaultRows = rc.DefaultRows
	}
	if rc.MaxRows > 0 {
		ec.MaxRows = rc.MaxRows
	}
	if rc.TopK > 0 {
		ec.TopK = rc.TopK
	}
	if rc.ExactWeight > 0 {
		ec.ExactWeight = rc.ExactWeight
	}
	if rc.FuzzyEnabled != nil {
		ec.FuzzyEnabled = *rc.FuzzyEnabled
	}
	if rc.FuzzyFloor > 0 {
		ec.FuzzyFloor = rc.FuzzyFloor
	}
	if rc.SemanticEnabled != nil {
		ec.SemanticEnabled = *rc.SemanticEnabled
	}
	if rc.SemanticWeight > 0 {
		ec.SemanticWeight = rc.SemanticWeight
	}
	if rc.SemanticMinScore > 0 {
		ec.SemanticMinScore = rc.SemanticMinScore
	}
	if rc.SampleRows > 0 {
		ec.SampleRows = rc.SampleRows
	}
	if rc.SampleValues > 0 {
		ec.SampleValues = rc.SampleValues
	}
	return ec
}

func newCache(cfg *config.Config) (cache.Client, error) {
	if cfg.Cache.Driver == "redis" {
		rc, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return rc, nil
	}
	return cache.NewMemoryClient(cfg.Cache.MaxEntries), nil
}

func newSource(cfg *config.Config, logger *observability.Logger) (dataset.Source, error) {
	switch cfg.Source.Kind {
	case "file":
		return dataset.NewFileSource(logger), nil
	case "sheet":
		return dataset.NewSheetSource(dataset.SheetConfig{
			BaseURL: cfg.Source.SheetBaseURL,
			GID:     cfg.Source.GID,
			Timeout: cfg.Source.FetchTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported source kind %q", cfg.Source.Kind)
	}
}

func newCompleter(cfg *config.Config, logger *observability.Logger) (llm.Completer, error) {
	var c llm.Completer
	switch cfg.LLM.Provider {
	case "openai":
		baseURL := cfg.LLM.BaseURL
		if baseURL == llm.DefaultOllamaURL {
			baseURL = ""
		}
		oc, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     baseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		c = oc
	case "ollama":
		c = llm.NewOllamaClient(llm.OllamaConfig{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
	}

	if cfg.LLM.FilterThinking {
		c = llm.Filtered{Next: c}
	}
	return c, nil
}

func newSemanticIndex(ctx context.Context, cfg *config.Config, logger *observability.Logger, rt *Runtime) (*retrieval.SemanticIndex, error) {
	var embedder embedding.Embedder
	switch cfg.Embedding.Provider {
	case "openai":
		ec, err := embedding.NewClient(embedding.Config{
			APIKey:    cfg.Embedding.APIKey,
			Model:     cfg.Embedding.Model,
			BaseURL:   cfg.Embedding.BaseURL,
			Dimension: cfg.Embedding.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("create embedding client: %w", err)
		}
		embedder = ec
	case "mock":
		embedder = embedding.NewMockClient(cfg.Embedding.Dimension)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Embedding.Provider)
	}

	var vectors retrieval.VectorAdapter
	switch cfg.Vector.Adapter {
	case "pgvector":
		pg, err := retrieval.NewPGVectorAdapter(ctx, retrieval.PGVectorConfig{
			DSN:       cfg.Vector.PGVector.DSN,
			Table:     cfg.Vector.PGVector.Table,
			Dimension: embedder.Dimension(),
		})
		if err != nil {
			return nil, fmt.Errorf("create pgvector adapter: %w", err)
		}
		vectors = pg
	default:
		vectors = retrieval.NewMemoryVectorAdapter()
	}
	rt.closers = append(rt.closers, vectors.Close)

	return retrieval.NewSemanticIndex(logger, embedder, vectors, cfg.Embedding.BatchSize), nil
}
