// Package config provides unified configuration loading for the sheet assistant.
// Supports .env files, YAML files, and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the sheet assistant.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Source        SourceConfig        `yaml:"source"`
	LLM           LLMConfig           `yaml:"llm"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Vector        VectorConfig        `yaml:"vector"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Analysis      AnalysisConfig      `yaml:"analysis"`
	Memory        MemoryConfig        `yaml:"memory"`
	Composer      ComposerConfig      `yaml:"composer"`
	Observability ObservabilityConfig `yaml:"observability"`
	Auth          AuthConfig          `yaml:"auth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds the shared dataset cache settings.
type CacheConfig struct {
	Driver     string      `yaml:"driver"` // memory or redis
	MaxEntries int         `yaml:"max_entries"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// SourceConfig selects where rows come from.
type SourceConfig struct {
	Kind         string        `yaml:"kind"` // sheet or file
	SheetID      string        `yaml:"sheet_id"`
	SheetBaseURL string        `yaml:"sheet_base_url"`
	GID          string        `yaml:"gid"`
	FilePath     string        `yaml:"file_path"`
	Watch        bool          `yaml:"watch"`
	TTL          time.Duration `yaml:"ttl"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// LLMConfig holds completion endpoint settings.
type LLMConfig struct {
	Provider       string        `yaml:"provider"` // ollama or openai
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"api_key"`
	Temperature    float32       `yaml:"temperature"`
	Timeout        time.Duration `yaml:"timeout"`
	FilterThinking bool          `yaml:"filter_thinking"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // none, openai or mock
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// VectorConfig holds vector store settings.
type VectorConfig struct {
	Adapter  string         `yaml:"adapter"` // memory or pgvector
	PGVector PGVectorConfig `yaml:"pgvector"`
}

// PGVectorConfig holds PGVector-specific settings.
type PGVectorConfig struct {
	DSN       string `yaml:"dsn"`
	Table     string `yaml:"table"`
	Dimension int    `yaml:"dimension"`
}

// RetrievalConfig selects a profile. Non-zero fields override the profile's
// constants.
type RetrievalConfig struct {
	Profile          string  `yaml:"profile"` // baseline or advanced
	DefaultRows      int     `yaml:"default_rows"`
	MaxRows          int     `yaml:"max_rows"`
	TopK             int     `yaml:"top_k"`
	ExactWeight      float64 `yaml:"exact_weight"`
	FuzzyEnabled     *bool   `yaml:"fuzzy_enabled"`
	FuzzyFloor       int     `yaml:"fuzzy_floor"`
	SemanticEnabled  *bool   `yaml:"semantic_enabled"`
	SemanticWeight   float64 `yaml:"semantic_weight"`
	SemanticMinScore float64 `yaml:"semantic_min_score"`
	SampleRows       int     `yaml:"sample_rows"`
	SampleValues     int     `yaml:"sample_values"`
}

// AnalysisConfig holds analyzer constants. Zero fields take defaults.
type AnalysisConfig struct {
	SampleRows      int     `yaml:"sample_rows"`
	NumericFraction float64 `yaml:"numeric_fraction"`
	PatternColumns  int     `yaml:"pattern_columns"`
	PatternTop      int     `yaml:"pattern_top"`
	SummaryColumns  int     `yaml:"summary_columns"`
}

// MemoryConfig holds conversation memory settings.
type MemoryConfig struct {
	Capacity       int `yaml:"capacity"`
	PreviewRunes   int `yaml:"preview_runes"`
	RecallWindow   int `yaml:"recall_window"`
	RecallMinScore int `yaml:"recall_min_score"`
}

// ComposerConfig holds context composition settings.
type ComposerConfig struct {
	MaxRunes int    `yaml:"max_runes"`
	RowLabel string `yaml:"row_label"`
	Sentinel string `yaml:"sentinel"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// AuthConfig holds API key authentication settings.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"`
	APIKeys []string `yaml:"api_keys"`
}

// Load reads .env, a YAML file, and environment overrides, in that order.
func Load(path string) (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		if cfg.Source.FilePath != "" {
			cfg.Source.FilePath = ResolveRelativePath(path, cfg.Source.FilePath)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8085,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			AllowedOrigins:   []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path: "/tmp/sheet-assistant.db",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			MaxEntries: 64,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "sheet-assistant",
			},
		},
		Source: SourceConfig{
			Kind:         "sheet",
			GID:          "0",
			TTL:          5 * time.Minute,
			FetchTimeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			BaseURL:        "http://localhost:11434",
			Model:          "qwen3:14b",
			Temperature:    0.2,
			Timeout:        30 * time.Second,
			FilterThinking: true,
		},
		Embedding: EmbeddingConfig{
			Provider:  "none",
			Model:     "text-embedding-3-small",
			Dimension: 1536,
			BatchSize: 64,
		},
		Vector: VectorConfig{
			Adapter: "memory",
			PGVector: PGVectorConfig{
				Table:     "sheet_row_vectors",
				Dimension: 1536,
			},
		},
		Retrieval: RetrievalConfig{
			Profile: "baseline",
		},
		Memory: MemoryConfig{
			Capacity:       100,
			PreviewRunes:   200,
			RecallWindow:   10,
			RecallMinScore: 60,
		},
		Composer: ComposerConfig{
			MaxRunes: 2000,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("postgres dsn is required")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	switch c.Source.Kind {
	case "sheet":
	case "file":
		if c.Source.FilePath == "" {
			return fmt.Errorf("source file_path is required for file sources")
		}
	default:
		return fmt.Errorf("invalid source kind: %s", c.Source.Kind)
	}

	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("invalid llm provider: %s", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}

	switch c.Embedding.Provider {
	case "none", "mock":
	case "openai":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("embedding api key is required for the openai provider")
		}
	default:
		return fmt.Errorf("invalid embedding provider: %s", c.Embedding.Provider)
	}

	if c.Vector.Adapter != "memory" && c.Vector.Adapter != "pgvector" {
		return fmt.Errorf("invalid vector adapter: %s", c.Vector.Adapter)
	}
	if c.Vector.Adapter == "pgvector" && c.Vector.PGVector.DSN == "" {
		return fmt.Errorf("pgvector dsn is required")
	}

	if c.Retrieval.Profile != "baseline" && c.Retrieval.Profile != "advanced" {
		return fmt.Errorf("invalid retrieval profile: %s", c.Retrieval.Profile)
	}
	if c.Retrieval.FuzzyFloor < 0 || c.Retrieval.FuzzyFloor > 100 {
		return fmt.Errorf("fuzzy_floor must be between 0 and 100")
	}
	if c.Retrieval.DefaultRows > 0 && c.Retrieval.MaxRows > 0 && c.Retrieval.DefaultRows > c.Retrieval.MaxRows {
		return fmt.Errorf("default_rows must not exceed max_rows")
	}

	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth enabled without api keys")
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// SourceID returns the identifier the dataset store starts with.
func (c *Config) SourceID() string {
	if c.Source.Kind == "file" {
		return c.Source.FilePath
	}
	return c.Source.SheetID
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("SHEET_ID"); v != "" {
		cfg.Source.Kind = "sheet"
		cfg.Source.SheetID = v
	}

	if v := os.Getenv("SOURCE_FILE"); v != "" {
		cfg.Source.Kind = "file"
		cfg.Source.FilePath = v
	}

	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}

	if v := os.Getenv("CHAT_API_URL"); v != "" {
		cfg.LLM.BaseURL = strings.TrimSuffix(strings.TrimSuffix(v, "/"), "/api/generate")
	}

	if v := os.Getenv("CHAT_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
	}

	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
		if cfg.Embedding.Provider == "none" {
			cfg.Embedding.Provider = "openai"
		}
	}

	if v := os.Getenv("VECTOR_ADAPTER"); v != "" {
		cfg.Vector.Adapter = v
	}

	if v := os.Getenv("PGVECTOR_DSN"); v != "" {
		cfg.Vector.PGVector.DSN = v
	}

	if v := os.Getenv("RETRIEVAL_PROFILE"); v != "" {
		cfg.Retrieval.Profile = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	if v := os.Getenv("API_KEYS"); v != "" {
		var keys []string
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		if len(keys) > 0 {
			cfg.Auth.Enabled = true
			cfg.Auth.APIKeys = keys
		}
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
