package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-catalog.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// Snapshot store (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Embedding provider used for column and free-text query vectors
	Embedding EmbeddingConfig `yaml:"embedding"`

	Similarity SimilarityConfig `yaml:"similarity"`

	// Importance scoring parameters. The ordinal levels are the contract;
	// these numbers are tunable.
	Importance ImportanceConfig `yaml:"importance"`
}

// DatabaseConfig holds PostgreSQL snapshot store configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_catalog"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// EmbeddingConfig configures the OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url" env:"EMBEDDING_BASE_URL" env-default:"https://api.openai.com/v1"`
	Model   string `yaml:"model" env:"EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	APIKey  string `yaml:"-" env:"EMBEDDING_API_KEY"` // Secret - not in YAML
	// Dimension is the expected vector length D. Vectors of any other length are rejected.
	Dimension     int `yaml:"dimension" env:"EMBEDDING_DIMENSION" env-default:"1536"`
	MaxConcurrent int `yaml:"max_concurrent" env:"EMBEDDING_MAX_CONCURRENT" env-default:"8"`
	BatchSize     int `yaml:"batch_size" env:"EMBEDDING_BATCH_SIZE" env-default:"32"`
}

// SimilarityConfig configures the nearest-neighbor index.
type SimilarityConfig struct {
	Metric   string `yaml:"metric" env:"SIMILARITY_METRIC" env-default:"l2"`
	DefaultK int    `yaml:"default_k" env:"SIMILARITY_DEFAULT_K" env-default:"5"`
}

// ImportanceConfig holds the role scores, reference-count bands and level cutoffs.
type ImportanceConfig struct {
	PKFKScore   int `yaml:"pk_fk_score" env:"IMPORTANCE_PK_FK_SCORE" env-default:"5"`
	PKScore     int `yaml:"pk_score" env:"IMPORTANCE_PK_SCORE" env-default:"3"`
	FKScore     int `yaml:"fk_score" env:"IMPORTANCE_FK_SCORE" env-default:"2"`
	NormalScore int `yaml:"normal_score" env:"IMPORTANCE_NORMAL_SCORE" env-default:"0"`

	HighReferenceThreshold   int `yaml:"high_reference_threshold" env:"IMPORTANCE_HIGH_REFERENCE_THRESHOLD" env-default:"5"`
	MediumReferenceThreshold int `yaml:"medium_reference_threshold" env:"IMPORTANCE_MEDIUM_REFERENCE_THRESHOLD" env-default:"2"`
	HighReferenceBonus       int `yaml:"high_reference_bonus" env:"IMPORTANCE_HIGH_REFERENCE_BONUS" env-default:"3"`
	MediumReferenceBonus     int `yaml:"medium_reference_bonus" env:"IMPORTANCE_MEDIUM_REFERENCE_BONUS" env-default:"2"`
	LowReferenceBonus        int `yaml:"low_reference_bonus" env:"IMPORTANCE_LOW_REFERENCE_BONUS" env-default:"1"`

	MaximaCutoff int `yaml:"maxima_cutoff" env:"IMPORTANCE_MAXIMA_CUTOFF" env-default:"5"`
	AltaCutoff   int `yaml:"alta_cutoff" env:"IMPORTANCE_ALTA_CUTOFF" env-default:"3"`
	MediaCutoff  int `yaml:"media_cutoff" env:"IMPORTANCE_MEDIA_CUTOFF" env-default:"1"`
}

// Load reads configuration from the YAML file at path with environment variable
// overrides. If path is empty or the file does not exist, only environment
// variables (and defaults) are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		} else if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.Similarity.Metric = strings.ToLower(strings.TrimSpace(cfg.Similarity.Metric))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks invariants that cleanenv cannot express.
func (c *Config) Validate() error {
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.MaxConcurrent < 1 {
		return fmt.Errorf("embedding.max_concurrent must be at least 1, got %d", c.Embedding.MaxConcurrent)
	}
	if c.Embedding.BatchSize < 1 {
		return fmt.Errorf("embedding.batch_size must be at least 1, got %d", c.Embedding.BatchSize)
	}
	switch c.Similarity.Metric {
	case "l2", "cosine":
	default:
		return fmt.Errorf("similarity.metric must be l2 or cosine, got %q", c.Similarity.Metric)
	}
	if c.Similarity.DefaultK < 1 {
		return fmt.Errorf("similarity.default_k must be at least 1, got %d", c.Similarity.DefaultK)
	}
	return c.Importance.Validate()
}

// Validate ensures the scoring parameters keep the level mapping monotonic.
func (c *ImportanceConfig) Validate() error {
	if !(c.MaximaCutoff > c.AltaCutoff && c.AltaCutoff > c.MediaCutoff) {
		return fmt.Errorf("importance cutoffs must be strictly decreasing (maxima %d, alta %d, media %d)",
			c.MaximaCutoff, c.AltaCutoff, c.MediaCutoff)
	}
	if !(c.HighReferenceThreshold > c.MediumReferenceThreshold && c.MediumReferenceThreshold > 1) {
		return fmt.Errorf("reference thresholds must satisfy high > medium > 1 (high %d, medium %d)",
			c.HighReferenceThreshold, c.MediumReferenceThreshold)
	}
	if !(c.HighReferenceBonus >= c.MediumReferenceBonus && c.MediumReferenceBonus >= c.LowReferenceBonus && c.LowReferenceBonus >= 0) {
		return fmt.Errorf("reference bonuses must be non-negative and non-increasing from high to low")
	}
	if !(c.PKFKScore >= c.PKScore && c.PKScore >= c.FKScore && c.FKScore >= c.NormalScore) {
		return fmt.Errorf("role scores must satisfy pk_fk >= pk >= fk >= normal")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection URL for the snapshot store.
func (c *DatabaseConfig) ConnectionString() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
