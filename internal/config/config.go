// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Summarize SummarizeConfig `mapstructure:"summarize"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Parallel  ParallelConfig  `mapstructure:"parallel"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Sources   []SourceConfig  `mapstructure:"sources"`
}

// SourceConfig declares one article source in the config file.
type SourceConfig struct {
	ID     string `mapstructure:"id"`
	Name   string `mapstructure:"name"`
	URL    string `mapstructure:"url"`
	Active bool   `mapstructure:"active"`
	Format string `mapstructure:"format"`
	Topic  string `mapstructure:"topic"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// PipelineConfig governs coordinator behavior. Mode selects the cached path
// (small caps, cache in front of fetches) or the batch path (larger caps,
// parallel summarization).
type PipelineConfig struct {
	Mode          string `mapstructure:"mode"`
	PerSourceCap  int    `mapstructure:"per_source_cap"`
	CachedMax     int    `mapstructure:"cached_max"`
	BatchMax      int    `mapstructure:"batch_max"`
	Summarize     bool   `mapstructure:"summarize"`
	TargetWords   int    `mapstructure:"target_words"`
	SourceTimeout int    `mapstructure:"source_timeout_seconds"`
}

// FeedConfig controls feed retrieval.
type FeedConfig struct {
	MaxBytes       int64  `mapstructure:"max_bytes"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// ExtractConfig controls article page extraction.
type ExtractConfig struct {
	MaxBytes       int `mapstructure:"max_bytes"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MinLineLength  int `mapstructure:"min_line_length"`
}

// SummarizeConfig controls the external summarization backend.
type SummarizeConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// CacheConfig controls the fetch cache.
type CacheConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
	MaxEntries int `mapstructure:"max_entries"`
}

// ParallelConfig controls the batch processor worker pool.
type ParallelConfig struct {
	Workers               int `mapstructure:"workers"`
	MaxBatch              int `mapstructure:"max_batch"`
	ArticleTimeoutSeconds int `mapstructure:"article_timeout_seconds"`
	BatchBufferSeconds    int `mapstructure:"batch_buffer_seconds"`
}

// MemoryConfig sets the memory guard ceiling and tier thresholds as fractions
// of the ceiling.
type MemoryConfig struct {
	CeilingMB        int     `mapstructure:"ceiling_mb"`
	WarningFraction  float64 `mapstructure:"warning_fraction"`
	DangerFraction   float64 `mapstructure:"danger_fraction"`
	CriticalFraction float64 `mapstructure:"critical_fraction"`
}

// DBConfig controls access to the relational database. Provider is "postgres"
// or "memory".
type DBConfig struct {
	Provider     string `mapstructure:"provider"`
	DSN          string `mapstructure:"dsn"`
	MaxConns     int32  `mapstructure:"max_conns"`
	ArticleTable string `mapstructure:"article_table"`
	SourceTable  string `mapstructure:"source_table"`
}

// PubSubConfig holds metadata for publish-subscribe run notifications.
// Provider is "pubsub", "memory" or "" (disabled).
type PubSubConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Pipeline modes.
const (
	ModeCached = "cached"
	ModeBatch  = "batch"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("pipeline.mode", ModeCached)
	v.SetDefault("pipeline.per_source_cap", 3)
	v.SetDefault("pipeline.cached_max", 3)
	v.SetDefault("pipeline.batch_max", 30)
	v.SetDefault("pipeline.summarize", true)
	v.SetDefault("pipeline.target_words", 60)
	v.SetDefault("pipeline.source_timeout_seconds", 120)
	v.SetDefault("feed.max_bytes", 5*1024*1024)
	v.SetDefault("feed.timeout_seconds", 15)
	v.SetDefault("feed.user_agent", "newsblend-ingest/1.0 (+https://github.com/newsblend/ingest)")
	v.SetDefault("extract.max_bytes", 2*1024*1024)
	v.SetDefault("extract.timeout_seconds", 15)
	v.SetDefault("extract.min_line_length", 20)
	v.SetDefault("summarize.model", "gpt-4o-mini")
	v.SetDefault("summarize.temperature", 0.3)
	v.SetDefault("summarize.max_tokens", 400)
	v.SetDefault("summarize.timeout_seconds", 20)
	v.SetDefault("cache.ttl_seconds", 300)
	v.SetDefault("cache.max_entries", 100)
	v.SetDefault("parallel.workers", 1)
	v.SetDefault("parallel.max_batch", 30)
	v.SetDefault("parallel.article_timeout_seconds", 30)
	v.SetDefault("parallel.batch_buffer_seconds", 10)
	v.SetDefault("memory.ceiling_mb", 512)
	v.SetDefault("memory.warning_fraction", 0.6)
	v.SetDefault("memory.danger_fraction", 0.75)
	v.SetDefault("memory.critical_fraction", 0.9)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.article_table", "articles")
	v.SetDefault("db.source_table", "sources")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.Mode != ModeCached && c.Pipeline.Mode != ModeBatch {
		return fmt.Errorf("pipeline.mode must be %q or %q", ModeCached, ModeBatch)
	}
	if c.Pipeline.PerSourceCap <= 0 {
		return fmt.Errorf("pipeline.per_source_cap must be > 0")
	}
	if c.Feed.MaxBytes <= 0 {
		return fmt.Errorf("feed.max_bytes must be > 0")
	}
	if c.Parallel.Workers <= 0 {
		return fmt.Errorf("parallel.workers must be > 0")
	}
	if c.Parallel.ArticleTimeoutSeconds <= 0 {
		return fmt.Errorf("parallel.article_timeout_seconds must be > 0")
	}
	if c.DB.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db.provider is postgres")
	}
	if c.PubSub.Provider == "pubsub" && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub.provider is pubsub")
	}
	for i, s := range c.Sources {
		if s.ID == "" || s.URL == "" {
			return fmt.Errorf("sources[%d] must set id and url", i)
		}
	}
	if c.Memory.CriticalFraction <= c.Memory.DangerFraction ||
		c.Memory.DangerFraction <= c.Memory.WarningFraction {
		return fmt.Errorf("memory tier fractions must increase warning < danger < critical")
	}
	return nil
}

// GlobalMax returns the hard result ceiling for the configured mode.
func (c Config) GlobalMax() int {
	if c.Pipeline.Mode == ModeBatch {
		return c.Pipeline.BatchMax
	}
	return c.Pipeline.CachedMax
}

// FeedTimeout converts the feed timeout into a duration.
func (c Config) FeedTimeout() time.Duration {
	return time.Duration(c.Feed.TimeoutSeconds) * time.Second
}

// SourceTimeout converts the per-source budget into a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Pipeline.SourceTimeout) * time.Second
}
