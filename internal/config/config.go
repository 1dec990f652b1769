// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Storage    StorageConfig    `mapstructure:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// JobsConfig governs executor pool and queue behavior.
type JobsConfig struct {
	Workers         int `mapstructure:"workers"`
	QueueDepth      int `mapstructure:"queue_depth"`
	EnqueueTimeoutS int `mapstructure:"enqueue_timeout_seconds"`
}

// CacheConfig controls the two-tier result cache.
type CacheConfig struct {
	TTLHours int            `mapstructure:"ttl_hours"`
	Remote   RemoteDBConfig `mapstructure:"remote"`
}

// RemoteDBConfig configures the optional Postgres tier.
type RemoteDBConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RetrievalConfig tunes the transcript fetcher.
type RetrievalConfig struct {
	UserAgent      string   `mapstructure:"user_agent"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	Languages      []string `mapstructure:"languages"`
}

// EnrichmentConfig holds the multimodal analysis client settings.
type EnrichmentConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
}

// StreamConfig tunes the status stream polling loop.
type StreamConfig struct {
	PollIntervalMs     int `mapstructure:"poll_interval_ms"`
	HeartbeatIntervalS int `mapstructure:"heartbeat_interval_seconds"`
}

// StorageConfig sets the artifact archive destination.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RECIPE")
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
	v.SetDefault("server.port", 8000)
	v.SetDefault("logging.development", true)
	v.SetDefault("jobs.workers", 4)
	v.SetDefault("jobs.queue_depth", 64)
	v.SetDefault("jobs.enqueue_timeout_seconds", 5)
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("cache.remote.enabled", false)
	v.SetDefault("cache.remote.table", "recipe_cache")
	v.SetDefault("retrieval.user_agent", "recipe-engine/1.0")
	v.SetDefault("retrieval.timeout_seconds", 15)
	v.SetDefault("retrieval.languages", []string{"zh-HK", "zh-TW", "en", "zh-CN"})
	v.SetDefault("enrichment.model", "gemini-2.5-flash")
	v.SetDefault("enrichment.timeout_seconds", 120)
	v.SetDefault("enrichment.max_retries", 2)
	v.SetDefault("stream.poll_interval_ms", 1000)
	v.SetDefault("stream.heartbeat_interval_seconds", 15)
	v.SetDefault("storage.provider", "noop")
	v.SetDefault("storage.prefix", "artifacts")
	v.SetDefault("pubsub.provider", "memory")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers must be > 0")
	}
	if c.Jobs.QueueDepth <= 0 {
		return fmt.Errorf("jobs.queue_depth must be > 0")
	}
	if c.Cache.TTLHours <= 0 {
		return fmt.Errorf("cache.ttl_hours must be > 0")
	}
	if c.Cache.Remote.Enabled && c.Cache.Remote.DSN == "" {
		return fmt.Errorf("cache.remote.dsn must be set when the remote tier is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
	}
	if c.Storage.Provider == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir must be set when storage.provider is local")
	}
	if c.PubSub.Provider == "pubsub" && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub.provider is pubsub")
	}
	return nil
}

// CacheTTL converts the configured TTL into a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// EnqueueTimeout bounds how long admission waits for queue space.
func (c Config) EnqueueTimeout() time.Duration {
	return time.Duration(c.Jobs.EnqueueTimeoutS) * time.Second
}

// PollInterval is the status stream sampling period.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Stream.PollIntervalMs) * time.Millisecond
}

// HeartbeatInterval is the idle keepalive period for status streams.
func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Stream.HeartbeatIntervalS) * time.Second
}
