// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zapdeals/zapdeals/internal/cleaning"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Crawler      CrawlerConfig      `mapstructure:"crawler"`
	Cleaning     CleaningConfig     `mapstructure:"cleaning"`
	Geodata      GeodataConfig      `mapstructure:"geodata"`
	BrasilAberto BrasilAbertoConfig `mapstructure:"brasilaberto"`
	Storage      StorageConfig      `mapstructure:"storage"`
	DB           DBConfig           `mapstructure:"db"`
	PubSub       PubSubConfig       `mapstructure:"pubsub"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs the listings fetch loop.
type CrawlerConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxAttempts      int    `mapstructure:"max_attempts"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	StaleAfterDays   int    `mapstructure:"stale_after_days"`
	// Seed fixes the street-number and jitter randomness; 0 means derive
	// one per run.
	Seed int64 `mapstructure:"seed"`
}

// CleaningConfig tunes the batch cleaning pipeline.
type CleaningConfig struct {
	MaxPlausibleAreaM2 int      `mapstructure:"max_plausible_area_m2"`
	OutlierPolicy      string   `mapstructure:"outlier_policy"`
	MinCohortSize      int      `mapstructure:"min_cohort_size"`
	DedupIncludeFloor  bool     `mapstructure:"dedup_include_floor"`
	DenyList           []string `mapstructure:"deny_list"`
}

// GeodataConfig configures the satellite and transit enrichment clients.
type GeodataConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	MapboxToken    string `mapstructure:"mapbox_token"`
	OverpassURL    string `mapstructure:"overpass_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// BrasilAbertoConfig configures the zip-code registry client.
type BrasilAbertoConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// StorageConfig selects the raw page archive backend.
type StorageConfig struct {
	// Provider is one of "gcs", "local" or "none".
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMin int    `mapstructure:"max_conn_lifetime_minutes"`
}

// MaxConnLifetime returns the pool connection lifetime as a duration.
func (d DBConfig) MaxConnLifetime() time.Duration {
	return time.Duration(d.MaxConnLifetimeMin) * time.Minute
}

// PubSubConfig holds metadata for batch-event notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ZAPDEALS")
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
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("crawler.user_agent",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("crawler.timeout_seconds", 30)
	v.SetDefault("crawler.max_attempts", 8)
	v.SetDefault("crawler.backoff_initial_ms", 500)
	v.SetDefault("crawler.backoff_max_ms", 60000)
	v.SetDefault("crawler.stale_after_days", 30)
	v.SetDefault("cleaning.max_plausible_area_m2", 700)
	v.SetDefault("cleaning.outlier_policy", string(cleaning.OutlierPolicyConjunction))
	v.SetDefault("cleaning.min_cohort_size", 4)
	v.SetDefault("cleaning.dedup_include_floor", false)
	v.SetDefault("cleaning.deny_list", cleaning.DefaultDenyList)
	v.SetDefault("geodata.enabled", true)
	v.SetDefault("geodata.timeout_seconds", 60)
	v.SetDefault("brasilaberto.max_attempts", 10)
	v.SetDefault("brasilaberto.timeout_seconds", 15)
	v.SetDefault("storage.provider", "none")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Provider {
	case "none", "local", "gcs":
	default:
		return fmt.Errorf("storage.provider must be one of none, local, gcs")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for the gcs provider")
	}
	if c.Storage.Provider == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir must be set for the local provider")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if err := c.CleaningConfig().Validate(); err != nil {
		return err
	}
	return nil
}

// CleaningConfig converts the raw knobs into the pipeline's config type.
func (c Config) CleaningConfig() cleaning.Config {
	return cleaning.Config{
		DenyList:           c.Cleaning.DenyList,
		MaxPlausibleAreaM2: c.Cleaning.MaxPlausibleAreaM2,
		OutlierPolicy:      cleaning.OutlierPolicy(c.Cleaning.OutlierPolicy),
		MinCohortSize:      c.Cleaning.MinCohortSize,
		DedupIncludeFloor:  c.Cleaning.DedupIncludeFloor,
	}
}

// CrawlerTimeout returns the listings request timeout as a duration.
func (c Config) CrawlerTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// StaleAfter returns the stale-listing purge window as a duration.
func (c Config) StaleAfter() time.Duration {
	return time.Duration(c.Crawler.StaleAfterDays) * 24 * time.Hour
}
