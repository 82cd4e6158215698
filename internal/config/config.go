// Package config loads and validates feedscout configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/feedscout/internal/feed"
)

// Store backends accepted by store.backend.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendGCS      = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Store     StoreConfig     `mapstructure:"store"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Seeds     []SeedConfig    `mapstructure:"seeds"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// FetchConfig governs how feed documents are downloaded.
type FetchConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	MaxBodyBytes  int           `mapstructure:"max_body_bytes"`
	RatePerHost   float64       `mapstructure:"rate_per_host"`
	Burst         int           `mapstructure:"burst"`
}

// DiscoveryConfig holds crawl defaults applied when a request omits them.
type DiscoveryConfig struct {
	DefaultDepth     int    `mapstructure:"default_depth"`
	MaxDepthLimit    int    `mapstructure:"max_depth_limit"`
	DefaultPriority  string `mapstructure:"default_priority"`
	RecursiveDefault bool   `mapstructure:"recursive_default"`

	// RequestTimeout bounds a discovery API call. Zero leaves crawls unbounded.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// StoreConfig selects and configures the registry persistence backend.
type StoreConfig struct {
	Backend  string         `mapstructure:"backend"`
	File     FileConfig     `mapstructure:"file"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	GCS      GCSConfig      `mapstructure:"gcs"`
}

// FileConfig locates the JSON registry document.
type FileConfig struct {
	Path string `mapstructure:"path"`
}

// SQLiteConfig locates the SQLite database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// GCSConfig names the object holding the registry document.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Object string `mapstructure:"object"`
}

// NotifyConfig holds metadata for publish-subscribe notifications.
type NotifyConfig struct {
	PubSub PubSubConfig `mapstructure:"pubsub"`
}

// PubSubConfig identifies the feeds-added topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// Enabled reports whether both project and topic are configured.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.TopicID != ""
}

// SeedConfig is a feed registered manually at startup.
type SeedConfig struct {
	URL      string `mapstructure:"url"`
	Type     string `mapstructure:"type"`
	Title    string `mapstructure:"title"`
	Priority string `mapstructure:"priority"`
	Status   string `mapstructure:"status"`
}

// Feed converts the seed into a registry entry. Empty enum fields are left
// for the registry to default.
func (s SeedConfig) Feed() feed.Feed {
	return feed.Feed{
		OriginalURL: strings.TrimSpace(s.URL),
		Kind:        feed.Kind(s.Type),
		Title:       s.Title,
		Priority:    feed.Priority(s.Priority),
		Status:      feed.Status(s.Status),
		Source:      feed.SourceManual,
	}
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FEEDSCOUT")
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
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("fetch.user_agent", "feedscout/0.1 (+https://github.com/JakeFAU/feedscout)")
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.max_body_bytes", 10<<20)
	v.SetDefault("fetch.rate_per_host", 2.0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("discovery.default_depth", 2)
	v.SetDefault("discovery.max_depth_limit", 5)
	v.SetDefault("discovery.default_priority", string(feed.PriorityExtended))
	v.SetDefault("discovery.recursive_default", true)
	v.SetDefault("discovery.request_timeout", 0)
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.file.path", "feeds.json")
	v.SetDefault("store.sqlite.path", "feedscout.db")
	v.SetDefault("store.postgres.table", "feeds")
	v.SetDefault("store.gcs.object", "feeds.json")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Fetch.Timeout <= 0 {
		return errors.New("fetch.timeout must be > 0")
	}
	if c.Fetch.RatePerHost < 0 {
		return errors.New("fetch.rate_per_host must be >= 0")
	}
	if c.Discovery.RequestTimeout < 0 {
		return errors.New("discovery.request_timeout must be >= 0")
	}
	if c.Discovery.MaxDepthLimit < 0 {
		return errors.New("discovery.max_depth_limit must be >= 0")
	}
	if c.Discovery.DefaultDepth < 0 || c.Discovery.DefaultDepth > c.Discovery.MaxDepthLimit {
		return fmt.Errorf("discovery.default_depth must be between 0 and %d", c.Discovery.MaxDepthLimit)
	}
	if _, err := feed.ParsePriority(c.Discovery.DefaultPriority); err != nil {
		return fmt.Errorf("discovery.default_priority: %w", err)
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if (c.Notify.PubSub.ProjectID == "") != (c.Notify.PubSub.TopicID == "") {
		return errors.New("notify.pubsub.project_id and notify.pubsub.topic_id must be set together")
	}
	for i, seed := range c.Seeds {
		if _, err := feed.ValidateURL(seed.URL); err != nil {
			return fmt.Errorf("seeds[%d]: %w", i, err)
		}
	}
	return nil
}

func (s StoreConfig) validate() error {
	switch s.Backend {
	case BackendMemory:
	case BackendFile:
		if s.File.Path == "" {
			return errors.New("store.file.path is required for the file backend")
		}
	case BackendSQLite:
		if s.SQLite.Path == "" {
			return errors.New("store.sqlite.path is required for the sqlite backend")
		}
	case BackendPostgres:
		if s.Postgres.DSN == "" {
			return errors.New("store.postgres.dsn is required for the postgres backend")
		}
	case BackendGCS:
		if s.GCS.Bucket == "" {
			return errors.New("store.gcs.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported", s.Backend)
	}
	return nil
}
