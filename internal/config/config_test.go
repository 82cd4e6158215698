package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/feedscout/internal/feed"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 15*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 2, cfg.Discovery.DefaultDepth)
	assert.Equal(t, 5, cfg.Discovery.MaxDepthLimit)
	assert.True(t, cfg.Discovery.RecursiveDefault)
	assert.Zero(t, cfg.Discovery.RequestTimeout)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.False(t, cfg.Notify.PubSub.Enabled())
	assert.Empty(t, cfg.Seeds)
}

func TestLoadWithFileOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  request_timeout: 30s
logging:
  development: false
  level: warn
fetch:
  user_agent: test-agent
  timeout: 5s
  respect_robots: true
  rate_per_host: 0.5
  burst: 2
discovery:
  default_depth: 3
  max_depth_limit: 4
  default_priority: low
store:
  backend: sqlite
  sqlite:
    path: /tmp/feeds.db
notify:
  pubsub:
    project_id: proj
    topic_id: feeds-added
seeds:
  - url: https://example.com/album.xml
    title: Night Drive
    priority: core
  - url: https://example.com/label.xml
    type: publisher
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.InDelta(t, 0.5, cfg.Fetch.RatePerHost, 1e-9)
	assert.Equal(t, 4, cfg.Discovery.MaxDepthLimit)
	assert.Equal(t, "/tmp/feeds.db", cfg.Store.SQLite.Path)
	assert.True(t, cfg.Notify.PubSub.Enabled())

	require.Len(t, cfg.Seeds, 2)
	seed := cfg.Seeds[0].Feed()
	assert.Equal(t, "https://example.com/album.xml", seed.OriginalURL)
	assert.Equal(t, feed.PriorityCore, seed.Priority)
	assert.Equal(t, feed.SourceManual, seed.Source)
	assert.Equal(t, feed.KindPublisher, cfg.Seeds[1].Feed().Kind)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FEEDSCOUT_SERVER_PORT", "7070")
	t.Setenv("FEEDSCOUT_STORE_BACKEND", "file")
	t.Setenv("FEEDSCOUT_STORE_FILE_PATH", "/var/lib/feedscout/feeds.json")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, BackendFile, cfg.Store.Backend)
	assert.Equal(t, "/var/lib/feedscout/feeds.json", cfg.Store.File.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Server:    ServerConfig{Port: 8080},
			Fetch:     FetchConfig{Timeout: time.Second},
			Discovery: DiscoveryConfig{DefaultDepth: 2, MaxDepthLimit: 5},
			Store:     StoreConfig{Backend: BackendMemory},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }, errMsg: "server.port"},
		{name: "timeout", mutate: func(c *Config) { c.Fetch.Timeout = 0 }, errMsg: "fetch.timeout"},
		{name: "depth above limit", mutate: func(c *Config) { c.Discovery.DefaultDepth = 6 }, errMsg: "default_depth"},
		{name: "discovery timeout", mutate: func(c *Config) { c.Discovery.RequestTimeout = -time.Second }, errMsg: "discovery.request_timeout"},
		{name: "priority", mutate: func(c *Config) { c.Discovery.DefaultPriority = "urgent" }, errMsg: "default_priority"},
		{name: "backend", mutate: func(c *Config) { c.Store.Backend = "redis" }, errMsg: "not supported"},
		{name: "postgres dsn", mutate: func(c *Config) { c.Store.Backend = BackendPostgres }, errMsg: "dsn"},
		{name: "gcs bucket", mutate: func(c *Config) { c.Store.Backend = BackendGCS }, errMsg: "bucket"},
		{name: "pubsub pair", mutate: func(c *Config) { c.Notify.PubSub.ProjectID = "p" }, errMsg: "set together"},
		{
			name:   "seed url",
			mutate: func(c *Config) { c.Seeds = []SeedConfig{{URL: "ftp://example.com/x"}} },
			errMsg: "seeds[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}
