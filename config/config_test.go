package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentuity/yieldcache/cache"
	"github.com/agentuity/yieldcache/yield"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, cache.DefaultStaleAfter, cfg.Cache.StaleAfter.Std())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
database: "/var/lib/yield.db"
cache:
  staleAfter: 1d
  shards: 8
  coalesce: true
  namespaces:
    yieldHistoryHourly: 30m
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "/var/lib/yield.db", cfg.Database)
	assert.Equal(t, 24*time.Hour, cfg.Cache.StaleAfter.Std())
	assert.Equal(t, 8, cfg.Cache.Shards)
	assert.True(t, cfg.Cache.Coalesce)
	assert.False(t, cfg.Cache.Isolate)
	assert.Equal(t, 30*time.Minute, cfg.Cache.Namespaces["yieldHistoryHourly"].Std())
	assert.Len(t, cfg.CacheOptions(), 3)
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := Load(writeConfig(t, "listen: \":1234\"\n"))
	require.NoError(t, err)
	assert.Equal(t, ":1234", cfg.Listen)
	assert.Equal(t, cache.DefaultShards, cfg.Cache.Shards)
	assert.Equal(t, cache.DefaultStaleAfter, cfg.Cache.StaleAfter.Std())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config")

	_, err = Load(writeConfig(t, "cache:\n  staleAfter: soon\n"))
	assert.ErrorContains(t, err, `invalid duration "soon"`)

	_, err = Load(writeConfig(t, "cache:\n  shards: 0\n"))
	assert.ErrorContains(t, err, "cache.shards must be positive")

	_, err = Load(writeConfig(t, "cache:\n  namespaces:\n    yieldHistory: 0s\n"))
	assert.ErrorContains(t, err, "cache.namespaces.yieldHistory must be positive")

	_, err = Load(writeConfig(t, "cache:\n  namespaces:\n    yieldHistroy: 1h\n"))
	assert.ErrorContains(t, err, "cache.namespaces.yieldHistroy is not a known namespace")
}

func TestValidateAcceptsEveryNamespace(t *testing.T) {
	cfg := Default()
	cfg.Cache.Namespaces = map[string]Duration{}
	for _, ns := range yield.Namespaces {
		cfg.Cache.Namespaces[ns] = Duration(time.Hour)
	}
	assert.NoError(t, cfg.Validate())
}

func TestDurationRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(Cache{StaleAfter: Duration(2 * time.Hour), Shards: 1})
	require.NoError(t, err)
	assert.Contains(t, string(out), "staleAfter: 2h")

	var c Cache
	require.NoError(t, yaml.Unmarshal(out, &c))
	assert.Equal(t, 2*time.Hour, c.StaleAfter.Std())
}
