// Package config loads the service configuration from YAML.
package config

import (
	"os"
	"slices"
	"time"

	"github.com/agentuity/yieldcache/cache"
	"github.com/agentuity/yieldcache/yield"
	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from strings such as "2h",
// "90m" or "1d".
type Duration time.Duration

// ParseDuration parses s as a Duration. Day and week units are accepted.
func ParseDuration(s string) (Duration, error) {
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %q", s)
	}
	return Duration(d), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return errors.Wrapf(err, "line %d: duration must be a string", node.Line)
	}
	parsed, err := ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "line %d", node.Line)
	}
	*d = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return str2duration.String(time.Duration(d)), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Cache configures the materializing cache table.
type Cache struct {
	StaleAfter Duration            `yaml:"staleAfter"`
	Shards     int                 `yaml:"shards"`
	Coalesce   bool                `yaml:"coalesce"`
	Isolate    bool                `yaml:"isolate"`
	Namespaces map[string]Duration `yaml:"namespaces,omitempty"`
}

// Config is the service configuration.
type Config struct {
	Listen   string `yaml:"listen"`
	Database string `yaml:"database"`
	Cache    Cache  `yaml:"cache"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:   ":8080",
		Database: "yield.db",
		Cache: Cache{
			StaleAfter: Duration(cache.DefaultStaleAfter),
			Shards:     cache.DefaultShards,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading config")
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parsing %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "validating %s", path)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen is required")
	}
	if c.Cache.StaleAfter <= 0 {
		return errors.Newf("cache.staleAfter must be positive, got %s", c.Cache.StaleAfter.Std())
	}
	if c.Cache.Shards <= 0 {
		return errors.Newf("cache.shards must be positive, got %d", c.Cache.Shards)
	}
	for ns, d := range c.Cache.Namespaces {
		if !slices.Contains(yield.Namespaces, ns) {
			return errors.Newf("cache.namespaces.%s is not a known namespace (want one of %v)", ns, yield.Namespaces)
		}
		if d <= 0 {
			return errors.Newf("cache.namespaces.%s must be positive, got %s", ns, d.Std())
		}
	}
	return nil
}

// CacheOptions converts the cache section into table options.
func (c Config) CacheOptions() []cache.Option {
	opts := []cache.Option{
		cache.WithStaleAfter(c.Cache.StaleAfter.Std()),
		cache.WithShards(c.Cache.Shards),
	}
	if c.Cache.Coalesce {
		opts = append(opts, cache.WithCoalescing())
	}
	if c.Cache.Isolate {
		opts = append(opts, cache.WithIsolation())
	}
	return opts
}
