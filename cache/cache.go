package cache

import (
	"context"
	"time"

	"github.com/agentuity/yieldcache/logger"
	"github.com/jonboulle/clockwork"
)

// DefaultStaleAfter is the age after which an entry is re-materialized when
// neither the table nor the call configures one.
const DefaultStaleAfter = 2 * time.Hour

// DefaultShards is the number of independently locked shards in a Table.
const DefaultShards = 32

// KeySeparator joins a namespace and a resource id into a composite key.
const KeySeparator = "/"

// Key returns the composite key for a namespace and resource id as it
// appears in logs and spans. Entries are addressed by the pair itself, so
// ("a", "b/c") and ("a/b", "c") share a display key but never a slot.
func Key(namespace, resourceID string) string {
	return namespace + KeySeparator + resourceID
}

// Entry is the last successful materialization of a key.
type Entry struct {
	Value       any
	LastUpdated time.Time
}

// Producer materializes the value for a key. The bool return reports whether
// a value was produced. Return false to signal "nothing to materialize"
// without caching anything; the next call will invoke the producer again.
// A non-nil error is returned to the caller of Materialize unchanged.
type Producer[T any] func(ctx context.Context) (T, bool, error)

// MaterializeConfig configures a single Materialize call.
type MaterializeConfig struct {
	// Namespace identifies the kind of resource. Required.
	Namespace string
	// ResourceID identifies the resource within the namespace. Required.
	ResourceID string
	// StaleAfter is the maximum age of a served entry. Defaults to the
	// table's configured value if zero.
	StaleAfter time.Duration
}

// Stats is a snapshot of a table's counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Refreshes int64 `json:"refreshes"`
	Empty     int64 `json:"empty"`
	Faults    int64 `json:"faults"`
	Entries   int   `json:"entries"`
}

// config holds the resolved configuration for a Table.
type config struct {
	staleAfter time.Duration
	shards     int
	clock      clockwork.Clock
	logger     logger.Logger
	coalesce   bool
	isolate    bool
}

// Option configures a Table.
type Option func(*config)

func defaultConfig() config {
	return config{
		staleAfter: DefaultStaleAfter,
		shards:     DefaultShards,
		clock:      clockwork.NewRealClock(),
		logger:     logger.NewConsoleLogger(logger.LevelNone),
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.shards <= 0 {
		cfg.shards = DefaultShards
	}
	if cfg.staleAfter <= 0 {
		cfg.staleAfter = DefaultStaleAfter
	}
	return cfg
}

// WithStaleAfter sets the default staleness threshold. Used when
// MaterializeConfig.StaleAfter is zero. Defaults to DefaultStaleAfter (2 hours).
func WithStaleAfter(d time.Duration) Option {
	return func(c *config) { c.staleAfter = d }
}

// WithShards sets the number of shards. Defaults to DefaultShards.
func WithShards(n int) Option {
	return func(c *config) { c.shards = n }
}

// WithClock sets the time source used to age entries.
func WithClock(clock clockwork.Clock) Option {
	return func(c *config) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the logger. Defaults to a silent console logger.
func WithLogger(log logger.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithCoalescing makes concurrent misses for the same key share a single
// producer call. Without it every caller that observes a stale or absent
// entry runs its own producer and the last store wins.
func WithCoalescing() Option {
	return func(c *config) { c.coalesce = true }
}

// WithIsolation stores msgpack encoded copies of produced values so that
// callers mutating a returned value can never change what the slot holds.
func WithIsolation() Option {
	return func(c *config) { c.isolate = true }
}

// WithTimeout wraps a producer so each invocation runs with a deadline.
func WithTimeout[T any](produce Producer[T], d time.Duration) Producer[T] {
	return func(ctx context.Context) (T, bool, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return produce(ctx)
	}
}
