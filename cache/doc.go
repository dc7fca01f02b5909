// Package cache provides a keyed TTL cache that materializes values on demand.
//
// # Table
//
// A [Table] multiplexes many logical resources through one in-process map.
// Each entry is addressed by a namespace (the kind of resource, for example a
// query shape) and a resource id. The pair is the address; [Key] joins the two
// with [KeySeparator] only for logs and spans. Entries age independently and are regenerated lazily on the
// calling path. There is no background refresh goroutine, no eviction and no
// Close: a Table is created once at process start and lives as long as the
// service that owns it.
//
//	tbl := cache.New(cache.WithStaleAfter(2 * time.Hour))
//
// The map is split into shards (see [WithShards]) chosen by xxhash of the
// pair. Each shard has its own lock so materializations of unrelated
// keys do not contend.
//
// # Materialize
//
// [Materialize] is a cache-aside helper that combines lookup and population:
//
//	found, rows, err := cache.Materialize(ctx, cache.MaterializeConfig{
//	    Namespace:  "yieldHistory",
//	    ResourceID: poolID,
//	}, tbl, func(ctx context.Context) ([]Point, bool, error) {
//	    rows, err := repo.History(ctx, poolID)
//	    return rows, len(rows) > 0, err
//	})
//
// The [Producer] returns (value, found, error). The found bool distinguishes
// "nothing to materialize" from a produced value. When found is false nothing
// is stored, any older entry is left in place, and found=false is returned to
// the caller. The stale entry is deliberately not served in that case. Every
// later call retries the producer until one succeeds.
//
// # Errors
//
// The cache defines no error kinds of its own for producer outcomes. An error
// returned by a producer is passed back to the caller unchanged and the table
// is not modified. The only errors originating here are type conversion
// failures, when two call sites read the same key as different types, and
// decoding failures for isolated tables.
//
// # Concurrency
//
// Concurrent callers are safe. By default the staleness check is not
// coordinated: two callers that both observe a stale entry both run their
// producer and the last store wins. [WithCoalescing] collapses concurrent
// misses for one key into a single producer call via singleflight; the call
// then runs with the first caller's context.
//
// The cache never imposes a deadline. If a producer hangs, Materialize hangs.
// Wrap the producer with [WithTimeout] to bound it.
//
// # Isolation
//
// By default values are stored as-is, so a caller that mutates a returned
// slice or map mutates the slot. [WithIsolation] stores a msgpack encoding of
// the value instead and decodes a private copy for every read. Struct fields
// must be exported to survive encoding.
//
// # Time
//
// Entries are aged against a [github.com/jonboulle/clockwork.Clock]. Tests
// inject a fake clock with [WithClock] and advance it to cross staleness
// thresholds. An entry is fresh while its age is strictly less than the
// threshold.
package cache
