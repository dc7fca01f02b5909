package cache

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/agentuity/yieldcache/cache"

type produced[T any] struct {
	val   T
	found bool
}

// Materialize returns the value for config.Namespace/config.ResourceID.
//
// If the table holds an entry younger than the staleness threshold it is
// returned with found=true and produce is not called. Otherwise produce is
// called. If it returns found=true the value is stored and returned. If it
// returns found=false, nothing is stored and found=false is returned even when
// an older entry exists; that entry is left as it was. An error from produce is
// returned unchanged and leaves the table untouched.
//
// Without WithCoalescing, concurrent callers that all observe a stale entry
// each call their producer and the last store wins.
func Materialize[T any](ctx context.Context, config MaterializeConfig, t *Table, produce Producer[T]) (bool, T, error) {
	key := slot{namespace: config.Namespace, resourceID: config.ResourceID}
	staleAfter := config.StaleAfter
	if staleAfter <= 0 {
		staleAfter = t.cfg.staleAfter
	}

	entry, exists := t.load(key)
	if exists && t.cfg.clock.Since(entry.LastUpdated) < staleAfter {
		val, err := decode[T](t, entry.Value)
		if err != nil {
			var zero T
			return false, zero, err
		}
		t.hits.Add(1)
		if t.cfg.logger.IsTraceEnabled() {
			t.cfg.logger.Trace("cache hit %s (age %s)", key, t.cfg.clock.Since(entry.LastUpdated))
		}
		return true, val, nil
	}
	if exists {
		t.refreshes.Add(1)
	} else {
		t.misses.Add(1)
	}

	if !t.cfg.coalesce {
		return produceAndStore(ctx, config, key, t, produce)
	}

	v, err, shared := t.group.Do(key.flightKey(), func() (any, error) {
		found, val, err := produceAndStore(ctx, config, key, t, produce)
		if err != nil {
			return nil, err
		}
		return produced[T]{val: val, found: found}, nil
	})
	if err != nil {
		var zero T
		return false, zero, err
	}
	p, ok := v.(produced[T])
	if !ok {
		// The leader for this key asked for a different type.
		return produceAndStore(ctx, config, key, t, produce)
	}
	if shared && p.found && t.cfg.isolate {
		if e, ok := t.load(key); ok {
			val, err := decode[T](t, e.Value)
			if err != nil {
				var zero T
				return false, zero, err
			}
			return true, val, nil
		}
	}
	return p.found, p.val, nil
}

func produceAndStore[T any](ctx context.Context, config MaterializeConfig, key slot, t *Table, produce Producer[T]) (bool, T, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cache.materialize",
		trace.WithAttributes(
			attribute.String("cache.namespace", config.Namespace),
			attribute.String("cache.resource_id", config.ResourceID),
		),
	)
	defer span.End()

	val, found, err := produce(ctx)
	if err != nil {
		t.faults.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var zero T
		return false, zero, err
	}
	span.SetAttributes(attribute.Bool("cache.found", found))
	if !found {
		t.empty.Add(1)
		t.cfg.logger.Debug("producer for %s returned nothing, not caching", key)
		var zero T
		return false, zero, nil
	}

	// The caller still gets its value if the store fails; the slot keeps
	// whatever it held before.
	entry, err := t.store(key, val)
	if err != nil {
		t.cfg.logger.Warn("failed to store %s: %s", key, err)
		return true, val, nil
	}
	t.cfg.logger.Debug("materialized %s at %s", key, entry.LastUpdated.Format("2006-01-02T15:04:05.000Z07:00"))
	return true, val, nil
}

// decode converts a stored value into T. Isolated tables hold msgpack bytes,
// everything else holds the produced value as-is.
func decode[T any](t *Table, val any) (T, error) {
	var zero T
	if t.cfg.isolate {
		data, ok := val.([]byte)
		if !ok {
			return zero, fmt.Errorf("cache: expected encoded value, got %T", val)
		}
		var result T
		if err := msgpack.Unmarshal(data, &result); err != nil {
			return zero, fmt.Errorf("cache: failed to unmarshal value: %w", err)
		}
		return result, nil
	}
	if val == nil {
		// A nil interface value was produced and stored.
		return zero, nil
	}
	if typed, ok := val.(T); ok {
		return typed, nil
	}
	return zero, fmt.Errorf("cache: cannot convert value of type %T to %T", val, zero)
}
