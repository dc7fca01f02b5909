package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/log/noop"
)

func TestOtelLoggerWithMergesMetadata(t *testing.T) {
	base := NewOtelLogger(noop.NewLoggerProvider().Logger("test"), LevelTrace)

	first := base.With(map[string]interface{}{
		"base_key": "base_value",
		"shared":   "from_base",
	}).(*otelLogger)

	extended := first.With(map[string]interface{}{
		"extra_key": "extra_value",
		"shared":    "from_extended",
	}).(*otelLogger)

	assert.Len(t, extended.metadata, 3)
	assert.Equal(t, "base_value", extended.metadata["base_key"].AsString())
	assert.Equal(t, "extra_value", extended.metadata["extra_key"].AsString())
	assert.Equal(t, "from_extended", extended.metadata["shared"].AsString())
	assert.Equal(t, "from_base", first.metadata["shared"].AsString())
}

func TestOtelLoggerLevels(t *testing.T) {
	l := NewOtelLogger(noop.NewLoggerProvider().Logger("test"), LevelWarn)
	assert.False(t, l.IsDebugEnabled())
	assert.False(t, l.IsTraceEnabled())
	assert.True(t, l.IsLevelEnabled(LevelError))
	assert.False(t, l.IsLevelEnabled(LevelNone))
}

func TestOtelLoggerPrefixAndContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), struct{}{}, "x")
	l := NewOtelLogger(noop.NewLoggerProvider().Logger("test"), LevelTrace).
		WithPrefix("[cache]").
		WithPrefix("[cache]").
		WithContext(ctx).(*otelLogger)
	assert.Equal(t, []string{"[cache]"}, l.prefixes)
	assert.Equal(t, ctx, l.context)
	l.Info("hello %s", "world")
}
