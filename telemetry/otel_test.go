package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentuity/yieldcache/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestGenerateOTLPBearerToken(t *testing.T) {
	token, err := GenerateOTLPBearerToken("test-shared-secret", "test-token")
	assert.NoError(t, err)
	parts := strings.Split(token, ".")
	assert.Len(t, parts, 2)
	assert.Equal(t, "test-token", parts[0])

	again, err := GenerateOTLPBearerToken("test-shared-secret", "test-token")
	assert.NoError(t, err)
	assert.Equal(t, token, again)

	other, err := GenerateOTLPBearerToken("other-secret", "test-token")
	assert.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestGenerateOTLPBearerTokenWithExpiration(t *testing.T) {
	token, err := GenerateOTLPBearerTokenWithExpiration("test-shared-secret", time.Now().Add(time.Hour))
	assert.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)
	assert.True(t, strings.HasPrefix(token, "1h."+strconv.FormatInt(time.Now().Unix(), 10)+"."), token)

	long, err := GenerateOTLPBearerTokenWithExpiration("test-shared-secret", time.Now().Add(30*24*time.Hour))
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(long, "4w"), long)
}

func TestGenerateOTLPBearerTokenError(t *testing.T) {
	token, err := GenerateOTLPBearerTokenWithExpiration("secret", time.Now().Add(-time.Hour))
	assert.Error(t, err)
	assert.Empty(t, token)
	assert.Contains(t, err.Error(), "expiration time is in the past")
}

func TestNew(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer otel.SetTracerProvider(otel.GetTracerProvider())

	base := logger.NewTestLogger()
	log, shutdown, err := New(context.Background(), "test-service", server.URL, "token", base)
	require.NoError(t, err)
	require.NotNil(t, log)
	require.NotNil(t, shutdown)

	log.Info("hello")
	assert.True(t, base.Contains("INFO", "hello"))

	_, span := otel.Tracer("test").Start(context.Background(), "span")
	span.End()

	shutdown()
	assert.Positive(t, requests.Load())
}

func TestNewInvalidURL(t *testing.T) {
	_, _, err := New(context.Background(), "svc", "://bad", "", nil)
	assert.Error(t, err)

	_, _, err = New(context.Background(), "svc", "ftp://example.com", "", nil)
	assert.ErrorContains(t, err, "must be http or https")
}
