// Package telemetry wires OpenTelemetry log and trace export over OTLP/HTTP.
package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/agentuity/yieldcache/logger"
	"github.com/xhit/go-str2duration/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

func GenerateOTLPBearerToken(sharedSecret string, token string) (string, error) {
	hash := sha256.New()
	if _, err := hash.Write([]byte(sharedSecret + "." + token)); err != nil {
		return "", fmt.Errorf("error hashing token: %w", err)
	}
	secret := hash.Sum(nil)
	tok2 := base64.StdEncoding.EncodeToString(secret)
	return token + "." + tok2, nil
}

// GenerateOTLPBearerTokenWithExpiration returns a signed token of the form
// <lifetime>.<issued unix seconds>.<signature>.
func GenerateOTLPBearerTokenWithExpiration(sharedSecret string, expiration time.Time) (string, error) {
	now := time.Now()
	lifetime := expiration.Sub(now).Round(time.Second)
	if lifetime <= 0 {
		return "", errors.New("expiration time is in the past")
	}
	return GenerateOTLPBearerToken(sharedSecret, str2duration.String(lifetime)+"."+strconv.FormatInt(now.Unix(), 10))
}

type ShutdownFunc func()

// New exports logs and traces for serviceName to the OTLP server at
// otlpServerURL and installs the global tracer provider. The returned logger
// writes to base (if not nil) and to the OTLP log exporter.
func New(ctx context.Context, serviceName string, otlpServerURL string, authToken string, base logger.Logger) (logger.Logger, ShutdownFunc, error) {
	otlpURL, err := url.Parse(otlpServerURL)
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing otlpServerURL: %w", err)
	}
	if otlpURL.Scheme != "http" && otlpURL.Scheme != "https" {
		return nil, nil, fmt.Errorf("otlpServerURL must be http or https, got %q", otlpServerURL)
	}
	otlpURL.Path = "/v1/logs"
	logURL := otlpURL.String()
	otlpURL.Path = "/v1/traces"
	traceURL := otlpURL.String()
	insecure := otlpURL.Scheme == "http"

	res, err := resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if errors.Is(err, resource.ErrPartialResource) || errors.Is(err, resource.ErrSchemaURLConflict) {
		if base != nil {
			base.Warn("partial telemetry resource: %s", err)
		}
	} else if err != nil {
		return nil, nil, fmt.Errorf("error creating resource: %w", err)
	}

	headers := make(map[string]string)
	if authToken != "" {
		headers["Authorization"] = "Bearer " + authToken
	}

	logExporterOpts := []otlploghttp.Option{
		otlploghttp.WithEndpointURL(logURL),
		otlploghttp.WithHeaders(headers),
		otlploghttp.WithTimeout(time.Second * 10),
		otlploghttp.WithCompression(otlploghttp.GzipCompression),
	}
	traceExporterOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(traceURL),
		otlptracehttp.WithHeaders(headers),
		otlptracehttp.WithTimeout(time.Second * 10),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if insecure {
		logExporterOpts = append(logExporterOpts, otlploghttp.WithInsecure())
		traceExporterOpts = append(traceExporterOpts, otlptracehttp.WithInsecure())
	}

	logExporter, err := otlploghttp.New(ctx, logExporterOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating log exporter: %w", err)
	}
	traceExporter, err := otlptracehttp.New(ctx, traceExporterOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating trace exporter: %w", err)
	}

	logProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	var log logger.Logger = logger.NewOtelLogger(logProvider.Logger(serviceName), logger.LevelTrace)
	if base != nil {
		log = base.Stack(log)
	}

	return log, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		traceProvider.Shutdown(ctx)
		logProvider.Shutdown(ctx)
	}, nil
}
