// Package env resolves command settings from flags, the environment and
// optional .env files.
package env

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/agentuity/yieldcache/logger"
	"github.com/agentuity/yieldcache/telemetry"
	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"
)

// Prefix is prepended to every environment variable this service reads.
const Prefix = "YIELDCACHE_"

type EnvLine struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

func dequote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// ProcessEnvLine splits a KEY=VALUE line, removing matching quotes around the
// value and a leading "export ".
func ProcessEnvLine(line string) EnvLine {
	line = strings.TrimPrefix(strings.TrimSpace(line), "export ")
	key, val, ok := strings.Cut(line, "=")
	if !ok {
		return EnvLine{Key: strings.TrimSpace(line)}
	}
	return EnvLine{Key: strings.TrimSpace(key), Val: dequote(strings.TrimSpace(val))}
}

// ParseEnvBuffer parses KEY=VALUE lines, skipping blanks and # comments.
func ParseEnvBuffer(buf []byte) []EnvLine {
	envs := make([]EnvLine, 0)
	for _, line := range strings.Split(string(buf), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if env := ProcessEnvLine(line); env.Key != "" {
			envs = append(envs, env)
		}
	}
	return envs
}

// LoadEnvFile sets every variable in filename that is not already present in
// the process environment. An empty or missing filename is not an error.
func LoadEnvFile(filename string) error {
	if filename == "" {
		return nil
	}
	buf, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, env := range ParseEnvBuffer(buf) {
		if _, ok := os.LookupEnv(env.Key); ok {
			continue
		}
		if err := os.Setenv(env.Key, env.Val); err != nil {
			return fmt.Errorf("error setting %s: %w", env.Key, err)
		}
	}
	return nil
}

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	if f := cmd.Flags().Lookup(flagName); f != nil && f.Changed {
		return f.Value.String()
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	if f := cmd.Flags().Lookup(flagName); f != nil && f.Value.String() != "" {
		return f.Value.String()
	}
	return defaultValue
}

// BoolFlagOrEnv is FlagOrEnv for boolean settings.
func BoolFlagOrEnv(cmd *cobra.Command, flagName string, envName string) bool {
	switch strings.ToLower(FlagOrEnv(cmd, flagName, envName, "false")) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func LogLevel(cmd *cobra.Command) logger.LogLevel {
	level, _ := logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.LogLevelEnv, "info"))
	return level
}

// NewLogger returns a console logger by first checking the cobra.Command log-level flag, then use the
// YIELDCACHE_LOG_LEVEL environment value and falling back to the info logger level.
// If --log-file (or YIELDCACHE_LOG_FILE) is set, the same output is appended to that file without colour.
func NewLogger(cmd *cobra.Command) (logger.Logger, error) {
	log.SetFlags(0)
	level := LogLevel(cmd)
	l := logger.NewConsoleLogger(level)
	if filename := FlagOrEnv(cmd, "log-file", Prefix+"LOG_FILE", ""); filename != "" {
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("error opening log file: %w", err)
		}
		l.SetSink(f, level)
	}
	return l, nil
}

// NewTelemetry returns a logger and shutdown function. The cobra flags it expects are:
//
// --no-telemetry (boolean): if set, telemetry will be disabled
//
// --otlp-url (string): the url of the otlp server; telemetry is disabled when empty
//
// --otlp-shared-secret (string): the shared secret used to sign the bearer token
//
// --otlp-token-ttl (duration): if set, the bearer token expires after this long
func NewTelemetry(ctx context.Context, cmd *cobra.Command, serviceName string) (logger.Logger, telemetry.ShutdownFunc, error) {
	base, err := NewLogger(cmd)
	if err != nil {
		return nil, nil, err
	}
	otlpURL := FlagOrEnv(cmd, "otlp-url", Prefix+"OTLP_URL", "")
	if BoolFlagOrEnv(cmd, "no-telemetry", Prefix+"NO_TELEMETRY") || otlpURL == "" {
		return base, func() {}, nil
	}
	var token string
	if secret := FlagOrEnv(cmd, "otlp-shared-secret", Prefix+"OTLP_SHARED_SECRET", ""); secret != "" {
		if token, err = bearerToken(cmd, secret, serviceName); err != nil {
			return nil, nil, err
		}
	}
	log, shutdown, err := telemetry.New(ctx, serviceName, otlpURL, token, base)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating telemetry: %w", err)
	}
	return log, shutdown, nil
}

func bearerToken(cmd *cobra.Command, secret string, serviceName string) (string, error) {
	val := FlagOrEnv(cmd, "otlp-token-ttl", Prefix+"OTLP_TOKEN_TTL", "")
	if val == "" {
		return telemetry.GenerateOTLPBearerToken(secret, serviceName)
	}
	ttl, err := str2duration.ParseDuration(val)
	if err != nil {
		return "", fmt.Errorf("error parsing otlp-token-ttl: %w", err)
	}
	return telemetry.GenerateOTLPBearerTokenWithExpiration(secret, time.Now().Add(ttl))
}
