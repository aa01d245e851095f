// Package observability wires OpenTelemetry tracing and metrics and the slog
// logger a crawl reports through.
package observability

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

const (
	defaultServiceName     = "codeshape"
	defaultShutdownTimeout = 5 * time.Second
)

// ErrInvalidLogLevel is returned by ParseLevel for unknown level names.
var ErrInvalidLogLevel = errors.New("invalid log level")

// Config selects where logs and telemetry go.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// OTLPEndpoint is a gRPC collector address such as "localhost:4317".
	// Empty keeps tracing and metrics in-process as no-ops.
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	OTLPInsecure bool

	// SampleRatio overrides OTEL_TRACES_SAMPLER when positive.
	SampleRatio float64

	LogLevel  slog.Level
	LogJSON   bool
	LogWriter io.Writer // nil means os.Stderr

	ShutdownTimeout time.Duration
}

// DefaultConfig logs at info to stderr and exports nothing.
func DefaultConfig() Config {
	return Config{
		ServiceName:     defaultServiceName,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// ParseLevel maps a level name (debug, info, warn, error) to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level

	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, name)
	}

	return level, nil
}

// ParseOTLPHeaders reads the OTEL_EXPORTER_OTLP_HEADERS "k=v,k=v" form.
// Pairs without "=" are dropped; nil means no headers.
func ParseOTLPHeaders(raw string) map[string]string {
	var headers map[string]string

	for pair := range strings.SplitSeq(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}

		if headers == nil {
			headers = make(map[string]string)
		}

		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return headers
}
