// Package logger provides the structured logger used across the application.
// It wraps zerolog behind a small chainable API so call sites stay uniform.
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string
	// Format is "json" or "console". Defaults to json.
	Format string
	// Output is "stdout" or "stderr". Defaults to stderr.
	Output string
	// Component tags every entry with a component name.
	Component string
}

// Logger is a thin wrapper over a zerolog.Logger carrying accumulated fields.
type Logger struct {
	zl zerolog.Logger
}

// New builds a logger from configuration.
func New(cfg LoggingConfig) *Logger {
	var out io.Writer = os.Stderr
	if strings.EqualFold(cfg.Output, "stdout") {
		out = os.Stdout
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out}
	}

	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level))); err == nil && cfg.Level != "" {
		level = parsed
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if cfg.Component != "" {
		zl = zl.With().Str("component", cfg.Component).Logger()
	}
	return &Logger{zl: zl}
}

// NewDefault returns a JSON logger at info level tagged with a component name.
func NewDefault(component string) *Logger {
	return New(LoggingConfig{Component: component})
}

// WithField returns a logger with an extra field attached.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithFields returns a logger with several extra fields attached.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	ctx := l.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zl: ctx.Logger()}
}

// WithError returns a logger with the error attached.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

// WithContext returns a logger enriched with request-scoped identifiers.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	out := l
	if id := RequestID(ctx); id != "" {
		out = out.WithField("request_id", id)
	}
	if id := UserID(ctx); id != "" {
		out = out.WithField("user_id", id)
	}
	return out
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

func (l *Logger) Debugf(format string, args ...any) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.zl.Error().Msgf(format, args...) }
