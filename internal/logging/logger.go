package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"conversation-chaos/internal/config"
)

type Logger struct {
	*slog.Logger
	config    *config.LoggingConfig
	mutations *atomic.Uint64
}

type ContextKey string

const (
	CorrelationIDKey ContextKey = "correlation_id"
	RequestIDKey     ContextKey = "request_id"
	RunIDKey         ContextKey = "run_id"
	ServiceKey       ContextKey = "service"
)

// NewLogger creates a new structured logger using slog and installs it as the
// process default.
func NewLogger(cfg *config.LoggingConfig) *Logger {
	var writer io.Writer
	switch cfg.Output {
	case "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		if cfg.Output != "" {
			file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err == nil {
				writer = file
			} else {
				writer = os.Stdout
				slog.Warn("Failed to open log file, using stdout", "error", err, "file", cfg.Output)
			}
		} else {
			writer = os.Stdout
		}
	}

	logger := NewWithWriter(cfg, writer)
	slog.SetDefault(logger.Logger)
	return logger
}

// NewWithWriter builds a logger writing to w without touching the slog default.
func NewWithWriter(cfg *config.LoggingConfig, w io.Writer) *Logger {
	level := parseLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text", "console":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger:    slog.New(handler),
		config:    cfg,
		mutations: new(atomic.Uint64),
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	cfg := TestLoggingConfig()
	return NewWithWriter(&cfg, io.Discard)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) derive(logger *slog.Logger) *Logger {
	return &Logger{
		Logger:    logger,
		config:    l.config,
		mutations: l.mutations,
	}
}

// WithContext creates a new logger with context values
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger

	if correlationID := ctx.Value(CorrelationIDKey); correlationID != nil {
		logger = logger.With("correlation_id", correlationID)
	}
	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		logger = logger.With("request_id", requestID)
	}
	if runID := ctx.Value(RunIDKey); runID != nil {
		logger = logger.With("run_id", runID)
	}
	if service := ctx.Value(ServiceKey); service != nil {
		logger = logger.With("service", service)
	}

	return l.derive(logger)
}

// forRun is WithContext with runID as the run, so run_id appears once
func (l *Logger) forRun(ctx context.Context, runID string) *Logger {
	return l.WithContext(WithRunID(ctx, runID))
}

// WithFields creates a new logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	var args []interface{}
	for key, value := range fields {
		args = append(args, key, value)
	}
	return l.derive(l.Logger.With(args...))
}

// WithField creates a new logger with a single additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(l.Logger.With(key, value))
}

// WithError creates a new logger with an error field
func (l *Logger) WithError(err error) *Logger {
	return l.derive(l.Logger.With("error", err.Error()))
}

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...interface{}) {
	l.WithContext(ctx).Debug(msg, args...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...interface{}) {
	l.WithContext(ctx).Info(msg, args...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...interface{}) {
	l.WithContext(ctx).Warn(msg, args...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...interface{}) {
	l.WithContext(ctx).Error(msg, args...)
}

// RunStarted logs the start of an injection run
func (l *Logger) RunStarted(ctx context.Context, runID string, seed int64, modes []string, messages int) {
	if !l.config.EnableRunTracing {
		return
	}
	l.forRun(ctx, runID).Info("Injection run started",
		"seed", seed,
		"modes", modes,
		"messages", messages,
	)
}

// ModeApplied logs one configuration's contribution to a run
func (l *Logger) ModeApplied(ctx context.Context, runID, mode string, seed int64, skipped bool, modified int) {
	if !l.config.EnableRunTracing {
		return
	}
	l.forRun(ctx, runID).Debug("Chaos mode applied",
		"mode", mode,
		"seed", seed,
		"skipped", skipped,
		"modified", modified,
	)
}

// RunCompleted logs the end of an injection run
func (l *Logger) RunCompleted(ctx context.Context, runID, fingerprint string, affected int, duration time.Duration, err error) {
	logger := l.forRun(ctx, runID).With("duration_ms", duration.Milliseconds())

	if err != nil {
		logger.Error("Injection run failed", "error", err.Error())
		return
	}
	if !l.config.EnableRunTracing {
		return
	}
	logger.Info("Injection run completed",
		"fingerprint", fingerprint,
		"affected_messages", affected,
	)
}

// Mutation logs a single timeline entry. Honors LogSampling.
func (l *Logger) Mutation(ctx context.Context, runID, mode, action, messageID string, index int) {
	if !l.config.EnableMutationLog {
		return
	}
	n := l.mutations.Add(1)
	if l.config.LogSampling > 1 && (n-1)%uint64(l.config.LogSampling) != 0 {
		return
	}
	l.forRun(ctx, runID).Debug("Message mutated",
		"mode", mode,
		"action", action,
		"message_id", messageID,
		"message_index", index,
	)
}

// ValidationCompleted logs the outcome of a goodness-of-fit check
func (l *Logger) ValidationCompleted(ctx context.Context, mode string, chiSquare, critical float64, df, trials int, passed bool) {
	level := slog.LevelInfo
	if !passed {
		level = slog.LevelWarn
	}
	l.WithContext(ctx).Log(ctx, level, "Distribution validation completed",
		"mode", mode,
		"chi_square", chiSquare,
		"critical_value", critical,
		"degrees_of_freedom", df,
		"trials", trials,
		"passed", passed,
	)
}

// LedgerOperation logs ledger reads and writes
func (l *Logger) LedgerOperation(ctx context.Context, operation, fingerprint string, duration time.Duration, err error) {
	logger := l.WithContext(ctx).With(
		"operation", operation,
		"fingerprint", fingerprint,
		"duration_ms", duration.Milliseconds(),
	)

	if err != nil {
		logger.Error("Ledger operation failed", "error", err.Error())
	} else {
		logger.Debug("Ledger operation completed")
	}
}

// RequestStart logs the start of a request
func (l *Logger) RequestStart(ctx context.Context, method, path, userAgent string) {
	l.WithContext(ctx).Info("Request started",
		"method", method,
		"path", path,
		"user_agent", userAgent,
	)
}

// RequestEnd logs the end of a request
func (l *Logger) RequestEnd(ctx context.Context, method, path string, statusCode int, duration time.Duration, size int64) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	l.WithContext(ctx).Log(ctx, level, "Request completed",
		"method", method,
		"path", path,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"response_size", size,
	)
}
