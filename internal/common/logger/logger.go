// Package logger provides structured logging for ARServer using go.uber.org/zap.
package logger

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

// CorrelationIDKey is the context key under which the RPC request id that
// triggered the current call chain is stored.
const CorrelationIDKey contextKey = "correlation_id"

// Config holds logger configuration, loaded from internal/common/config.
type Config struct {
	Level      string `mapstructure:"level"`      // debug, info, warn, error
	Format     string `mapstructure:"format"`     // json, console
	OutputPath string `mapstructure:"outputPath"` // stdout, stderr, or file path
}

// Logger wraps zap.Logger with ARServer-specific helpers.
type Logger struct {
	zap *zap.Logger
}

var (
	defaultLogger     *Logger
	defaultLoggerOnce sync.Once
)

// Default returns the global default logger, lazily initialized at info level.
func Default() *Logger {
	defaultLoggerOnce.Do(func() {
		l, err := New(Config{Level: "info", Format: "console", OutputPath: "stdout"})
		if err != nil {
			zapLogger, _ := zap.NewProduction()
			l = &Logger{zap: zapLogger}
		}
		defaultLogger = l
	})
	return defaultLogger
}

// SetDefault overrides the global default logger, typically once at startup.
func SetDefault(l *Logger) {
	defaultLogger = l
}

// New builds a Logger from Config.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" || cfg.Format == "text" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var sink zapcore.WriteSyncer
	switch cfg.OutputPath {
	case "", "stdout":
		sink = zapcore.AddSync(os.Stdout)
	case "stderr":
		sink = zapcore.AddSync(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		sink = zapcore.AddSync(f)
	}

	core := zapcore.NewCore(encoder, sink, level)
	zapLogger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{zap: zapLogger}, nil
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error { return l.zap.Sync() }

// WithFields returns a derived Logger carrying the given fields on every entry.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(fields...)}
}

// WithContext attaches the correlation id found in ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok && id != "" {
		return l.WithFields(zap.String("correlation_id", id))
	}
	return l
}

// WithError attaches an error field.
func (l *Logger) WithError(err error) *Logger { return l.WithFields(zap.Error(err)) }

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zap.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zap.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zap.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zap.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...zap.Field) { l.zap.Fatal(msg, fields...) }

// Zap exposes the underlying zap.Logger for call sites that need it directly.
func (l *Logger) Zap() *zap.Logger { return l.zap }

// ContextWithCorrelationID returns a context carrying id for downstream logging.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}
