package lg

import (
	"bytes"
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured log field, aliasing zapcore.Field for flexibility.
type Field = zapcore.Field

func Any(key string, value any) Field                { return zap.Any(key, value) }
func String(key, value string) Field                 { return zap.String(key, value) }
func Strings(key string, value []string) Field       { return zap.Strings(key, value) }
func Int(key string, value int) Field                { return zap.Int(key, value) }
func Int32(key string, value int32) Field            { return zap.Int32(key, value) }
func Bool(key string, value bool) Field              { return zap.Bool(key, value) }
func Float64(key string, value float64) Field        { return zap.Float64(key, value) }
func Time(key string, value time.Time) Field         { return zap.Time(key, value) }
func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }
func Err(err error) Field                            { return zap.Error(err) }

// Logger defines the minimal interface for structured logging.
type Logger interface {
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
	Sync() error
	Debug(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
}

// Config holds logging configuration options.
type Config struct {
	ServiceName string
	Debug       bool
	Format      string // "json" or "console"
}

// RegisterFlags adds -debug and -log-format to fs and returns the Config
// they populate once fs is parsed.
func RegisterFlags(fs *flag.FlagSet, serviceName string) *Config {
	cfg := &Config{ServiceName: serviceName}
	fs.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	fs.StringVar(&cfg.Format, "log-format", "json", "json or console")
	return cfg
}

// New builds a zap-based Logger based on cfg.
// It configures encoding, level, sampling, and initial fields.
func New(cfg *Config) Logger {
	var baseCfg zap.Config
	if cfg.Debug {
		baseCfg = zap.NewDevelopmentConfig()
		baseCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		baseCfg = zap.NewProductionConfig()
	}

	// Allow console or JSON output
	if cfg.Format != "" {
		baseCfg.Encoding = cfg.Format
	}
	baseCfg.EncoderConfig.TimeKey = "timestamp"
	baseCfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	baseCfg.InitialFields = map[string]any{"service": cfg.ServiceName}
	// process output goes to stdout, keep our own records on stderr
	baseCfg.OutputPaths = []string{"stderr"}

	// Enable sampling for high-throughput logs
	baseCfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}

	logger, err := baseCfg.Build(zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		// Fall back to standard log if zap fails
		log.Printf("[FATAL] cannot initialize zap logger: %v", err)
		return defaultLogger{}
	}

	return &zapLogger{l: logger}
}

// zapLogger wraps a *zap.Logger to implement Logger.
type zapLogger struct{ l *zap.Logger }

func (z *zapLogger) Info(msg string, fields ...Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...Field) { z.l.Error(msg, fields...) }
func (z *zapLogger) Debug(msg string, fields ...Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...Field)  { z.l.Warn(msg, fields...) }

func (z *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{z.l.With(fields...)}
}

func (z *zapLogger) Sync() error {
	return z.l.Sync()
}

// defaultLogger falls back to the standard log package.
type defaultLogger struct{}

func (d defaultLogger) Info(msg string, fields ...Field) {
	log.Println("INFO:", msg, flatten(fields...))
}

func (d defaultLogger) Error(msg string, fields ...Field) {
	log.Println("ERROR:", msg, flatten(fields...))
}

func (d defaultLogger) Warn(msg string, fields ...Field) {
	log.Println("WARN:", msg, flatten(fields...))
}

func (d defaultLogger) With(fields ...Field) Logger { return d }
func (d defaultLogger) Sync() error                 { return nil }
func (d defaultLogger) Debug(msg string, fields ...Field) {}

// flatten converts a list of zap log fields into a space-separated string of
// key=value pairs using zap's console encoder, without timestamps or levels.
// Returns an empty string if no fields are provided.
func flatten(fields ...Field) string {
	if len(fields) == 0 {
		return ""
	}
	buf := new(bytes.Buffer)
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		LineEnding: " ",
	})
	buffer, err := enc.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		return ""
	}
	defer buffer.Free()
	buf.Write(buffer.Bytes())
	return strings.TrimSpace(buf.String())
}

// context key type for carrying Logger
// unexported to avoid collisions
type ctxKey struct{}

// Attach returns a new context with the provided Logger.
func Attach(ctx context.Context, lg Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, lg)
}

// FromContext retrieves the Logger from ctx, or falls back to defaultLogger.
func FromContext(ctx context.Context) Logger {
	if ctx == nil {
		return defaultLogger{}
	}
	if lg, ok := ctx.Value(ctxKey{}).(Logger); ok && lg != nil {
		return lg
	}
	return defaultLogger{}
}

// noopLogger does absolutely nothing. For test only
type noopLogger struct{}

func (noopLogger) Info(msg string, _ ...Field)  {}
func (noopLogger) Debug(msg string, _ ...Field) {}
func (noopLogger) Error(msg string, _ ...Field) {}
func (noopLogger) Warn(msg string, _ ...Field)  {}
func (noopLogger) With(_ ...Field) Logger       { return noopLogger{} }
func (noopLogger) Sync() error                  { return nil }

var Discard Logger = noopLogger{}
