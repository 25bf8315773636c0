package logging

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps a zap.Logger with a handful of domain-specific event
// helpers, in the same shape the teacher's market-maker logger uses.
type Logger struct {
	*zap.Logger
	config Config
}

// Config controls where and how log output is written.
type Config struct {
	Level      string   `yaml:"level"`       // debug, info, warn, error
	Outputs    []string `yaml:"outputs"`      // stdout, file
	OutputFile string   `yaml:"output_file"`  // rotated log file path
	Format     string   `yaml:"format"`       // json or console
	MaxSizeMB  int       `yaml:"max_size_mb"`
	MaxBackups int       `yaml:"max_backups"`
	MaxAgeDays int       `yaml:"max_age_days"`
}

// DefaultConfig returns a sensible default: info level, JSON to stdout.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Outputs:    []string{"stdout"},
		Format:     "json",
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 7,
	}
}

// New builds a Logger from cfg. The "file" output uses lumberjack for
// size/age-based rotation rather than a bare os.OpenFile handle, so a
// long-running matching engine process doesn't grow one log file
// without bound.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: invalid level %q: %w", cfg.Level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	var cores []zapcore.Core

	if contains(cfg.Outputs, "stdout") {
		var encoder zapcore.Encoder
		if cfg.Format == "console" {
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		} else {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	if contains(cfg.Outputs, "file") && cfg.OutputFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		encoder := zapcore.NewJSONEncoder(encoderConfig)
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
	}

	core := zapcore.NewTee(cores...)
	zapLogger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{Logger: zapLogger, config: cfg}, nil
}

// WithFields returns a derived Logger carrying the given structured
// fields on every subsequent entry.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return &Logger{Logger: l.Logger.With(zapFields...), config: l.config}
}

// LogOrderAccepted records an order accepted onto the book.
func (l *Logger) LogOrderAccepted(orderID uint64, side, orderType string, price float64, quantity uint64) {
	l.Info("order_accepted",
		zap.Uint64("order_id", orderID),
		zap.String("side", side),
		zap.String("type", orderType),
		zap.Float64("price", price),
		zap.Uint64("quantity", quantity),
		zap.String("ts", time.Now().UTC().Format(time.RFC3339Nano)),
	)
}

// LogOrderRejected records a rejected add_order call and why.
func (l *Logger) LogOrderRejected(side, orderType string, price float64, quantity uint64, reason string) {
	l.Warn("order_rejected",
		zap.String("side", side),
		zap.String("type", orderType),
		zap.Float64("price", price),
		zap.Uint64("quantity", quantity),
		zap.String("reason", reason),
	)
}

// LogOrderCancelled records a cancel outcome.
func (l *Logger) LogOrderCancelled(orderID uint64, removed bool) {
	l.Info("order_cancelled", zap.Uint64("order_id", orderID), zap.Bool("removed", removed))
}

// LogTrade records one execution.
func (l *Logger) LogTrade(tradeID uint64, price float64, quantity uint64) {
	l.Info("trade_executed",
		zap.Uint64("trade_id", tradeID),
		zap.Float64("price", price),
		zap.Uint64("quantity", quantity),
	)
}

// LogError records an error with surrounding context.
func (l *Logger) LogError(err error, context map[string]interface{}) {
	if context == nil {
		context = make(map[string]interface{})
	}
	fields := make([]zap.Field, 0, len(context)+1)
	fields = append(fields, zap.Error(err))
	for k, v := range context {
		fields = append(fields, zap.Any(k, v))
	}
	l.Error("error_event", fields...)
}

// Close flushes any buffered log entries.
func (l *Logger) Close() error {
	return l.Sync()
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
