package logging

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"syscall"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below debug for wire-level detail.
const TraceLevel = zapcore.Level(-2)

// ParseLevel parses a level name, accepting "trace".
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "trace" {
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

// NewLogger builds a logger from cfg. otelProvider may be nil, in which
// case the OTEL output is skipped.
func NewLogger(cfg *Config, otelProvider log.LoggerProvider) (*zap.Logger, error) {
	return newLogger(cfg, otelProvider, zapcore.Lock(os.Stdout))
}

// NewStderrLogger is NewLogger writing to stderr, for processes whose
// stdout carries a protocol stream.
func NewStderrLogger(cfg *Config, otelProvider log.LoggerProvider) (*zap.Logger, error) {
	return newLogger(cfg, otelProvider, zapcore.Lock(os.Stderr))
}

func newLogger(cfg *Config, otelProvider log.LoggerProvider, out zapcore.WriteSyncer) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	core, err := newCore(cfg, otelProvider, out)
	if err != nil {
		return nil, err
	}

	var opts []zap.Option
	if cfg.Caller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.Stacktrace != "" {
		lvl, _ := ParseLevel(cfg.Stacktrace)
		opts = append(opts, zap.AddStacktrace(lvl))
	}

	if len(cfg.Fields) > 0 {
		keys := make([]string, 0, len(cfg.Fields))
		for k := range cfg.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]zap.Field, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, zap.String(k, cfg.Fields[k]))
		}
		opts = append(opts, zap.Fields(fields...))
	}

	return zap.New(core, opts...), nil
}

func newCore(cfg *Config, otelProvider log.LoggerProvider, out zapcore.WriteSyncer) (zapcore.Core, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var cores []zapcore.Core
	if cfg.Output.Stdout {
		enc, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(enc, out, level))
	}
	if cfg.Output.OTEL && otelProvider != nil {
		cores = append(cores, otelzap.NewCore("lexflow", otelzap.WithLoggerProvider(otelProvider)))
	}
	if len(cores) == 0 {
		return nil, fmt.Errorf("%w: no output available", ErrInvalidConfig)
	}

	return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), nil
}

func newEncoder(format string) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

// Sync flushes the logger, ignoring the EINVAL/ENOTTY that syncing a
// terminal returns on Linux.
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == syscall.EINVAL || errno == syscall.ENOTTY) {
		return nil
	}
	return err
}

// newSampledCore samples entries below error level. Errors and above always
// pass through.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	errCore := &levelFilterCore{Core: core, min: zapcore.ErrorLevel, max: zapcore.FatalLevel}
	below := &levelFilterCore{Core: core, min: TraceLevel, max: zapcore.WarnLevel}
	return zapcore.NewTee(errCore, zapcore.NewSamplerWithOptions(below, cfg.Tick, cfg.Initial, cfg.Thereafter))
}

// levelFilterCore passes entries with min <= level <= max.
type levelFilterCore struct {
	zapcore.Core
	min, max zapcore.Level
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && lvl <= c.max && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{Core: c.Core.With(fields), min: c.min, max: c.max}
}
