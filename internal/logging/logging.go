// Package logging builds the zap logger used by the timer binaries.
package logging

import (
	"io"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	File       string // rotated log file, empty for stderr only
	MaxSizeMB  int
	MaxBackups int
}

// Logger wraps a zap logger together with the file sink it writes to.
type Logger struct {
	*zap.Logger
	rotator io.Closer
}

// New builds a logger writing to stderr and, when cfg.File is set, to a
// size-rotated file.
func New(cfg Config) *Logger {
	return newWithStderr(cfg, zapcore.Lock(os.Stderr))
}

func newWithStderr(cfg Config, stderr zapcore.WriteSyncer) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	level := ParseLevel(cfg.Level)
	cores := []zapcore.Core{zapcore.NewCore(encoder, stderr, level)}

	l := &Logger{}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		l.rotator = rotator
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
	}

	l.Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return l
}

// ParseLevel maps a level name to a zap level. Unknown names mean info.
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Close flushes buffered entries and closes the log file.
func (l *Logger) Close() error {
	err := l.Sync()
	if l.rotator != nil {
		err = multierr.Append(err, l.rotator.Close())
	}
	return err
}

// Adapter exposes a zap logger through the slog-shaped method set the timer
// package logs with.
type Adapter struct {
	s *zap.SugaredLogger
}

// NewAdapter returns an Adapter over l.
func NewAdapter(l *zap.Logger) *Adapter {
	return &Adapter{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (a *Adapter) Debug(msg string, args ...any) { a.s.Debugw(msg, args...) }
func (a *Adapter) Info(msg string, args ...any)  { a.s.Infow(msg, args...) }
func (a *Adapter) Warn(msg string, args ...any)  { a.s.Warnw(msg, args...) }
func (a *Adapter) Error(msg string, args ...any) { a.s.Errorw(msg, args...) }
