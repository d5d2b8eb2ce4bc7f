package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/onurcolak/broadcast-dispatch-service/environments"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

var (
	mu   sync.RWMutex
	base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: consoleTimeFormat}).
		With().Timestamp().Logger()
	closers []io.Closer
)

// Init configures the process-wide logger (called once from main).
func Init(cfg environments.LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.ErrorFieldName = "err"

	var out io.Writer = os.Stderr
	if strings.EqualFold(cfg.Format, "console") || cfg.Format == "" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: consoleTimeFormat}
	}

	writers := []io.Writer{out}
	var fileCloser io.Closer
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		writers = append(writers, rotating)
		fileCloser = rotating
	}

	l := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level)).
		With().Timestamp().Logger()

	mu.Lock()
	base = l
	if fileCloser != nil {
		closers = append(closers, fileCloser)
	}
	mu.Unlock()
}

// Close flushes and closes file sinks opened by Init.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	var firstErr error
	for _, c := range closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	closers = nil
	return firstErr
}

// L returns the underlying structured logger for call sites that want fields.
func L() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := base
	return &l
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func Infof(format string, v ...any) {
	L().Info().Msgf(format, v...)
}

func Warnf(format string, v ...any) {
	L().Warn().Msgf(format, v...)
}

func Errorf(format string, v ...any) {
	L().Error().Msgf(format, v...)
}

func Debugf(format string, v ...any) {
	L().Debug().Msgf(format, v...)
}

func Fatalf(format string, v ...any) {
	L().Fatal().Msgf(format, v...)
}
