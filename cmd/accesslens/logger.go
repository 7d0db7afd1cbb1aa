package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// newLogger builds the runtime logger. Output goes to cfg.LogFile when it
// can be opened and to stderr otherwise. The returned func closes the file.
func newLogger(cfg appConfig) (zerolog.Logger, func()) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.WarnLevel
	}

	var (
		out     io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		cleanup           = func() {}
		openErr error
	)
	if cfg.LogFile != "" {
		f, err := openLogFile(cfg.LogFile)
		if err != nil {
			openErr = err
		} else {
			out = f
			cleanup = func() { _ = f.Close() }
		}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if openErr != nil {
		logger.Warn().Err(openErr).Msg("logging to stderr")
	}
	return logger, cleanup
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}
