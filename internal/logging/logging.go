// Package logging builds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger.
type Options struct {
	// Level is a zerolog level name ("debug", "info", ...). Empty or
	// unparseable falls back to info.
	Level string

	// FilePath enables a rotating file sink alongside the console when
	// non-empty.
	FilePath string

	// Rotation settings for the file sink.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a logger writing to the console and, when configured, a
// rotating log file. A file-sink setup failure degrades to console-only.
func New(opts Options) zerolog.Logger {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(opts.Level); err == nil && opts.Level != "" {
		level = parsed
	}

	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	writers := []io.Writer{consoleWriter}

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			bootstrap := zerolog.New(consoleWriter).With().Timestamp().Logger()
			bootstrap.Error().Err(err).Str("path", opts.FilePath).Msg("log file unavailable, console only")
		} else {
			maxSize := opts.MaxSizeMB
			if maxSize <= 0 {
				maxSize = 50
			}
			writers = append(writers, &lumberjack.Logger{
				Filename:   opts.FilePath,
				MaxSize:    maxSize,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxAgeDays,
				Compress:   true,
			})
		}
	}

	return zerolog.New(io.MultiWriter(writers...)).With().Timestamp().Logger().Level(level)
}
