// Package logging builds the provider's zerolog logger with optional
// console output and rotated file output.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects log level and writers.
type Config struct {
	// Level is a zerolog level name; empty means info.
	Level string
	// Console enables human-readable output on stderr.
	Console bool
	// FilePath enables rotated JSON output when non-empty.
	FilePath string
	// Rotation limits for the file writer.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New constructs a logger from cfg. With no writers configured it returns a
// disabled logger.
func New(cfg Config) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parse log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if cfg.FilePath != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	}
	if len(writers) == 0 {
		return zerolog.Nop(), nil
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger(), nil
}

// Nop returns a disabled logger.
func Nop() zerolog.Logger { return zerolog.Nop() }
