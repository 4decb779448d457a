// Package logging builds the slog loggers used by the meter reader.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace sits below debug for per-detection output.
const LevelTrace = slog.Level(-8)

// Add trace level name.
var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
}

// Config controls logger construction.
type Config struct {
	// Level is trace, debug, info, warn or error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`
	// Format is "text" or "json".
	Format string `json:"format" yaml:"format" mapstructure:"format"`
	// File, when set, receives JSON logs rotated by lumberjack in addition to stderr.
	File string `json:"file" yaml:"file" mapstructure:"file"`
	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int `json:"maxSizeMB" yaml:"maxSizeMB" mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `json:"maxBackups" yaml:"maxBackups" mapstructure:"max_backups"`
	// MaxAgeDays is the age after which rotated files are removed.
	MaxAgeDays int `json:"maxAgeDays" yaml:"maxAgeDays" mapstructure:"max_age_days"`
}

// DefaultConfig logs text at info level to stderr only.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "text",
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.Errorf("unknown log level %q", name)
	}
}

// New creates a logger writing to stderr and, if configured, to a rotated file.
//
// Arguments:
//   - cfg: The logging configuration.
//
// Returns:
//   - *slog.Logger: The logger.
//   - func() error: Closes the log file; a no-op without one.
//   - error: An error for an unknown level or format, or an unwritable log directory.
func New(cfg Config) (*slog.Logger, func() error, error) {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg Config, console io.Writer) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	consoleHandler, err := newHandler(cfg.Format, console, level)
	if err != nil {
		return nil, nil, err
	}
	if cfg.File == "" {
		return slog.New(consoleHandler), func() error { return nil }, nil
	}

	// Ensure the directory exists (lumberjack doesn't create directories)
	if dir := filepath.Dir(cfg.File); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to create log directory %s", dir)
		}
	}

	logWriter := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	fileHandler, _ := newHandler("json", logWriter, level)

	return slog.New(fanout{consoleHandler, fileHandler}), logWriter.Close, nil
}

func newHandler(format string, w io.Writer, level slog.Level) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevelName,
	}
	switch format {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, errors.Errorf("unknown log format %q", format)
	}
}

// replaceLevelName customizes level names.
func replaceLevelName(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level, ok := a.Value.Any().(slog.Level)
		if !ok {
			return a
		}
		levelLabel, exists := levelNames[level]
		if !exists {
			levelLabel = level.String()
		}
		a.Value = slog.StringValue(levelLabel)
	}
	return a
}

// Discard returns a logger that drops everything, for tests and library defaults.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
