package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nightproc/internal/config"
)

// FilePattern matches the per-run JSON log files written by NewFromConfig.
const FilePattern = "nightproc-*.log"

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Console receives formatted output. Nil means stderr.
	Console io.Writer
	// Color enables ANSI level colouring on the console handler.
	Color bool
	// FilePath, when set, receives a JSON copy of every record.
	FilePath string
}

// Session is a constructed logger plus the file it may own.
type Session struct {
	Logger *slog.Logger
	// Path is the JSON log file, empty when no file is written.
	Path string
	file *os.File
}

// Close flushes and closes the JSON log file.
func (s *Session) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		_ = s.file.Close()
		return fmt.Errorf("sync log file: %w", err)
	}
	return s.file.Close()
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*Session, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(opts.Level))
	addSource := levelVar.Level() <= slog.LevelDebug

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var primary slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		primary = newConsoleHandler(console, levelVar, opts.Color, addSource)
	case "json":
		primary = newJSONHandler(console, levelVar, addSource)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	session := &Session{}
	handlers := []slog.Handler{primary}
	if path := strings.TrimSpace(opts.FilePath); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		session.file = file
		session.Path = path
		// The file always captures debug detail regardless of console level.
		fileLevel := new(slog.LevelVar)
		fileLevel.Set(slog.LevelDebug)
		handlers = append(handlers, newJSONHandler(file, fileLevel, true))
	}
	session.Logger = slog.New(newFanoutHandler(handlers...))
	return session, nil
}

// NewFromConfig creates the logger for one command invocation. The JSON file
// lands in the configured log directory, named after started.
func NewFromConfig(cfg *config.Config, console io.Writer, color bool, started time.Time) (*Session, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console", Console: console, Color: color})
	}
	opts := Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Console: console,
		Color:   color,
	}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		opts.FilePath = filepath.Join(dir, RunLogName(started))
	}
	return New(opts)
}

// RunLogName returns the log file name for a run started at ts.
func RunLogName(ts time.Time) string {
	return "nightproc-" + ts.UTC().Format("20060102T150405") + ".log"
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
