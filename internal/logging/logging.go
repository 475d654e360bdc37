package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config contains logging configuration for a single process (Master
// or a Worker).
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the path to the log file. Empty means no file logging.
	FilePath string
	// MaxSizeMB is the maximum size in MB before rotation.
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files to keep.
	MaxFiles int
	// WriteToStderr additionally mirrors log lines to stderr.
	WriteToStderr bool
}

// DefaultConfig returns the Master's default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      MasterLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// WorkerConfig returns the default logging configuration for a Worker,
// identified by pid so each Worker's log file is distinct. Workers
// don't mirror to stderr: their stdout carries the ProcessMessage
// protocol and their stderr is passed through to the Master's own.
func WorkerConfig(pid int) Config {
	return Config{
		Level:         "info",
		FilePath:      WorkerLogPath(pid),
		MaxSizeMB:     10,
		MaxFiles:      3,
		WriteToStderr: false,
	}
}

// Setup initializes file-based structured logging and returns a
// cleanup function that must be called before the process exits.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if err := EnsureLogDir(); err != nil {
		return nil, nil, err
	}

	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var output io.Writer = writer
	if cfg.WriteToStderr {
		output = io.MultiWriter(writer, os.Stderr)
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	logger := slog.New(handler)

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}

	return logger, cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
