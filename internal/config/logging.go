package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

// ParseLogLevel maps a config file's log_level string to a slog.Level,
// defaulting to Info for anything empty or unrecognized.
func ParseLogLevel(s string) slog.Level {
	switch s {
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

// SetupLogger builds the process-wide logger for cmd/server: every
// event is fanned out to a human-readable stderr stream
// and a JSON file under dataDir for the audit tooling to tail, both at
// the level named in the loaded Config rather than a hardcoded level.
// Every line carries the service name and embedding dimension so logs
// from a deployment running several dims side by side stay
// distinguishable. Unlike a best-effort stderr-only fallback, a log
// file that can't be opened is treated as a startup failure — an
// engine that silently drops its audit trail is worse than one that
// refuses to start.
func SetupLogger(dataDir string, level slog.Level, dim int) (*slog.Logger, func() error, error) {
	logPath := filepath.Join(dataDir, "cortex-engine.log")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", logPath, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	logger := slog.New(slogmulti.Fanout(
		slog.NewTextHandler(os.Stderr, opts),
		slog.NewJSONHandler(file, opts),
	)).With("service", "cortex-engine", "embedding_dim", dim)

	return logger, file.Close, nil
}
