// Package logging writes the JSONL runtime log under the XDG state dir.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// maxLogBytes is the size at which New rotates the log to <path>.1.
const maxLogBytes = 8 << 20

// Runtime is an open logger and the file behind it.
type Runtime struct {
	Logger *slog.Logger
	Path   string
	Level  slog.Level
	closer io.Closer
}

// Close closes the log file.
func (r Runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// New opens the JSONL log for appending at level. Unknown levels log at info.
func New(level string) (Runtime, error) {
	path, err := resolveLogPath()
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Runtime{}, fmt.Errorf("create log dir: %w", err)
	}
	if err := rotate(path, maxLogBytes); err != nil {
		return Runtime{}, err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Runtime{}, fmt.Errorf("open log: %w", err)
	}

	lvl := ParseLevel(level)
	logger := slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: lvl})).With("pid", os.Getpid())
	return Runtime{Logger: logger, Path: path, Level: lvl, closer: file}, nil
}

// ParseLevel accepts slog level names in any case, with optional offsets
// such as "debug-2".
func ParseLevel(raw string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// rotate moves path to path.1 once it reaches limit bytes, replacing any
// earlier rotation.
func rotate(path string, limit int64) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() < limit {
		return nil
	}
	if err := os.Rename(path, path+".1"); err != nil {
		return fmt.Errorf("rotate log: %w", err)
	}
	return nil
}

func resolveLogPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "studyvoice", "log.jsonl"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve log path: %w", err)
	}
	return filepath.Join(home, ".local", "state", "studyvoice", "log.jsonl"), nil
}
