// Package logger provides slog helpers for the app.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/handsomefox/kinochat/internal/env"
)

// New builds the process logger: human readable text locally, JSON with
// source locations in production.
func New(level slog.Level, w io.Writer) *slog.Logger {
	if env.Current == env.Production {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			AddSource: true,
			Level:     level,
		}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Output returns stderr, teed into path when path is set. The returned
// closer releases the file.
func Output(path string) (io.Writer, io.Closer, error) {
	if strings.TrimSpace(path) == "" {
		return os.Stderr, io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // path comes from config.
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return io.MultiWriter(os.Stderr, f), f, nil
}

// ParseLevel maps debug|info|warn|error to a slog level, defaulting to info.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("err", "nil")
	}
	return slog.String("err", err.Error())
}

// BotLogger adapts a slog.Logger to the Telegram client's logger interface.
type BotLogger struct {
	Logger *slog.Logger
}

func (l BotLogger) Println(v ...any) {
	l.Logger.Debug(strings.TrimSuffix(fmt.Sprintln(v...), "\n"), slog.String("component", "telegram"))
}

func (l BotLogger) Printf(format string, v ...any) {
	l.Logger.Debug(fmt.Sprintf(format, v...), slog.String("component", "telegram"))
}
