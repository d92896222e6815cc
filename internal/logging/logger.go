package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a JSON slog logger on stdout configured at the provided level.
// If the level string is invalid it defaults to info.
func New(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)}))
}

// NewText creates a human-readable logger writing to w. The CLI uses it on
// stderr so command output on stdout stays clean.
func NewText(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// MaskMobile keeps the first and last two digits of a mobile number.
func MaskMobile(mobile string) string {
	if len(mobile) <= 4 {
		return strings.Repeat("*", len(mobile))
	}
	return mobile[:2] + strings.Repeat("*", len(mobile)-4) + mobile[len(mobile)-2:]
}

func parseLevel(level string) *slog.LevelVar {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}
	return lvl
}
