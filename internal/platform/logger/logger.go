package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Redacted replaces the value of any attribute whose key names a PHI field.
const Redacted = "[REDACTED]"

// phiKeys lists attribute keys that must never reach a log sink with their value.
// Call sites should not log these at all; the hook catches mistakes.
var phiKeys = map[string]struct{}{
	"extracted_fields": {},
	"image_base64":     {},
	"document_number":  {},
	"passport_number":  {},
	"member_id":        {},
	"medicaid_id":      {},
	"card_number":      {},
	"account_number":   {},
	"date_of_birth":    {},
	"full_name":        {},
	"address":          {},
}

// New returns a structured logger. Production uses JSON; everything else uses text.
func New(env, level string) *slog.Logger {
	return NewWithWriter(os.Stdout, env, level)
}

// NewWithWriter is New with an explicit sink, used by tests.
func NewWithWriter(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: redactPHI,
	}
	if env == "production" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func redactPHI(_ []string, a slog.Attr) slog.Attr {
	if _, ok := phiKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, Redacted)
	}
	return a
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
