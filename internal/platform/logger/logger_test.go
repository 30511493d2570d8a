package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactsPHIAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "production", "debug")

	log.Info("document stored",
		"document_id", "doc-1",
		"passport_number", "X1234567",
		slog.Group("job", slog.String("member_id", "M-998")),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "doc-1", entry["document_id"])
	assert.Equal(t, Redacted, entry["passport_number"])
	group, ok := entry["job"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, Redacted, group["member_id"])
	assert.NotContains(t, buf.String(), "X1234567")
	assert.NotContains(t, buf.String(), "M-998")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "development", "warn")
	log.Info("dropped")
	log.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}
