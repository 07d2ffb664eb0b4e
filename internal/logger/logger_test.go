package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New("warn", &buf)

	log.Debugf("hidden %d", 1)
	log.Infof("hidden %d", 2)
	log.Warnf("parsed %d entries", 3)
	log.Errorf("failed: %s", "boom")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "parsed 3 entries", rec["msg"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "failed: boom", rec["msg"])
}
