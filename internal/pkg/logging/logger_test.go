package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	l, err := NewLogger(Options{Service: "inventory", Env: "test", File: path})
	require.NoError(t, err)

	l.Info("hello")
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(raw))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "inventory", entry["service"])
	assert.Contains(t, entry, "ts")
}

func TestNewLoggerTeesExtraCores(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l, err := NewLogger(Options{Service: "inventory", Env: "test", Level: "warn"}, core)
	require.NoError(t, err)

	l.Info("dropped by the primary level, seen by the observer")
	l.Warn("kept")

	assert.Equal(t, 2, logs.Len())
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(Options{Level: "loud"})
	assert.Error(t, err)
}
