package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docqa/internal/config"
)

func TestNew_WritesJSONAtConfiguredLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docqa.log")
	logger, err := New(config.LogConfig{Level: "warn", Format: "json"}, false, path)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", zap.String("name", "manual.txt"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "manual.txt", entry["name"])
	assert.Contains(t, entry, "ts")
}

func TestNew_VerboseEnablesDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docqa.log")
	logger, err := New(config.LogConfig{Level: "error", Format: "console"}, true, path)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestNew_RejectsBadSettings(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud", Format: "json"}, false)
	assert.Error(t, err)
	_, err = New(config.LogConfig{Format: "xml"}, false)
	assert.Error(t, err)
}
