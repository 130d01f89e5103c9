package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/feeledger/internal/config"
)

func TestNewLogger_JSONLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.Logging{Level: "info", Format: "json"}, false, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("payment", zap.Uint64("amount", 10_000))
	require.NoError(t, logger.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "payment", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, float64(10_000), entry["amount"])
}

func TestNewLogger_VerboseForcesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.Logging{Level: "error", Format: "console"}, true, &buf)
	require.NoError(t, err)

	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "feeledger.log")
	var buf bytes.Buffer
	logger, err := newLogger(config.Logging{Level: "info", Format: "json", File: path, MaxSizeMB: 1}, false, &buf)
	require.NoError(t, err)

	logger.Info("to both")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}

func TestNewLogger_InvalidSettings(t *testing.T) {
	_, err := New(config.Logging{Level: "loud", Format: "json"}, false)
	assert.Error(t, err)

	_, err = New(config.Logging{Level: "info", Format: "xml"}, false)
	assert.Error(t, err)
}
