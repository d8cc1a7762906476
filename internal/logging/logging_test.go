package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go-cube-export/internal/config"
)

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cube-export.log")
	logger := New(config.LogConfig{File: path, MaxSizeMB: 1, MaxBackups: 1})
	logger.Info("sync finished", zap.Int("forms", 3))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"sync finished"`)
	assert.Contains(t, string(data), `"forms":3`)
}

func TestNewDebugLevel(t *testing.T) {
	logger := New(config.LogConfig{Debug: true})
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger = New(config.LogConfig{})
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
}
