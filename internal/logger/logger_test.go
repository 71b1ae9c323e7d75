package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	l, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)
	defer l.Close()

	log := l.Zerolog()
	log.Info().Str("service", "chatgpt").Msg("task completed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "task completed")
	assert.Contains(t, string(data), `"service":"chatgpt"`)
}

func TestNewRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	l, err := New(Config{Level: "warn", File: path})
	require.NoError(t, err)
	defer l.Close()

	log := l.Zerolog()
	log.Info().Msg("filtered out")
	log.Warn().Msg("kept")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "filtered out")
	assert.Contains(t, string(data), "kept")
}

func TestNewInvalidLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	l, err := New(Config{Level: "chatty", File: path})
	require.NoError(t, err)
	defer l.Close()

	log := l.Zerolog()
	log.Debug().Msg("below info")
	log.Info().Msg("at info")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "below info")
	assert.Contains(t, string(data), "at info")
}

func TestRedactionInPipeline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	l, err := New(Config{Level: "info", File: path, Redaction: true})
	require.NoError(t, err)
	defer l.Close()

	log := l.Zerolog()
	log.Info().Str("auth", "Bearer abc123def456ghi789").Msg("session restored")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "abc123def456ghi789")
	assert.Contains(t, string(data), "[REDACTED]")
}
