package logging

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "json", Level: "debug", Output: &buf, Component: "engine"})
	require.NoError(t, err)

	logger.Debug().Uint8("checksum", 0xAB).Msg("duplicate app packet")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "duplicate app packet", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "json", Level: "warn", Output: &buf})
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())
	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "console", Level: "info", Output: &buf})
	require.NoError(t, err)
	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Config{Format: "xml"})
	assert.Error(t, err)
	_, err = New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestLevelForDebugMode(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, LevelForDebugMode(0))
	assert.Equal(t, zerolog.InfoLevel, LevelForDebugMode(1))
	assert.Equal(t, zerolog.DebugLevel, LevelForDebugMode(2))
	assert.Equal(t, zerolog.DebugLevel, LevelForDebugMode(9))
}
