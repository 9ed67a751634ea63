package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := ForService(New("warn", "json", &buf), "resource-server")

	log.Info().Msg("dropped")
	log.Warn().Str("k", "v").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "resource-server", entry["service"])
	assert.Equal(t, "v", entry["k"])
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New("loud", "json", &buf)

	log.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
	log.Info().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
