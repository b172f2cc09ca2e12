package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", FormatJSON)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Str("room", "general").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "general", line["room"])
	assert.Equal(t, "shown", line["message"])
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "", FormatConsole)
	require.NoError(t, err)

	logger.Info().Msg("client registered")
	assert.Contains(t, buf.String(), "client registered")
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(nil, "loud", FormatJSON)
	assert.Error(t, err)

	_, err = New(nil, "info", "xml")
	assert.Error(t, err)
}
