package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(writer("json", &buf))
	logger.Info().Str("task_id", "t1").Msg("task created")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "t1", line["task_id"])
	assert.Equal(t, "task created", line["message"])
}

func TestWriterConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(writer("console", &buf))
	logger.Info().Str("task_id", "t1").Msg("task created")

	assert.Contains(t, buf.String(), "task created")
	assert.Contains(t, buf.String(), "task_id=")
}

func TestInitSetsLevel(t *testing.T) {
	Init(true, "json")
	assert.True(t, DebugEnabled())
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	Init(false, "json")
	assert.False(t, DebugEnabled())
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
