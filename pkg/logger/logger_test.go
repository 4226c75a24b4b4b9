package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterEmitsTypedFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, zerolog.DebugLevel).With("router")

	log.Info("alert routed",
		String("id", "alert_1"),
		Int("count", 3),
		Float64("severity", 82.5),
		Duration("delay", 500*time.Millisecond),
		Bool("spoken", true),
		Error(errors.New("boom")),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "router", entry["component"])
	assert.Equal(t, "alert routed", entry["message"])
	assert.Equal(t, "alert_1", entry["id"])
	assert.EqualValues(t, 3, entry["count"])
	assert.EqualValues(t, 82.5, entry["severity"])
	assert.EqualValues(t, 500, entry["delay"])
	assert.Equal(t, true, entry["spoken"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, zerolog.InfoLevel)
	log.Debug("hidden")
	assert.Zero(t, buf.Len())
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
}

func TestNopDoesNotPanic(t *testing.T) {
	log := NewNop()
	log.With("x").Error("ignored", String("k", "v"))
}
