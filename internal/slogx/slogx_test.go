package slogx

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "warn", "json").Warn("fetch retry", "tf", "days|1")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "fetch retry", line["msg"])
	assert.Equal(t, "days|1", line["tf"])

	buf.Reset()
	l := New(&buf, "warn", "text")
	l.Info("hidden")
	l.Warn("shown", "instrument", "NSE_EQ|X")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `instrument=NSE_EQ|X`)
}
