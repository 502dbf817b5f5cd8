package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoggerIsSilent(t *testing.T) {
	SetLogger(nil)
	assert.False(t, Logger().Enabled(context.Background(), slog.LevelError))
}

func TestSetLoggerAndFor(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewText(&buf, slog.LevelDebug))
	t.Cleanup(func() { SetLogger(nil) })

	For("bridge").Info("saved", "bytes", 12)
	assert.Contains(t, buf.String(), "component=bridge")
	assert.Contains(t, buf.String(), "bytes=12")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
