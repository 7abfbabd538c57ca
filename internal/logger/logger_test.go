package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	err := Setup(LogConfig{Level: "debug", Format: "json", TimeFormat: "2006-01-02", Output: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Setup(DefaultConfig()) })

	l := WithComponent("test")
	l.Info().Str("file", "scan.png").Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestSetup_InvalidLevel(t *testing.T) {
	assert.Error(t, Setup(LogConfig{Level: "loud"}))
}

func TestFromContext(t *testing.T) {
	// Without a logger in the context the global one is returned.
	assert.NotNil(t, FromContext(context.Background()))

	l := WithRequestID("req-1")
	ctx := NewContext(context.Background(), l)
	assert.Equal(t, l, *FromContext(ctx))
}
