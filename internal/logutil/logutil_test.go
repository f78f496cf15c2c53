package logutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildNop(t *testing.T) {
	l, err := build("", true)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(-1))
}

func TestBuildFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tui.log")
	l, err := build(path, false)
	require.NoError(t, err)
	l.Debug("hidden")
	l.Info("rebuild done")
	_ = l.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "rebuild done")
	assert.NotContains(t, string(b), "hidden")
}

func TestGetLoggerBeforeInit(t *testing.T) {
	assert.NotNil(t, GetLogger())
}
