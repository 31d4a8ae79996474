package debug

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnableAt_WritesCategorisedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "debug.log")
	require.NoError(t, EnableAt(path))
	t.Cleanup(Disable)

	assert.True(t, Enabled())
	Log("registry", "opened %s", "IAC Bus 1")
	Disable()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Debug logging started")
	assert.Contains(t, string(data), "opened IAC Bus 1")
	assert.Contains(t, string(data), `"category": "registry"`)
}

func TestLog_DisabledIsSilent(t *testing.T) {
	Disable()
	assert.False(t, Enabled())
	assert.NotPanics(t, func() { Log("engine", "step %d", 3) })
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { _ = SetLevel("debug") })

	for _, name := range []string{"debug", "info", "warn", "error", " INFO "} {
		assert.NoError(t, SetLevel(name), name)
	}
	assert.Error(t, SetLevel("verbose"))
}
