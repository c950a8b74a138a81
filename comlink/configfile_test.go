package comlink

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "super.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cachePath: /tmp/my-cache
metricDebounceTimeMinSeconds: 5
cache: false
`), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/my-cache", cfg.CachePath)
	assert.Equal(t, 5*time.Second, cfg.MetricDebounceTimeMin)
	assert.False(t, cfg.Cache)
	// Untouched fields keep the DefaultConfig value.
	assert.Equal(t, DefaultConfig().SandboxTimeout, cfg.SandboxTimeout)
}

func TestLoadConfigFileMissingFileErrors(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}
