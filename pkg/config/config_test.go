package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, "num-cpu 2\nscheduler rr\nquantum-cycles 2\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.NumCPU)
	assert.Equal(t, "rr", cfg.Scheduler)
	assert.Equal(t, 2, cfg.QuantumCycles)
	// Untouched keys keep their defaults.
	assert.Equal(t, 16384, cfg.MaxOverallMem)
}

func TestLoad_UnknownKeysAreAcceptedAndIgnored(t *testing.T) {
	path := writeConfig(t, "num-cpu 3 frobnicate yes\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.NumCPU)
}

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.txt"))
	require.Error(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_BadValueSkippedKeepsDefault(t *testing.T) {
	path := writeConfig(t, "num-cpu notanumber\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().NumCPU, cfg.NumCPU)
}
