package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080", c.BackendURL)
	assert.Equal(t, 1, c.RetryMaxAttempts)
	assert.Equal(t, 30, c.HTTPTimeoutSec)
	assert.Equal(t, 100, c.PreviewRows)
	assert.False(t, c.BlockOnPersistFailure)
	assert.Equal(t, "file", c.StoreDriver)
	assert.Equal(t, filepath.Join(home, ".mixwizard", "sessions"), c.SessionsDir)
	assert.Equal(t, filepath.Join(home, ".mixwizard", "states"), c.LocalStoreDir)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("backend_url: http://file:1\npreview_rows: 25\n"), 0o644))
	t.Setenv("MIXWIZARD_BACKEND_URL", "http://env:2")

	c, err := Load(cfgFile)
	require.NoError(t, err)
	assert.Equal(t, "http://env:2", c.BackendURL)
	assert.Equal(t, 25, c.PreviewRows)
}

func TestSaveAndReload(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfgFile := filepath.Join(t.TempDir(), "nested", "config.yaml")

	c, err := Load(cfgFile)
	require.NoError(t, err)
	require.NoError(t, c.Set("block_on_persist_failure", "true"))
	require.NoError(t, c.Set("retry_max_attempts", "4"))
	require.NoError(t, Save(c, cfgFile))

	again, err := Load(cfgFile)
	require.NoError(t, err)
	assert.True(t, again.BlockOnPersistFailure)
	assert.Equal(t, 4, again.RetryMaxAttempts)
}

func TestSetRejectsUnknownKeyAndBadValue(t *testing.T) {
	c := &Global{}
	assert.Error(t, c.Set("api_key", "x"))
	assert.Error(t, c.Set("preview_rows", "many"))
}
