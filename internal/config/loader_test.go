package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.GetConfigPath())
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		cfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, 18812, cfg.Server.Port)
		assert.Equal(t, tmpDir, cfg.DataDir)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"server": {"port": 9000},
			"client": {"timeout": 2.5, "session": "work"},
			"engine": {"watch_dir": "/srv/bins", "pinned": ["/bin/ls"]}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 2.5, cfg.Client.Timeout)
		assert.Equal(t, "work", cfg.Client.Session)
		assert.Equal(t, "/srv/bins", cfg.Engine.WatchDir)
		assert.Equal(t, []string{"/bin/ls"}, cfg.Engine.Pinned)
		assert.Equal(t, 4, cfg.Engine.MinStringLength)
	})

	t.Run("environment overrides", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("KNIFE_SERVER_PORT", "9100")
		t.Setenv("KNIFE_CLIENT_TIMEOUT", "10")
		t.Setenv("KNIFE_LOGGING_LEVEL", "debug")

		cfg, err := NewLoader(filepath.Join(tmpDir, "missing.json")).Load()
		require.NoError(t, err)
		assert.Equal(t, 9100, cfg.Server.Port)
		assert.Equal(t, 10.0, cfg.Client.Timeout)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{invalid`), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "knife.json")

	cfg := DefaultConfig()
	cfg.Server.Port = 9200
	cfg.Client.Session = "saved"

	loader := NewLoader(configPath)
	require.NoError(t, loader.Save(cfg))
	assert.FileExists(t, configPath)

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 9200, loaded.Server.Port)
	assert.Equal(t, "saved", loaded.Client.Session)
}

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}
