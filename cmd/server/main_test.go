package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/sms-relay/config.json")

	assert.Equal(t, "/tmp/override.json", configPath([]string{"/tmp/override.json"}))
	assert.Equal(t, "/etc/sms-relay/config.json", configPath(nil))
	assert.Equal(t, "/etc/sms-relay/config.json", configPath([]string{""}))

	t.Setenv("CONFIG_PATH", "")
	assert.Empty(t, configPath(nil))
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig("")
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
	})

	t.Run("file then environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"server":{"port":9090},"carrier":{"sender_name":"Clinic"}}`), 0600))
		t.Setenv("SERVER_PORT", "9191")

		cfg, err := loadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 9191, cfg.Server.Port)
		assert.Equal(t, "Clinic", cfg.Carrier.SenderName)
	})

	t.Run("relative path", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"server":{"port":7070}}`), 0600))
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(dir))
		t.Cleanup(func() { _ = os.Chdir(wd) })

		cfg, err := loadConfig("config.json")
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadConfig(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})

	t.Run("invalid after overlay", func(t *testing.T) {
		t.Setenv("SERVER_PORT", "0")

		_, err := loadConfig("")
		assert.Error(t, err)
	})
}
