package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "xray-backend/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/usr/local/etc/xray/config.json", cfg.Xray.ConfigPath)
	assert.Equal(t, "/usr/local/etc/xray/config.json.backup", cfg.Xray.BackupPath())
	assert.Equal(t, "/usr/local/etc/xray/.config.json.lock", cfg.Xray.LockPath())
	assert.Equal(t, "blocked", cfg.Xray.BlockedTag)
	assert.Equal(t, "/opt/quota", cfg.Storage.QuotaDir)
	assert.Equal(t, "/run/xray-backend.sock", cfg.Socket.Path)
	assert.Equal(t, os.FileMode(0o660), cfg.Socket.SocketMode())
	assert.Equal(t, "xray-discord-bot", cfg.Services.LogUnits["bot"])
	assert.Equal(t, 443, cfg.Host.DefaultPort)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backend.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
xray:
  config_path: /etc/xray/config.json
storage:
  quota_dir: /srv/quota
  write_qr: false
socket:
  group: ""
log_level: DEBUG
`), 0o644))

	t.Setenv("XRAY_BACKEND_STORAGE_SHEET_DIR", "/srv/sheets")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/xray/config.json", cfg.Xray.ConfigPath)
	assert.Equal(t, "/srv/quota", cfg.Storage.QuotaDir)
	assert.Equal(t, "/srv/sheets", cfg.Storage.SheetDir)
	assert.False(t, cfg.Storage.WriteQR)
	assert.Empty(t, cfg.Socket.Group)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host:\n  default_port: 70000\n"), 0o644))

	_, err := Load(path)
	var cfgErr *apperrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "host", cfgErr.Section)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
