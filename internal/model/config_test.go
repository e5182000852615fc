package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, PolicyAll, cfg.Sync.Policy)
	assert.Equal(t, 60*time.Second, cfg.Sync.Timeout)
	assert.Equal(t, "gmail", cfg.Source.Type)
	assert.Equal(t, "INBOX", cfg.Source.Folder)
	assert.True(t, cfg.Archive.Dedupe)
}

func TestLoadConfig_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
sync:
  lookback: 10
  policy: first
  timeout: 5s
source:
  mailbox: notes@example.com
  label: Label_42
archive:
  type: drive
  folder_id: vault-folder
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("MAILVAULT_STORE_DSN", "memory://")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(10), cfg.Sync.Lookback)
	assert.Equal(t, PolicyFirst, cfg.Sync.Policy)
	assert.Equal(t, 5*time.Second, cfg.Sync.Timeout)
	assert.Equal(t, "notes@example.com", cfg.Source.Mailbox)
	assert.Equal(t, "Label_42", cfg.Source.Label)
	assert.Equal(t, "drive", cfg.Archive.Type)
	assert.Equal(t, "vault-folder", cfg.Archive.FolderID)
	assert.Equal(t, "memory://", cfg.Store.DSN)
}

func TestLoadConfig_RejectsUnknownPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  policy: newest\n"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync.policy")
}

func TestLoadConfig_IMAPRequiresHost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source:\n  type: imap\n"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.host")
}
