package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
database:
  url: postgres://localhost/shapeshyft
auth:
  secret: signing-secret
  master_key: `+strings.Repeat("ab", 32)+`
log:
  json: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "postgres://localhost/shapeshyft", cfg.Database.URL)
	assert.True(t, cfg.Log.JSON)
	assert.False(t, cfg.Log.Debug)

	key, err := cfg.Auth.MasterKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestLoadRejectsIncomplete(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/shapeshyft
`)

	_, err := Load(path)
	assert.Error(t, err, "missing auth settings must fail validation")
}

func TestLoadRejectsBadMasterKey(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/db
auth:
  secret: s
  master_key: tooshort
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
