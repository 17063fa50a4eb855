package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
api:
  port: "9090"
  environment: "test"
  jwt_signing_key: "0123456789abcdef0123"
  token_ttl: "2h"
gin:
  mode: "test"
postgres:
  driver: "sqlite"
  sqlite_path: "file::memory:"
log:
  level: "debug"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	conf, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "9090", conf.API.Port)
	assert.Equal(t, EnvTest, conf.API.Environment)
	assert.Equal(t, 2*time.Hour, conf.API.TokenTTL)
	assert.Equal(t, time.Hour, conf.API.ResetTokenTTL)
	assert.Equal(t, "sqlite", conf.Postgres.Driver)
	assert.Equal(t, "debug", conf.Log.Level)
	require.NotNil(t, conf.Redis)
	assert.Empty(t, conf.Redis.Addr)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LOYALTY_API_PORT", "7070")

	conf, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "7070", conf.API.Port)
}

func TestLoad_ShortSigningKey(t *testing.T) {
	content := `
api:
  environment: "test"
  jwt_signing_key: "short"
postgres:
  driver: "sqlite"
`
	_, err := Load(writeConfig(t, content))
	assert.Error(t, err)
}

func TestLoad_UnknownEnvironment(t *testing.T) {
	content := `
api:
  environment: "staging"
  jwt_signing_key: "0123456789abcdef0123"
`
	_, err := Load(writeConfig(t, content))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
