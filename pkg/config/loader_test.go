package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoUserConfigReturnsValidDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 10000, cfg.Cache.MaxSize)
	assert.Equal(t, "stdio", cfg.Server.Transport)
}

func TestLoad_UserConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
cache:
  max_size: 500
server:
  transport: stdio
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Cache.MaxSize)
	assert.Equal(t, 5000+0, cfg.EventStore.MaxTotalEvents/20) // unaffected default sanity check
}

func TestLoad_ExpandsEnvironmentVariables(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_API_KEY_ENV_NAME", "MY_CUSTOM_KEY_ENV")
	yaml := `
search:
  api_key_env: "${TEST_API_KEY_ENV_NAME}"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "MY_CUSTOM_KEY_ENV", cfg.Search.APIKeyEnv)
}

func TestValidate_RejectsHTTPTransportWithoutAddr(t *testing.T) {
	cfg := Default()
	cfg.Server.Transport = "http"
	cfg.Server.HTTPAddr = ""

	err := Validate(cfg)
	assert.Error(t, err)
}

func TestValidate_RejectsEncryptionEnabledWithoutKeyEnv(t *testing.T) {
	cfg := Default()
	cfg.EventStore.EncryptionEnabled = true
	cfg.EventStore.EncryptionKeyEnv = "SOME_UNSET_VAR_XYZ"

	err := Validate(cfg)
	assert.Error(t, err)
}

func TestSummary(t *testing.T) {
	cfg := Default()
	s := cfg.Summary()
	assert.Equal(t, 10000, s.CacheMaxSize)
	assert.Equal(t, "stdio", s.Transport)
}
