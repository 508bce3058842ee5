package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civium/matchd/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "collections", cfg.Store.DataDir)
	assert.Equal(t, 512, cfg.Store.Dimension)
	assert.InDelta(t, 0.4, cfg.Match.DefaultThreshold, 1e-6)
	assert.Equal(t, 10, cfg.Match.DefaultTopK)
	assert.Equal(t, 5, cfg.Match.FanOutLimit)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "collections", cfg.Store.DataDir)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
store:
  data_dir: /var/lib/matchd
  dimension: 128
match:
  default_threshold: 0.6
  default_top_k: 5
logging:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/matchd", cfg.Store.DataDir)
	assert.Equal(t, 128, cfg.Store.Dimension)
	assert.InDelta(t, 0.6, cfg.Match.DefaultThreshold, 1e-6)
	assert.Equal(t, 5, cfg.Match.DefaultTopK)
	// Unset fields still default.
	assert.Equal(t, 5, cfg.Match.FanOutLimit)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
store:
  data_dir: /from/file
match:
  default_top_k: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("STORE_DATA_DIR", "/from/env")
	t.Setenv("MATCH_DEFAULT_TOP_K", "7")
	t.Setenv("LOGGING_LEVEL", "warn")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.Store.DataDir)
	assert.Equal(t, 7, cfg.Match.DefaultTopK)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [not: a: map"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
store:
  dimension: -8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}
