package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RQS_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultKeyServiceURL, cfg.KeyServiceURL)
	assert.Equal(t, DefaultRunsServiceURL, cfg.RunsServiceURL)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultMaxOutputTokens, cfg.MaxOutputTokens)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RQS_DATA_DIR", dir)
	t.Setenv("RQS_PORT", "8080")
	t.Setenv("RQS_MODEL", "claude-3-5-haiku-20241022")
	t.Setenv("RQS_KEY_SERVICE_URL", "https://keys.internal.test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "claude-3-5-haiku-20241022", cfg.Model)
	assert.Equal(t, "https://keys.internal.test", cfg.KeyServiceURL)
	assert.Equal(t, filepath.Join(dir, "qualifications.db"), cfg.DBPath())
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("RQS_DATA_DIR", t.TempDir())

	t.Setenv("RQS_PORT", "70000")
	_, err := Load()
	assert.ErrorContains(t, err, "port")

	t.Setenv("RQS_PORT", "3000")
	t.Setenv("RQS_MAX_OUTPUT_TOKENS", "0")
	_, err = Load()
	assert.ErrorContains(t, err, "max_output_tokens")
}
