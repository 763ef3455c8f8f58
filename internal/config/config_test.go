package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 80, cfg.Server.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "doc", cfg.Docs.Prefix)
	assert.Equal(t, 20*time.Second, cfg.APIs.Timeout)
	assert.Equal(t, []string{"gunicorn"}, cfg.Process.Managers)
	assert.Equal(t, "log", cfg.Crash.Reporter)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("KLUE_PORT", "8765")
	t.Setenv("KLUE_JWT_SECRET", "s3cr3t")
	t.Setenv("KLUE_SERVE", "orders, users")
	t.Setenv("KLUE_REPORT_CALL_EXCEEDING", "250ms")

	cfg := Load(New())

	assert.Equal(t, 8765, cfg.Server.Port)
	assert.Equal(t, "s3cr3t", cfg.JWT.Secret)
	assert.Equal(t, []string{"orders", "users"}, cfg.APIs.Serve)
	assert.Equal(t, 250*time.Millisecond, cfg.Crash.ReportCallExceeding)
}

func TestLoadDeployConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("https when a certificate is configured", func(t *testing.T) {
		path := filepath.Join(dir, "with-cert.yaml")
		require.NoError(t, os.WriteFile(path, []byte("live_host: api.example.com\naws_cert_arn: arn:aws:acm:xyz\n"), 0644))

		cfg, err := LoadDeployConfig(path)
		require.NoError(t, err)

		url, err := cfg.LiveURL()
		require.NoError(t, err)
		assert.Equal(t, "https://api.example.com", url)
		assert.Equal(t, DefaultReportSlowMsc, cfg.ReportCallExceedingMS)
	})

	t.Run("http without certificate", func(t *testing.T) {
		path := filepath.Join(dir, "plain.yaml")
		require.NoError(t, os.WriteFile(path, []byte("live_host: api.example.com\nreport_call_exceeding_ms: 50\n"), 0644))

		cfg, err := LoadDeployConfig(path)
		require.NoError(t, err)

		url, err := cfg.LiveURL()
		require.NoError(t, err)
		assert.Equal(t, "http://api.example.com", url)
		assert.Equal(t, 50, cfg.ReportCallExceedingMS)
	})

	t.Run("missing live_host", func(t *testing.T) {
		path := filepath.Join(dir, "nohost.yaml")
		require.NoError(t, os.WriteFile(path, []byte("aws_cert_arn: arn\n"), 0644))

		cfg, err := LoadDeployConfig(path)
		require.NoError(t, err)

		_, err = cfg.LiveURL()
		assert.ErrorIs(t, err, ErrMissingLiveHost)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadDeployConfig(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)

		cfg, err := LoadDeployConfigIfPresent(filepath.Join(dir, "nope.yaml"))
		require.NoError(t, err)
		assert.Empty(t, cfg.LiveHost)
	})
}
