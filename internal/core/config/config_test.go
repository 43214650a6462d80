package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

const minimalYAML = `
security:
  master_secret: test-master
credentials:
  authority_url: http://localhost:9000
rejections:
  dsn: postgres://localhost/pulse?sslmode=disable
`

func TestLoad_DefaultsApply(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, minimalYAML))
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "release", cfg.Server.Mode)
	require.Equal(t, 5*time.Minute, cfg.Security.ReplayWindow())
	require.Equal(t, int64(600), cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, 100, cfg.Ingestion.MaxBatchSize)
	require.Equal(t, 7*24*time.Hour, cfg.Ingestion.MaxEventAge())
	require.Equal(t, time.Hour, cfg.Ingestion.EventDedupeTTL())
	require.Equal(t, 24*time.Hour, cfg.Ingestion.OrderDedupeTTL())
	require.Equal(t, 5*time.Minute, cfg.Credentials.PositiveTTL())
	require.Equal(t, time.Minute, cfg.Credentials.NegativeTTL())
	require.False(t, cfg.Credentials.DevFallback)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.True(t, cfg.Delivery.Enabled)
	require.Equal(t, 2*time.Hour, cfg.Delivery.DupeWindow())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, minimalYAML+`
server:
  port: 9090
  mode: debug
rate_limit:
  requests_per_minute: 50
ingestion:
  max_batch_size: 25
`))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.Mode)
	require.Equal(t, int64(50), cfg.RateLimit.RequestsPerMinute)
	require.Equal(t, 25, cfg.Ingestion.MaxBatchSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("PULSE_SERVER__PORT", "7070")
	t.Setenv("PULSE_SECURITY__MASTER_SECRET", "env-master")

	cfg, err := Load(writeConfigFile(t, minimalYAML))
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "env-master", cfg.Security.MasterSecret)
}

func TestLoad_MissingMasterSecretFails(t *testing.T) {
	_, err := Load(writeConfigFile(t, `
credentials:
  authority_url: http://localhost:9000
rejections:
  dsn: postgres://localhost/pulse
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "master_secret")
}

func TestLoad_MissingAuthorityURLRequiresDevFallback(t *testing.T) {
	withoutAuthority := `
security:
  master_secret: test-master
rejections:
  dsn: postgres://localhost/pulse
`
	_, err := Load(writeConfigFile(t, withoutAuthority))
	require.Error(t, err)
	require.Contains(t, err.Error(), "authority_url")

	cfg, err := Load(writeConfigFile(t, withoutAuthority+`
credentials:
  dev_fallback: true
`))
	require.NoError(t, err)
	require.True(t, cfg.Credentials.DevFallback)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"mode", func(c *Config) { c.Server.Mode = "verbose" }, "server.mode"},
		{"replay window", func(c *Config) { c.Security.ReplayWindowMs = 0 }, "replay_window_ms"},
		{"rate limit", func(c *Config) { c.RateLimit.RequestsPerMinute = -1 }, "requests_per_minute"},
		{"batch size", func(c *Config) { c.Ingestion.MaxBatchSize = 0 }, "max_batch_size"},
		{"authority timeout", func(c *Config) { c.Credentials.AuthorityTimeout = "soon" }, "authority_timeout"},
		{"redis addr", func(c *Config) { c.Redis.Addr = " " }, "redis.addr"},
		{"delivery stream", func(c *Config) { c.Delivery.Stream = "" }, "delivery.stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfigFile(t, minimalYAML))
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.substr)
		})
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
