package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppConfigDefaults(t *testing.T) {
	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, 3, cfg.Jobs.MaxConcurrent)
	assert.Equal(t, 10, cfg.Jobs.HeartbeatRows)
	assert.Equal(t, 15*time.Second, cfg.Jobs.HeartbeatInterval)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Monitor.StallTimeout)
	assert.Equal(t, VerifierModeReal, cfg.Verifier.Mode)
	assert.Equal(t, 24*time.Hour, cfg.Verifier.CatchAllTTL)
	assert.Equal(t, 5, cfg.Scoring.FreeProvider)
	assert.Equal(t, 15, cfg.Scoring.CatchAll)
	assert.Equal(t, 25, cfg.Scoring.Unreachable)
	assert.Equal(t, 40, cfg.Scoring.Unverifiable)
	assert.False(t, cfg.Redis.Enabled())
}

func TestParseServices(t *testing.T) {
	t.Run("valid list", func(t *testing.T) {
		services, err := ParseServices("monitor, retention")
		require.NoError(t, err)
		assert.True(t, services[ServiceModeMonitor])
		assert.True(t, services[ServiceModeRetention])
	})

	t.Run("single service", func(t *testing.T) {
		services, err := ParseServices("monitor")
		require.NoError(t, err)
		assert.True(t, services[ServiceModeMonitor])
		assert.False(t, services[ServiceModeRetention])
	})

	t.Run("unknown name rejected", func(t *testing.T) {
		_, err := ParseServices("monitor,scheduler")
		assert.Error(t, err)
	})

	t.Run("empty rejected", func(t *testing.T) {
		_, err := ParseServices("")
		assert.Error(t, err)
	})
}

func TestJobsConfigSanitize(t *testing.T) {
	cfg := JobsConfig{MaxConcurrent: 0, HeartbeatRows: -5, HeartbeatInterval: 0, FlushMaxAttempts: 0}
	cfg.Sanitize()
	assert.Equal(t, 1, cfg.MaxConcurrent)
	assert.Equal(t, 1, cfg.HeartbeatRows)
	assert.Equal(t, time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 1, cfg.FlushMaxAttempts)

	big := JobsConfig{MaxConcurrent: 500}
	big.Sanitize()
	assert.Equal(t, 20, big.MaxConcurrent)
}

func TestVerifierConfigSanitizeAndValidate(t *testing.T) {
	cfg := VerifierConfig{
		Mode:           "bogus",
		NetworkTimeout: 5 * time.Minute,
		SMTPHello:      "hello.example.com",
		SMTPFrom:       "probe@example.com",
	}
	cfg.Sanitize()
	assert.Equal(t, VerifierModeReal, cfg.Mode)
	assert.Equal(t, time.Minute, cfg.NetworkTimeout)
	require.NoError(t, cfg.Validate())

	cfg.SMTPFrom = "not-an-address"
	assert.Error(t, cfg.Validate())
}

func TestVerifierModeUnmarshalText(t *testing.T) {
	var m VerifierMode
	require.NoError(t, m.UnmarshalText([]byte("MOCK")))
	assert.Equal(t, VerifierModeMock, m)
	assert.Error(t, m.UnmarshalText([]byte("dry-run")))
}

func TestDefaultLists(t *testing.T) {
	lists := DefaultLists()
	assert.True(t, lists.DisposableDomains["mailinator.com"])
	assert.True(t, lists.RoleLocalParts["info"])
	assert.True(t, lists.FreeProviders["gmail.com"])
	assert.False(t, lists.FreeProviders["example.com"])
}

func TestLoadListsOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lists.yaml")
	content := `
disposable_domains:
  - Trashmail.example
role_local_parts:
  - billing
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	lists, err := LoadLists(path)
	require.NoError(t, err)
	assert.True(t, lists.DisposableDomains["trashmail.example"])
	assert.False(t, lists.DisposableDomains["mailinator.com"], "override replaces the default set")
	assert.True(t, lists.RoleLocalParts["billing"])
	// Untouched section keeps defaults.
	assert.True(t, lists.FreeProviders["gmail.com"])
}

func TestLoadListsMissingFile(t *testing.T) {
	_, err := LoadLists("/nonexistent/lists.yaml")
	assert.Error(t, err)
}
