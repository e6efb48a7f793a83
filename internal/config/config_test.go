package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutepulse/commutepulse/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, config.ProviderSeoul, cfg.Transit.Provider)
	assert.Equal(t, 30*time.Second, cfg.Transit.CacheTTL)
	assert.Equal(t, "08:00", cfg.Pattern.MorningWeekday)
	assert.Equal(t, 30, cfg.Pattern.MaxSamples)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
pattern:
  morning_weekday: "07:45"
  mature_samples: 10
transit:
  cache_ttl: 45s
  seoul:
    page_size: 10
delay:
  concurrency: 8
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "07:45", cfg.Pattern.MorningWeekday)
	assert.Equal(t, "18:30", cfg.Pattern.EveningWeekday, "unset keys keep defaults")
	assert.Equal(t, 10, cfg.Pattern.MatureSamples)
	assert.Equal(t, 45*time.Second, cfg.Transit.CacheTTL)
	assert.Equal(t, 10, cfg.Transit.Seoul.PageSize)
	assert.Equal(t, 8, cfg.Delay.Concurrency)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "7070")
	t.Setenv("SEOUL_API_KEY", "secret")
	t.Setenv("JWT_SIGNING_KEY", "signing")
	t.Setenv("PUBSUB_DEPARTURE_TOPIC", "departures")
	t.Setenv("REQUIRE_TLS", "true")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Transit.Seoul.APIKey)
	assert.Equal(t, "signing", cfg.Auth.JWTSigningKey)
	assert.Equal(t, "departures", cfg.PubSub.DepartureTopic)
	assert.True(t, cfg.Server.RequireTLS)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("APP_PORT", "not-a-port")

	_, err := config.Load("")
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad clock", content: "pattern:\n  morning_weekday: \"8am\"\n"},
		{name: "unknown provider", content: "transit:\n  provider: tmap\n"},
		{name: "gtfsrt without feed", content: "transit:\n  provider: gtfsrt\n"},
		{name: "mature above max", content: "pattern:\n  max_samples: 10\n  mature_samples: 20\n"},
		{name: "zero concurrency", content: "worker:\n  concurrency: 0\n"},
		{name: "malformed yaml", content: "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
