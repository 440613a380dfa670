package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/notifyhub.yaml")
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 1000, cfg.RateLimit.EmailPerHour)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	os.Setenv("RATE_LIMIT_EMAIL_PER_HOUR", "42")
	os.Setenv("QUIET_HOURS_URGENT_BYPASS", "false")
	defer os.Unsetenv("RATE_LIMIT_EMAIL_PER_HOUR")
	defer os.Unsetenv("QUIET_HOURS_URGENT_BYPASS")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.RateLimit.EmailPerHour)
	assert.False(t, cfg.QuietHours.UrgentBypass)
}

func TestExpandEnvVars_DefaultAppliesWhenUnset(t *testing.T) {
	os.Unsetenv("NOTIFYHUB_TEST_VAR")
	got := expandEnvVars("level: ${NOTIFYHUB_TEST_VAR:-info}")
	assert.Equal(t, "level: info", got)
}

func TestExpandEnvVars_EnvValueWins(t *testing.T) {
	os.Setenv("NOTIFYHUB_TEST_VAR", "debug")
	defer os.Unsetenv("NOTIFYHUB_TEST_VAR")
	got := expandEnvVars("level: ${NOTIFYHUB_TEST_VAR:-info}")
	assert.Equal(t, "level: debug", got)
}

func TestValidate_RejectsInvalidPort(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	assert.Error(t, Validate(cfg))
}

func TestValidate_RejectsUnknownRateLimiterBackend(t *testing.T) {
	cfg := Default()
	cfg.RateLimit.Backend = "etcd"
	assert.Error(t, Validate(cfg))
}
