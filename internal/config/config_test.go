package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CHAT_SERVICE_DB_MIGRATE_AT_START", "false")
	t.Setenv("CHAT_SERVICE_CACHE_USER_TTL", "90s")
	t.Setenv("CHAT_SERVICE_MAX_BODY_SIZE", "2MB")
	t.Setenv("CHAT_SERVICE_API_KEYS_MOBILE_APP", "secret-one, secret-two")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnvOverrides())

	require.False(t, cfg.DatastoreMigrateAtStart)
	require.Equal(t, 90*time.Second, cfg.CacheUserTTL)
	require.Equal(t, int64(2*1024*1024), cfg.MaxBodySize)
	require.Equal(t, "mobile_app", cfg.APIKeys["secret-one"])
	require.Equal(t, "mobile_app", cfg.APIKeys["secret-two"])
}

func TestApplyEnvOverridesRejectsBadValues(t *testing.T) {
	t.Setenv("CHAT_SERVICE_MAX_BODY_SIZE", "not-a-size")
	cfg := DefaultConfig()
	require.Error(t, cfg.ApplyEnvOverrides())
}

func TestParseMemorySize(t *testing.T) {
	for raw, want := range map[string]int64{
		"1024": 1024,
		"10K":  10 * 1024,
		"2MB":  2 * 1024 * 1024,
		"1G":   1024 * 1024 * 1024,
		"512B": 512,
	} {
		got, err := parseMemorySize(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}

	for _, bad := range []string{"", "-5", "abc", "0"} {
		_, err := parseMemorySize(bad)
		require.Error(t, err, bad)
	}
}

func TestContextRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	ctx := WithContext(t.Context(), &cfg)
	require.Same(t, &cfg, FromContext(ctx))
}
