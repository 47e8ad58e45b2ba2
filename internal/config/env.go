package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides reads environment variables that are not represented by
// dedicated CLI flags in the serve command.
func (c *Config) ApplyEnvOverrides() error {
	if c == nil {
		return nil
	}

	var err error
	if err = applyBoolEnv("CHAT_SERVICE_DB_MIGRATE_AT_START", &c.DatastoreMigrateAtStart); err != nil {
		return err
	}
	if err = applyDurationEnv("CHAT_SERVICE_CACHE_USER_TTL", &c.CacheUserTTL); err != nil {
		return err
	}
	if err = applyBoolEnv("CHAT_SERVICE_CORS_ENABLED", &c.CORSEnabled); err != nil {
		return err
	}
	applyStringEnv("CHAT_SERVICE_CORS_ORIGINS", &c.CORSOrigins)
	applyStringEnv("CHAT_SERVICE_METRICS_LABELS", &c.MetricsLabels)

	if raw := strings.TrimSpace(os.Getenv("CHAT_SERVICE_MAX_BODY_SIZE")); raw != "" {
		size, parseErr := parseMemorySize(raw)
		if parseErr != nil {
			return fmt.Errorf("invalid CHAT_SERVICE_MAX_BODY_SIZE: %w", parseErr)
		}
		c.MaxBodySize = size
	}

	// API keys: CHAT_SERVICE_API_KEYS_<CLIENT_ID>=<key-value>
	c.APIKeys = loadAPIKeysFromEnv()

	return nil
}

// loadAPIKeysFromEnv scans env vars matching CHAT_SERVICE_API_KEYS_<CLIENT_ID>=<key>[,<key>...]
// and returns a map from key value → clientId. Comma-separated values let a
// client rotate keys without downtime.
func loadAPIKeysFromEnv() map[string]string {
	const prefix = "CHAT_SERVICE_API_KEYS_"
	result := map[string]string{}
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		eqIdx := strings.IndexByte(env, '=')
		if eqIdx < 0 {
			continue
		}
		clientID := strings.ToLower(strings.TrimSpace(env[len(prefix):eqIdx]))
		if clientID == "" {
			continue
		}
		for _, key := range strings.Split(env[eqIdx+1:], ",") {
			keyValue := strings.TrimSpace(key)
			if keyValue == "" {
				continue
			}
			result[keyValue] = clientID
		}
	}
	return result
}

func applyStringEnv(key string, dest *string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	*dest = raw
}

func applyBoolEnv(key string, dest *bool) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyDurationEnv(key string, dest *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(strings.ToLower(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func parseMemorySize(raw string) (int64, error) {
	v := strings.TrimSpace(strings.ToUpper(raw))
	if v == "" {
		return 0, fmt.Errorf("empty size")
	}
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(v, "KB"), strings.HasSuffix(v, "K"):
		multiplier = 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "KB"), "K")
	case strings.HasSuffix(v, "MB"), strings.HasSuffix(v, "M"):
		multiplier = 1024 * 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "MB"), "M")
	case strings.HasSuffix(v, "GB"), strings.HasSuffix(v, "G"):
		multiplier = 1024 * 1024 * 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "GB"), "G")
	case strings.HasSuffix(v, "B"):
		v = strings.TrimSuffix(v, "B")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	return n * multiplier, nil
}
