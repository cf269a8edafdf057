package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_PORT", "DB_MAX_CONNS", "RATE_LIMIT_PER_MIN", "ONLINE_WINDOW", "GRACE_PERIOD"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 20, cfg.DBMaxConns)
	assert.Equal(t, 240, cfg.RateLimitPerMin)
	assert.Equal(t, 5*time.Minute, cfg.OnlineWindow)
	assert.Equal(t, 10*time.Minute, cfg.GracePeriod)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "50")
	t.Setenv("ONLINE_WINDOW", "90s")
	t.Setenv("HTTP_PORT", "9090")

	cfg := Load()
	assert.Equal(t, 50, cfg.DBMaxConns)
	assert.Equal(t, 90*time.Second, cfg.OnlineWindow)
	assert.Equal(t, "9090", cfg.HTTPPort)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "many")
	t.Setenv("SWEEP_INTERVAL", "soon")

	cfg := Load()
	assert.Equal(t, 20, cfg.DBMaxConns)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
}
