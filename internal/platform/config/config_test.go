package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, v, err := Load("config_test")
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, 3, cfg.GraphAPIMaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.GraphAPITimeout)
	assert.Equal(t, int64(1<<20), cfg.WebhookMaxBodyBytes)
	assert.Equal(t, "events", cfg.NATSEventSubjectPrefix)
	assert.Equal(t, "whatsapp_graph_api", cfg.BreakerServiceName)
	assert.Equal(t, 15*time.Minute, cfg.SchedulerVisibility)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("APP_WEBHOOK_VERIFY_TOKEN", "tok-123")
	t.Setenv("APP_SCHEDULER_WORKERS", "9")

	cfg, _, err := Load("config_test")
	require.NoError(t, err)

	assert.Equal(t, "tok-123", cfg.WebhookVerifyToken)
	assert.Equal(t, 9, cfg.SchedulerWorkers)
}

func TestConfig_UsesDefaultAdminSecret(t *testing.T) {
	cfg, _, err := Load("config_test")
	require.NoError(t, err)
	assert.Equal(t, DefaultAdminJWTSecret, cfg.AdminJWTSecret)
	assert.True(t, cfg.UsesDefaultAdminSecret())

	t.Setenv("APP_ADMIN_JWT_SECRET", "rotated-secret")
	cfg, _, err = Load("config_test")
	require.NoError(t, err)
	assert.False(t, cfg.UsesDefaultAdminSecret())

	assert.True(t, (&Config{}).UsesDefaultAdminSecret())
}
