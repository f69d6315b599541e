package settings

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestViperProvider(t *testing.T) {
	v := viper.New()
	v.Set(KeyWebhookAppSecret, "s3cret")
	v.Set(KeyRateLimitBurst, 7)
	v.Set(KeyRateLimitRPS, 2.5)
	v.Set(KeyWebhookVerifyToken, "")

	p := NewViperProvider(v)
	assert.Equal(t, "s3cret", p.GetString(KeyWebhookAppSecret, "x"))
	assert.Equal(t, "fallback", p.GetString(KeyWebhookVerifyToken, "fallback"))
	assert.Equal(t, "dflt", p.GetString("MISSING", "dflt"))
	assert.Equal(t, 7, p.GetInt(KeyRateLimitBurst, 1))
	assert.Equal(t, 2.5, p.GetFloat(KeyRateLimitRPS, 1))
	assert.Equal(t, 3, p.GetInt("MISSING", 3))
	assert.True(t, p.GetBool("MISSING", true))

	// Re-read on every call.
	v.Set(KeyWebhookAppSecret, "rotated")
	assert.Equal(t, "rotated", p.GetString(KeyWebhookAppSecret, "x"))
}

func TestStatic(t *testing.T) {
	s := NewStatic(map[string]any{KeyRateLimitRPS: 3, KeyRateLimitBurst: 4})
	assert.Equal(t, 3.0, s.GetFloat(KeyRateLimitRPS, 0))
	assert.Equal(t, 4, s.GetInt(KeyRateLimitBurst, 0))
	assert.Equal(t, "none", s.GetString(KeyWebhookAppSecret, "none"))

	s.Set(KeyWebhookAppSecret, "abc")
	assert.Equal(t, "abc", s.GetString(KeyWebhookAppSecret, "none"))
	assert.False(t, s.GetBool("MISSING", false))
}
