// Package settings exposes read-only runtime settings by key.
package settings

import (
	"sync"

	"github.com/spf13/viper"
)

// Keys read by the webhook ingress on every request.
const (
	KeyWebhookAppSecret   = "WEBHOOK_APP_SECRET"
	KeyWebhookVerifyToken = "WEBHOOK_VERIFY_TOKEN"
	KeyRateLimitRPS       = "WEBHOOK_RATE_LIMIT_RPS"
	KeyRateLimitBurst     = "WEBHOOK_RATE_LIMIT_BURST"
)

// Provider returns a value for key, or fallback when the key is unset.
type Provider interface {
	GetString(key, fallback string) string
	GetInt(key string, fallback int) int
	GetFloat(key string, fallback float64) float64
	GetBool(key string, fallback bool) bool
}

// ViperProvider reads straight from a viper instance, so environment changes
// and config re-reads are seen without a restart.
type ViperProvider struct {
	v *viper.Viper
}

func NewViperProvider(v *viper.Viper) *ViperProvider {
	return &ViperProvider{v: v}
}

func (p *ViperProvider) GetString(key, fallback string) string {
	if !p.v.IsSet(key) || p.v.GetString(key) == "" {
		return fallback
	}
	return p.v.GetString(key)
}

func (p *ViperProvider) GetInt(key string, fallback int) int {
	if !p.v.IsSet(key) {
		return fallback
	}
	return p.v.GetInt(key)
}

func (p *ViperProvider) GetFloat(key string, fallback float64) float64 {
	if !p.v.IsSet(key) {
		return fallback
	}
	return p.v.GetFloat64(key)
}

func (p *ViperProvider) GetBool(key string, fallback bool) bool {
	if !p.v.IsSet(key) {
		return fallback
	}
	return p.v.GetBool(key)
}

// Static is a fixed in-memory Provider, used by tests and the CLI.
type Static struct {
	mu     sync.RWMutex
	values map[string]any
}

func NewStatic(values map[string]any) *Static {
	cp := make(map[string]any, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return &Static{values: cp}
}

// Set replaces a single value.
func (s *Static) Set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

func (s *Static) lookup(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Static) GetString(key, fallback string) string {
	if v, ok := s.lookup(key); ok {
		if str, ok := v.(string); ok && str != "" {
			return str
		}
	}
	return fallback
}

func (s *Static) GetInt(key string, fallback int) int {
	if v, ok := s.lookup(key); ok {
		if i, ok := v.(int); ok {
			return i
		}
	}
	return fallback
}

func (s *Static) GetFloat(key string, fallback float64) float64 {
	if v, ok := s.lookup(key); ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return fallback
}

func (s *Static) GetBool(key string, fallback bool) bool {
	if v, ok := s.lookup(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}
