package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/wa_gateway/internal/platform/settings"
	"github.com/aradsms/wa_gateway/internal/webhook_service/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(rps float64, burst int) (*RateLimiter, *fakeClock, *settings.Static) {
	sp := settings.NewStatic(map[string]any{
		settings.KeyRateLimitRPS:   rps,
		settings.KeyRateLimitBurst: burst,
	})
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(sp)
	rl.now = clock.now
	return rl, clock, sp
}

func TestRateLimiter_AllowAndRefill(t *testing.T) {
	rl, clock, _ := newTestLimiter(1, 2)

	remaining, err := rl.Allow("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	remaining, err = rl.Allow("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	_, err = rl.Allow("10.0.0.1")
	var rlErr *domain.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, 2, rlErr.Limit)
	assert.Equal(t, 0, rlErr.Remaining)
	assert.Equal(t, time.Second, rlErr.ResetAfter)

	_, err = rl.Allow("10.0.0.2")
	assert.NoError(t, err, "buckets are per client")

	clock.advance(time.Second)
	_, err = rl.Allow("10.0.0.1")
	assert.NoError(t, err)
}

func TestRateLimiter_PicksUpSettingChanges(t *testing.T) {
	rl, clock, sp := newTestLimiter(1, 1)

	_, err := rl.Allow("k")
	require.NoError(t, err)
	_, err = rl.Allow("k")
	require.Error(t, err)

	sp.Set(settings.KeyRateLimitRPS, 10.0)
	clock.advance(100 * time.Millisecond)
	_, err = rl.Allow("k")
	require.Error(t, err, "tokens accrued before the change use the old rate")

	clock.advance(100 * time.Millisecond)
	_, err = rl.Allow("k")
	assert.NoError(t, err)
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl, clock, _ := newTestLimiter(1, 2)
	_, _ = rl.Allow("idle")
	_, _ = rl.Allow("busy")
	_, _ = rl.Allow("busy")

	clock.advance(1500 * time.Millisecond)
	assert.Equal(t, 1, rl.Sweep())

	clock.advance(time.Second)
	assert.Equal(t, 1, rl.Sweep())
}
