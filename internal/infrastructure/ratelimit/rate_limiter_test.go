package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestAllowConsumesBurstThenRefuses(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rl := NewRateLimiter(map[string]Rule{"test": {Burst: 2, Refill: time.Second}}).WithClock(clock.now)

	ok, _ := rl.Allow("u1", "test")
	assert.True(t, ok)
	ok, _ = rl.Allow("u1", "test")
	assert.True(t, ok)

	ok, wait := rl.Allow("u1", "test")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	clock.advance(time.Second)
	ok, _ = rl.Allow("u1", "test")
	assert.True(t, ok)
}

func TestBucketsAreIndependentPerKeyAndAction(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rl := NewRateLimiter(map[string]Rule{"test": {Burst: 1, Refill: time.Minute}}).WithClock(clock.now)

	ok, _ := rl.Allow("u1", "test")
	assert.True(t, ok)
	ok, _ = rl.Allow("u2", "test")
	assert.True(t, ok)
	ok, _ = rl.Allow("u1", ActionTyping)
	assert.True(t, ok)

	assert.Equal(t, 0, rl.Remaining("u1", "test"))
	assert.Equal(t, DefaultRules[ActionTyping].Burst-1, rl.Remaining("u1", ActionTyping))
}

func TestUnknownActionFallsBackToGeneral(t *testing.T) {
	rl := NewRateLimiter(nil)
	assert.Equal(t, DefaultRules[ActionGeneral].Burst, rl.Remaining("u1", "unknown"))
}

func TestCleanupRemovesIdleBuckets(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rl := NewRateLimiter(nil).WithClock(clock.now)

	rl.Allow("u1", ActionSendMessage)
	clock.advance(30 * time.Minute)
	rl.Allow("u2", ActionSendMessage)
	clock.advance(45 * time.Minute)

	assert.Equal(t, 1, rl.Cleanup(time.Hour))
	assert.Equal(t, DefaultRules[ActionSendMessage].Burst, rl.Remaining("u1", ActionSendMessage))
	assert.Equal(t, DefaultRules[ActionSendMessage].Burst-1, rl.Remaining("u2", ActionSendMessage))
}
