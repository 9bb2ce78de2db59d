package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetAndGet(t *testing.T) {
	c := New(time.Minute)
	c.Set("game-1", "StreamEast")

	got, ok := c.Get("game-1")
	assert.True(t, ok)
	assert.Equal(t, "StreamEast", got)

	_, ok = c.Get("game-2")
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.Set("game-1", "StreamEast")

	_, ok := c.Get("game-1")
	assert.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.Get("game-1")
	assert.False(t, ok, "expired entries report as absent")
}

func TestSetWithTTLOverridesDefault(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.SetWithTTL("game-1", "StreamEast", time.Minute)

	time.Sleep(20 * time.Millisecond)
	got, ok := c.Get("game-1")
	assert.True(t, ok, "explicit TTL outlives the short default")
	assert.Equal(t, "StreamEast", got)
}

func TestDelete(t *testing.T) {
	c := New(time.Minute)
	c.Set("game-1", "StreamEast")
	c.Delete("game-1")

	_, ok := c.Get("game-1")
	assert.False(t, ok)
}

func TestSweepDropsOnlyExpired(t *testing.T) {
	c := New(time.Minute)
	c.SetWithTTL("stale", "MethStreams", 5*time.Millisecond)
	c.Set("fresh", "StreamEast")

	time.Sleep(10 * time.Millisecond)
	c.Sweep()

	c.mu.RLock()
	_, staleHeld := c.entries["stale"]
	_, freshHeld := c.entries["fresh"]
	c.mu.RUnlock()

	assert.False(t, staleHeld, "sweep removes the dead key itself")
	assert.True(t, freshHeld)
}
