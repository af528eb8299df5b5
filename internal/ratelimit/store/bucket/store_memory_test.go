package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coverline/internal/ratelimit/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestInMemoryStore_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)}
	store := NewInMemoryStore()
	store.now = clock.now
	limit := models.Limit{Requests: 2, Window: time.Minute}
	key := models.Key(models.ClassAuth, "203.0.113.9")

	first, err := store.Allow(ctx, key, limit)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)

	clock.advance(20 * time.Second)
	second, err := store.Allow(ctx, key, limit)
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)
	assert.Equal(t, clock.t.Add(-20*time.Second).Add(time.Minute), second.ResetAt)

	clock.advance(10 * time.Second)
	denied, err := store.Allow(ctx, key, limit)
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
	assert.Equal(t, 30, denied.RetryAfter, "the oldest hit leaves the window in 30s")

	t.Run("other clients have their own window", func(t *testing.T) {
		res, err := store.Allow(ctx, models.Key(models.ClassAuth, "198.51.100.1"), limit)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("hits expire as the window slides", func(t *testing.T) {
		clock.advance(31 * time.Second)
		res, err := store.Allow(ctx, key, limit)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining, "the second hit is still inside the window")
	})
}

func TestKey_EscapesSeparators(t *testing.T) {
	assert.Equal(t, "ratelimit:auth:2001_db8__1", models.Key(models.ClassAuth, "2001:db8::1"))
}
