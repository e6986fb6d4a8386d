package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryCounter mimics the Redis counter: atomic increment with expiry on
// first touch.
type memoryCounter struct {
	mu      sync.Mutex
	counts  map[string]int64
	expires map[string]time.Time
}

func newMemoryCounter() *memoryCounter {
	return &memoryCounter{
		counts:  make(map[string]int64),
		expires: make(map[string]time.Time),
	}
}

func (c *memoryCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if expiry, ok := c.expires[key]; ok && time.Now().After(expiry) {
		delete(c.counts, key)
		delete(c.expires, key)
	}

	c.counts[key]++
	if c.counts[key] == 1 {
		c.expires[key] = time.Now().Add(window)
	}
	return c.counts[key], nil
}

type failingCounter struct {
	calls int
}

func (c *failingCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	c.calls++
	return 0, errors.New("connection refused")
}

func TestTryAdmitBoundary(t *testing.T) {
	ctx := context.Background()
	limiter := NewLimiter(newMemoryCounter(), map[string]Limit{
		"request": {Max: 5, Window: 30 * time.Second},
	})

	for i := 1; i <= 5; i++ {
		allowed, err := limiter.TryAdmit(ctx, "user-1", "request", "event-1")
		require.NoError(t, err)
		assert.True(t, allowed, "call %d should be admitted", i)
	}

	allowed, err := limiter.TryAdmit(ctx, "user-1", "request", "event-1")
	require.NoError(t, err)
	assert.False(t, allowed, "sixth call in the window must be refused")
}

func TestTryAdmitWindowReset(t *testing.T) {
	ctx := context.Background()
	limiter := NewLimiter(newMemoryCounter(), map[string]Limit{
		"request": {Max: 1, Window: 300 * time.Millisecond},
	})

	allowed, err := limiter.TryAdmit(ctx, "user-1", "request", "event-1")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = limiter.TryAdmit(ctx, "user-1", "request", "event-1")
	require.NoError(t, err)
	require.False(t, allowed)

	// Wait out the window, landing in a fresh one.
	time.Sleep(350 * time.Millisecond)

	allowed, err = limiter.TryAdmit(ctx, "user-1", "request", "event-1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestTryAdmitIsolatesUsersAndResources(t *testing.T) {
	ctx := context.Background()
	limiter := NewLimiter(newMemoryCounter(), map[string]Limit{
		"request": {Max: 1, Window: 30 * time.Second},
		"vote":    {Max: 1, Window: 30 * time.Second},
	})

	allowed, err := limiter.TryAdmit(ctx, "user-1", "request", "event-1")
	require.NoError(t, err)
	require.True(t, allowed)

	// Same user, different resource and different user, same resource.
	allowed, err = limiter.TryAdmit(ctx, "user-1", "vote", "event-1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.TryAdmit(ctx, "user-2", "request", "event-1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestTryAdmitConcurrentCallsShareOneCounter(t *testing.T) {
	ctx := context.Background()
	limiter := NewLimiter(newMemoryCounter(), map[string]Limit{
		"request": {Max: 5, Window: 30 * time.Second},
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, err := limiter.TryAdmit(ctx, "user-1", "request", "event-1")
			assert.NoError(t, err)
			if allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, admitted)
}

func TestTryAdmitRetriesUnavailableStore(t *testing.T) {
	ctx := context.Background()
	counter := &failingCounter{}
	limiter := NewLimiter(counter, map[string]Limit{
		"request": {Max: 5, Window: 30 * time.Second},
	})

	_, err := limiter.TryAdmit(ctx, "user-1", "request", "event-1")
	require.Error(t, err)
	assert.Equal(t, storeAttempts, counter.calls)
}

func TestTryAdmitUnknownResourceIsNotGated(t *testing.T) {
	ctx := context.Background()
	limiter := NewLimiter(newMemoryCounter(), map[string]Limit{})

	allowed, err := limiter.TryAdmit(ctx, "user-1", "anything", "event-1")
	require.NoError(t, err)
	assert.True(t, allowed)
}
