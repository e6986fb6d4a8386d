package admission

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// Counter is the atomic window counter the limiter increments. Redis backs
// it in production (pkg/redis.CounterStore); tests use an in-memory fake.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limit is the per-resource admission budget: at most Max mutations per
// Window for one (user, resource, event) triple.
type Limit struct {
	Max    int64
	Window time.Duration
}

// DefaultLimits covers the mutation surfaces the service gates.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		"request": {Max: 5, Window: 30 * time.Second},
		"vote":    {Max: 30, Window: 30 * time.Second},
		"search":  {Max: 100, Window: 30 * time.Second},
		"join":    {Max: 10, Window: time.Minute},
		"tip":     {Max: 10, Window: time.Minute},
	}
}

const storeAttempts = 3

type Limiter struct {
	counter Counter
	limits  map[string]Limit
}

func NewLimiter(counter Counter, limits map[string]Limit) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Limiter{counter: counter, limits: limits}
}

// TryAdmit increments the fixed-window counter for (userID, resourceType,
// eventID) and reports whether the call is within budget. Being over budget
// is not an error; an error means the counter store stayed unavailable after
// bounded retries.
func (l *Limiter) TryAdmit(ctx context.Context, userID, resourceType, eventID string) (bool, error) {
	limit, ok := l.limits[resourceType]
	if !ok {
		// Unknown resource types are not gated.
		return true, nil
	}

	windowStart := time.Now().Truncate(limit.Window).Unix()
	key := fmt.Sprintf("ratelimit:%s:%s:%s:%d", userID, resourceType, eventID, windowStart)

	var (
		count int64
		err   error
	)
	for attempt := 0; attempt < storeAttempts; attempt++ {
		count, err = l.counter.Incr(ctx, key, limit.Window)
		if err == nil {
			break
		}
	}
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	return count <= limit.Max, nil
}
