package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/live-queue-system/pkg/database"
	"github.com/live-queue-system/pkg/events"
	"github.com/live-queue-system/pkg/models"
)

type capturingPublisher struct {
	deltas []events.EventType
}

func (p *capturingPublisher) PublishDelta(ctx context.Context, eventType events.EventType, eventID string, payload interface{}) error {
	p.deltas = append(p.deltas, eventType)
	return nil
}

func seedApproved(t *testing.T, store *database.MemoryStore, eventID uuid.UUID, votes int, tip int64, requestTime time.Time) *models.SongRequest {
	t.Helper()
	req := &models.SongRequest{
		ID:          uuid.New(),
		EventID:     eventID,
		SubmitterID: uuid.New(),
		SongID:      uuid.New().String(),
		Title:       "Track",
		Artist:      "Artist",
		Status:      models.StatusApproved,
		Version:     1,
		VoteCount:   votes,
		TipAmount:   tip,
		RequestTime: requestTime,
	}
	require.NoError(t, store.CreateRequest(context.Background(), req))
	return req
}

func TestTipOutranksVotesAndAge(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	eventID := uuid.New()
	engine := NewEngine(store, nil, nil, DefaultWeights())

	now := time.Now()
	// Request A: no tip, submitted first. Request B: 5.00 tip, 10s later.
	reqA := seedApproved(t, store, eventID, 0, 0, now.Add(-10*time.Second))
	reqB := seedApproved(t, store, eventID, 0, 500, now)

	require.NoError(t, engine.Recompute(ctx, eventID))
	items, err := engine.GetOrderedQueue(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, reqB.ID, items[0].RequestID, "tipped request plays first")
	assert.Equal(t, reqA.ID, items[1].RequestID)
	assert.InDelta(t, 50, items[0].Score, 1)
	assert.Equal(t, 0, items[0].Position)
	assert.Equal(t, 1, items[1].Position)
}

func TestOrderingIsDeterministicWithTies(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	eventID := uuid.New()
	engine := NewEngine(store, nil, nil, DefaultWeights())

	// Identical score and request time: id breaks the tie.
	when := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		seedApproved(t, store, eventID, 3, 0, when)
	}

	require.NoError(t, engine.Recompute(ctx, eventID))
	first, err := engine.GetOrderedQueue(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, first, 5)

	for i := 0; i < 10; i++ {
		require.NoError(t, engine.Recompute(ctx, eventID))
		again, err := engine.GetOrderedQueue(ctx, eventID)
		require.NoError(t, err)
		for j := range first {
			assert.Equal(t, first[j].RequestID, again[j].RequestID, "order must not change between recomputes")
		}
	}

	for i := 1; i < len(first); i++ {
		assert.Less(t, first[i-1].RequestID.String(), first[i].RequestID.String())
	}
}

func TestEarlierRequestWinsScoreTie(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	eventID := uuid.New()
	// No decay, so equal votes give an exact score tie.
	engine := NewEngine(store, nil, nil, Weights{Tip: 10, Vote: 1, Decay: 0})

	now := time.Now()
	older := seedApproved(t, store, eventID, 2, 0, now.Add(-time.Minute))
	newer := seedApproved(t, store, eventID, 2, 0, now)

	require.NoError(t, engine.Recompute(ctx, eventID))
	items, err := engine.GetOrderedQueue(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, older.ID, items[0].RequestID)
	assert.Equal(t, newer.ID, items[1].RequestID)
}

func TestOnlyApprovedRequestsParticipate(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	eventID := uuid.New()
	engine := NewEngine(store, nil, nil, DefaultWeights())

	approved := seedApproved(t, store, eventID, 0, 0, time.Now())
	for _, status := range []models.RequestStatus{
		models.StatusPending, models.StatusRejected, models.StatusPlayed, models.StatusExpired,
	} {
		req := &models.SongRequest{
			ID:          uuid.New(),
			EventID:     eventID,
			SubmitterID: uuid.New(),
			SongID:      uuid.New().String(),
			Status:      status,
			Version:     1,
			VoteCount:   10,
			TipAmount:   1000,
			RequestTime: time.Now(),
		}
		require.NoError(t, store.CreateRequest(ctx, req))
	}

	require.NoError(t, engine.Recompute(ctx, eventID))
	items, err := engine.GetOrderedQueue(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, approved.ID, items[0].RequestID)
}

func TestMarkPlayedRemovesFromQueueAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	eventID := uuid.New()
	publisher := &capturingPublisher{}
	engine := NewEngine(store, nil, publisher, DefaultWeights())

	now := time.Now()
	reqA := seedApproved(t, store, eventID, 0, 0, now.Add(-10*time.Second))
	reqB := seedApproved(t, store, eventID, 0, 500, now)

	require.NoError(t, engine.MarkPlayed(ctx, eventID, reqB.ID))

	items, err := engine.GetOrderedQueue(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, reqA.ID, items[0].RequestID)

	// Replaying the same markPlayed is a no-op.
	require.NoError(t, engine.MarkPlayed(ctx, eventID, reqB.ID))
	stored, err := store.GetRequest(ctx, reqB.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlayed, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
}

func TestGetOrderedQueueComputesWhenCacheUnreachable(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	eventID := uuid.New()

	// Nothing listens on this address; the snapshot read must fail fast and
	// fall through to a fresh compute instead of surfacing the cache error.
	cache := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer cache.Close()
	engine := NewEngine(store, cache, nil, DefaultWeights())

	req := seedApproved(t, store, eventID, 2, 0, time.Now())

	items, err := engine.GetOrderedQueue(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, req.ID, items[0].RequestID)
}

func TestRecomputePublishesQueueUpdate(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	eventID := uuid.New()
	publisher := &capturingPublisher{}
	engine := NewEngine(store, nil, publisher, DefaultWeights())

	seedApproved(t, store, eventID, 1, 0, time.Now())
	require.NoError(t, engine.Recompute(ctx, eventID))

	require.NotEmpty(t, publisher.deltas)
	assert.Equal(t, events.EventTypeQueueUpdated, publisher.deltas[len(publisher.deltas)-1])
}
