package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/live-queue-system/pkg/models"
)

func newTestRequest(eventID uuid.UUID) *models.SongRequest {
	now := time.Now()
	return &models.SongRequest{
		ID:          uuid.New(),
		EventID:     eventID,
		SubmitterID: uuid.New(),
		SongID:      "track-1",
		Title:       "Song One",
		Artist:      "Artist One",
		Status:      models.StatusPending,
		Version:     1,
		RequestTime: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestApplyTransitionVersionGuard(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	req := newTestRequest(uuid.New())
	require.NoError(t, store.CreateRequest(ctx, req))

	// Stale version loses without mutating.
	ok, err := store.ApplyTransition(ctx, req.ID, 99, models.StatusApproved)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.ApplyTransition(ctx, req.ID, 1, models.StatusApproved)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
}

func TestApplyTransitionRejectsIllegalMoves(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	req := newTestRequest(uuid.New())
	req.Status = models.StatusPlayed
	require.NoError(t, store.CreateRequest(ctx, req))

	_, err := store.ApplyTransition(ctx, req.ID, 1, models.StatusApproved)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApplyTransitionIdempotentRetry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	req := newTestRequest(uuid.New())
	require.NoError(t, store.CreateRequest(ctx, req))

	ok, err := store.ApplyTransition(ctx, req.ID, 1, models.StatusApproved)
	require.NoError(t, err)
	require.True(t, ok)

	// Retrying the same end-state succeeds without bumping the version.
	ok, err = store.ApplyTransition(ctx, req.ID, 2, models.StatusApproved)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
}

func TestConcurrentModerationExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	req := newTestRequest(uuid.New())
	require.NoError(t, store.CreateRequest(ctx, req))

	var wg sync.WaitGroup
	results := make([]bool, 2)
	targets := []models.RequestStatus{models.StatusApproved, models.StatusRejected}

	for i := range targets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := store.ApplyTransition(ctx, req.ID, 1, targets[i])
			assert.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	assert.NotEqual(t, results[0], results[1], "exactly one writer must win the version race")

	stored, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Contains(t, []models.RequestStatus{models.StatusApproved, models.StatusRejected}, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
}

func TestToggleVote(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	req := newTestRequest(uuid.New())
	require.NoError(t, store.CreateRequest(ctx, req))

	voter := uuid.New()

	voted, ok, err := store.ToggleVote(ctx, req.ID, voter, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, voted)

	stored, _ := store.GetRequest(ctx, req.ID)
	assert.Equal(t, 1, stored.VoteCount)

	// Second toggle removes the vote rather than stacking it.
	voted, ok, err = store.ToggleVote(ctx, req.ID, voter, stored.Version)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, voted)

	stored, _ = store.GetRequest(ctx, req.ID)
	assert.Equal(t, 0, stored.VoteCount)
}

func TestRecordTransactionRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	tx := &models.TipTransaction{
		TransactionID: "tx-1",
		RequestID:     uuid.New(),
		Amount:        500,
		Currency:      "USD",
		ConfirmedAt:   time.Now(),
	}
	require.NoError(t, store.RecordTransaction(ctx, tx))
	assert.ErrorIs(t, store.RecordTransaction(ctx, tx), ErrDuplicateTransaction)
}

func TestHasRecentDuplicateRespectsWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	eventID := uuid.New()
	req := newTestRequest(eventID)
	req.RequestTime = time.Now().Add(-10 * time.Minute)
	require.NoError(t, store.CreateRequest(ctx, req))

	dup, err := store.HasRecentDuplicate(ctx, eventID, req.SubmitterID, req.SongID, time.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	assert.False(t, dup, "request outside the window is not a duplicate")

	dup, err = store.HasRecentDuplicate(ctx, eventID, req.SubmitterID, req.SongID, time.Now().Add(-15*time.Minute))
	require.NoError(t, err)
	assert.True(t, dup)
}
