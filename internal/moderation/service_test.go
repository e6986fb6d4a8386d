package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/live-queue-system/internal/queue"
	"github.com/live-queue-system/internal/request"
	"github.com/live-queue-system/pkg/database"
	"github.com/live-queue-system/pkg/events"
	"github.com/live-queue-system/pkg/models"
)

type fakePublisher struct {
	deltas []events.EventType
}

func (p *fakePublisher) PublishDelta(ctx context.Context, eventType events.EventType, eventID string, payload interface{}) error {
	p.deltas = append(p.deltas, eventType)
	return nil
}

type fixture struct {
	store    *database.MemoryStore
	requests *request.Service
	engine   *queue.Engine
	svc      *Service
	event    *models.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := database.NewMemoryStore()
	publisher := &fakePublisher{}
	engine := queue.NewEngine(store, nil, publisher, queue.DefaultWeights())
	requests := request.NewService(store, publisher, engine, request.DefaultConfig())
	svc := NewService(store, requests, engine, publisher)

	event := &models.Event{
		ID:               uuid.New(),
		Code:             "XYZ789",
		DJID:             uuid.New(),
		Name:             "Saturday Set",
		Status:           models.EventActive,
		ApprovalRequired: true,
		MaxQueueSize:     100,
	}
	require.NoError(t, store.CreateEvent(context.Background(), event))

	return &fixture{store: store, requests: requests, engine: engine, svc: svc, event: event}
}

func (f *fixture) submit(t *testing.T) *models.SongRequest {
	t.Helper()
	req, err := f.requests.Submit(context.Background(), request.Submission{
		EventID:     f.event.ID,
		SubmitterID: uuid.New(),
		SongID:      uuid.New().String(),
		Title:       "Track",
		Artist:      "Artist",
	})
	require.NoError(t, err)
	return req
}

func TestApproveMovesRequestIntoQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.submit(t)

	require.NoError(t, f.svc.Approve(ctx, req.ID, f.event.DJID))

	stored, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)

	items, err := f.engine.GetOrderedQueue(ctx, f.event.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, req.ID, items[0].RequestID)
}

func TestRejectApprovedRequestPullsItFromQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.submit(t)

	require.NoError(t, f.svc.Approve(ctx, req.ID, f.event.DJID))
	require.NoError(t, f.svc.Reject(ctx, req.ID, f.event.DJID))

	stored, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, stored.Status)

	items, err := f.engine.GetOrderedQueue(ctx, f.event.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestModerationRejectsIllegalTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.submit(t)

	require.NoError(t, f.svc.Reject(ctx, req.ID, f.event.DJID))

	// rejected is terminal: approving afterwards is illegal.
	err := f.svc.Approve(ctx, req.ID, f.event.DJID)
	assert.ErrorIs(t, err, database.ErrInvalidTransition)
}

func TestModerationRequiresEventDJ(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.submit(t)

	err := f.svc.Approve(ctx, req.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotEventDJ)
}

func TestModerationRefusesExpiredRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.submit(t)

	// Age the request past the pending TTL.
	stored, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	stored.RequestTime = time.Now().Add(-2 * time.Hour)
	require.NoError(t, f.store.CreateRequest(ctx, stored))

	err = f.svc.Approve(ctx, req.ID, f.event.DJID)
	assert.ErrorIs(t, err, request.ErrRequestExpired)
}

func TestBatchModerateIsIndependentPerItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	good1 := f.submit(t)
	bad := f.submit(t)
	good2 := f.submit(t)

	// Put the middle id into a terminal state so its approval must fail.
	require.NoError(t, f.svc.Reject(ctx, bad.ID, f.event.DJID))

	results := f.svc.BatchModerate(ctx, []uuid.UUID{good1.ID, bad.ID, good2.ID}, f.event.DJID, ActionApprove)
	require.Len(t, results, 3)

	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.NotEmpty(t, results[1].Error)
	assert.True(t, results[2].OK, "failure on one id must not block the rest")

	for _, id := range []uuid.UUID{good1.ID, good2.ID} {
		stored, err := f.store.GetRequest(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, stored.Status)
	}
}

func TestUpdateBlocklistGatesFutureSubmissionsOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	existing := f.submit(t)

	err := f.svc.UpdateBlocklist(ctx, f.event.ID, f.event.DJID, BlocklistPatch{
		Add: []BlocklistAddition{{Kind: models.BlockSong, Value: existing.SongID}},
	})
	require.NoError(t, err)

	// The pending request survives; blocklisting is not retroactive.
	stored, err := f.store.GetRequest(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)

	// But a new submission of the same song is refused.
	_, err = f.requests.Submit(ctx, request.Submission{
		EventID:     f.event.ID,
		SubmitterID: uuid.New(),
		SongID:      existing.SongID,
		Title:       "Track",
		Artist:      "Artist",
	})
	assert.ErrorIs(t, err, request.ErrBlocked)
}

func TestUpdateBlocklistRemoveReopensSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.svc.UpdateBlocklist(ctx, f.event.ID, f.event.DJID, BlocklistPatch{
		Add: []BlocklistAddition{{Kind: models.BlockSong, Value: "blocked-track"}},
	})
	require.NoError(t, err)

	entries, err := f.svc.ListBlocklist(ctx, f.event.ID, f.event.DJID)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	err = f.svc.UpdateBlocklist(ctx, f.event.ID, f.event.DJID, BlocklistPatch{
		Remove: []uuid.UUID{entries[0].ID},
	})
	require.NoError(t, err)

	_, err = f.requests.Submit(ctx, request.Submission{
		EventID:     f.event.ID,
		SubmitterID: uuid.New(),
		SongID:      "blocked-track",
		Title:       "Track",
		Artist:      "Artist",
	})
	assert.NoError(t, err)
}

func TestUpdateBlocklistRequiresDJ(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.svc.UpdateBlocklist(ctx, f.event.ID, uuid.New(), BlocklistPatch{
		Add: []BlocklistAddition{{Kind: models.BlockSong, Value: "x"}},
	})
	assert.ErrorIs(t, err, ErrNotEventDJ)
}
