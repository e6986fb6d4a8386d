package event

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/live-queue-system/pkg/database"
	"github.com/live-queue-system/pkg/models"
)

func newTestService() *Service {
	return NewService(database.NewMemoryStore(), nil, nil, nil)
}

func TestCreateEventStartsActive(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	djID := uuid.New()
	event, err := svc.CreateEvent(ctx, djID, "Friday Night", Settings{
		TippingEnabled:   true,
		ApprovalRequired: true,
		MaxQueueSize:     50,
	})
	require.NoError(t, err)

	assert.Equal(t, models.EventActive, event.Status)
	assert.Equal(t, djID, event.DJID)
	assert.Len(t, event.Code, 6)

	byCode, err := svc.GetEventByCode(ctx, event.Code)
	require.NoError(t, err)
	assert.Equal(t, event.ID, byCode.ID)
}

func TestUpdateSettingsRequiresDJ(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	event, err := svc.CreateEvent(ctx, uuid.New(), "Friday Night", Settings{})
	require.NoError(t, err)

	_, err = svc.UpdateSettings(ctx, event.ID, uuid.New(), Settings{TippingEnabled: true})
	assert.ErrorIs(t, err, ErrNotEventDJ)

	updated, err := svc.UpdateSettings(ctx, event.ID, event.DJID, Settings{TippingEnabled: true, MaxQueueSize: 10})
	require.NoError(t, err)
	assert.True(t, updated.TippingEnabled)
	assert.Equal(t, 10, updated.MaxQueueSize)
}

func TestEndEventIsFinal(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	event, err := svc.CreateEvent(ctx, uuid.New(), "Friday Night", Settings{})
	require.NoError(t, err)

	ended, err := svc.EndEvent(ctx, event.ID, event.DJID)
	require.NoError(t, err)
	assert.Equal(t, models.EventEnded, ended.Status)

	_, err = svc.EndEvent(ctx, event.ID, event.DJID)
	assert.ErrorIs(t, err, ErrEventEnded)

	_, err = svc.UpdateSettings(ctx, event.ID, event.DJID, Settings{})
	assert.ErrorIs(t, err, ErrEventEnded)
}

func TestGetEventUnknownID(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.GetEvent(ctx, uuid.New())
	assert.ErrorIs(t, err, database.ErrEventNotFound)
}
