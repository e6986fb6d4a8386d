package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/live-queue-system/pkg/models"
)

var (
	ErrEventNotFound        = errors.New("event not found")
	ErrRequestNotFound      = errors.New("request not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrDuplicateTransaction = errors.New("transaction already recorded")
	ErrInvalidTransition    = errors.New("invalid status transition")
)

// Store is the canonical persistence surface for events, song requests and
// their aggregates. Every mutation of a SongRequest goes through a
// version-guarded write: the store applies the change only when the caller's
// expected version matches the stored one, and bumps the version on success.
// No caller mutates request fields directly.
type Store interface {
	// Events
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEventByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetEventByCode(ctx context.Context, code string) (*models.Event, error)
	UpdateEvent(ctx context.Context, event *models.Event) error
	ListEventsByStatus(ctx context.Context, status models.EventStatus) ([]*models.Event, error)

	// Requests
	CreateRequest(ctx context.Context, req *models.SongRequest) error
	GetRequest(ctx context.Context, id uuid.UUID) (*models.SongRequest, error)
	ListRequestsByStatus(ctx context.Context, eventID uuid.UUID, status models.RequestStatus) ([]*models.SongRequest, error)
	CountActiveRequests(ctx context.Context, eventID uuid.UUID) (int64, error)
	HasRecentDuplicate(ctx context.Context, eventID, submitterID uuid.UUID, songID string, since time.Time) (bool, error)
	ListStalePending(ctx context.Context, before time.Time) ([]*models.SongRequest, error)

	// Version-guarded request mutations. The bool result reports whether the
	// expected version matched; false means the caller lost the race and must
	// re-read before retrying.
	ApplyTransition(ctx context.Context, id uuid.UUID, expectedVersion int64, next models.RequestStatus) (bool, error)
	AddTip(ctx context.Context, id uuid.UUID, expectedVersion int64, amount int64) (bool, error)
	ToggleVote(ctx context.Context, requestID, voterID uuid.UUID, expectedVersion int64) (voted bool, ok bool, err error)

	// Tip transactions (idempotency records)
	GetTransaction(ctx context.Context, transactionID string) (*models.TipTransaction, error)
	RecordTransaction(ctx context.Context, tx *models.TipTransaction) error

	// Blocklist
	AddBlocklistEntry(ctx context.Context, entry *models.BlocklistEntry) error
	RemoveBlocklistEntry(ctx context.Context, eventID, entryID uuid.UUID) error
	ListBlocklist(ctx context.Context, eventID uuid.UUID) ([]*models.BlocklistEntry, error)
}
