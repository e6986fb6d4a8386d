package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"` // "dj" or "attendee"
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventActive    EventStatus = "active"
	EventEnded     EventStatus = "ended"
	EventCancelled EventStatus = "cancelled"
)

type Event struct {
	ID               uuid.UUID   `json:"id" gorm:"primaryKey"`
	Code             string      `json:"code" gorm:"unique"`
	DJID             uuid.UUID   `json:"dj_id"`
	Name             string      `json:"name"`
	Status           EventStatus `json:"status"`
	TippingEnabled   bool        `json:"tipping_enabled"`
	ApprovalRequired bool        `json:"approval_required"`
	MaxQueueSize     int         `json:"max_queue_size"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

type SongRequest struct {
	ID          uuid.UUID     `json:"id" gorm:"primaryKey"`
	EventID     uuid.UUID     `json:"event_id" gorm:"index"`
	SubmitterID uuid.UUID     `json:"submitter_id" gorm:"index"`
	SongID      string        `json:"song_id"`
	Title       string        `json:"title"`
	Artist      string        `json:"artist"`
	Status      RequestStatus `json:"status" gorm:"index"`
	Version     int64         `json:"version"`
	VoteCount   int           `json:"vote_count"`
	TipAmount   int64         `json:"tip_amount"` // minor currency units
	Currency    string        `json:"currency"`
	RequestTime time.Time     `json:"request_time"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// QueueItem is a projection of an approved SongRequest with its computed
// priority score. Positions are derived on recompute, never persisted.
type QueueItem struct {
	RequestID   uuid.UUID `json:"request_id"`
	SongID      string    `json:"song_id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	SubmitterID uuid.UUID `json:"submitter_id"`
	VoteCount   int       `json:"vote_count"`
	TipAmount   int64     `json:"tip_amount"`
	Score       float64   `json:"score"`
	Position    int       `json:"position"`
	RequestTime time.Time `json:"request_time"`
}

// Vote existence toggles: at most one row per (request, voter).
type Vote struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey"`
	RequestID uuid.UUID `json:"request_id" gorm:"uniqueIndex:ux_votes_request_voter,priority:1"`
	VoterID   uuid.UUID `json:"voter_id" gorm:"uniqueIndex:ux_votes_request_voter,priority:2"`
	CreatedAt time.Time `json:"created_at"`
}

// TipTransaction records a confirmed payment; TransactionID is the
// idempotency key guarding against webhook redelivery.
type TipTransaction struct {
	TransactionID string    `json:"transaction_id" gorm:"primaryKey"`
	RequestID     uuid.UUID `json:"request_id" gorm:"index"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

type BlocklistKind string

const (
	BlockSong   BlocklistKind = "song"
	BlockArtist BlocklistKind = "artist"
	BlockUser   BlocklistKind = "user"
)

type BlocklistEntry struct {
	ID        uuid.UUID     `json:"id" gorm:"primaryKey"`
	EventID   uuid.UUID     `json:"event_id" gorm:"index"`
	Kind      BlocklistKind `json:"kind"`
	Value     string        `json:"value"`
	CreatedAt time.Time     `json:"created_at"`
}
