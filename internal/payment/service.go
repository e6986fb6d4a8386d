package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/live-queue-system/internal/request"
	"github.com/live-queue-system/pkg/database"
	"github.com/live-queue-system/pkg/events"
	"github.com/live-queue-system/pkg/models"
)

var ErrRequestTerminal = errors.New("request is no longer tippable")

// Recomputer re-derives the play order after a tip lands.
type Recomputer interface {
	Recompute(ctx context.Context, eventID uuid.UUID) error
}

// Service turns confirmed payments into priority boosts. The gateway
// delivers webhooks at least once, so every application is guarded by the
// transaction id: a replayed confirmation is a logged no-op, never an error.
type Service struct {
	store     database.Store
	publisher request.Publisher
	queue     Recomputer
}

func NewService(store database.Store, publisher request.Publisher, queue Recomputer) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		queue:     queue,
	}
}

// Confirmation is the payload of a verified gateway webhook.
type Confirmation struct {
	TransactionID string
	RequestID     uuid.UUID
	Amount        int64 // minor currency units
	Currency      string
}

// ApplyConfirmedPayment applies a confirmed tip to its request exactly once.
// The applied result is false when the transaction was already processed.
func (s *Service) ApplyConfirmedPayment(ctx context.Context, conf Confirmation) (bool, error) {
	if _, err := s.store.GetTransaction(ctx, conf.TransactionID); err == nil {
		log.Printf("Payment replay ignored: transaction %s already applied", conf.TransactionID)
		return false, nil
	} else if !errors.Is(err, database.ErrTransactionNotFound) {
		return false, fmt.Errorf("failed to check transaction: %w", err)
	}

	req, err := s.store.GetRequest(ctx, conf.RequestID)
	if err != nil {
		return false, err
	}
	if req.Status.IsTerminal() {
		return false, ErrRequestTerminal
	}

	// The insert-if-absent record is the idempotency gate and must come
	// before the tip lands: of two concurrent deliveries of one transaction,
	// exactly one wins the insert and goes on to apply the tip.
	record := &models.TipTransaction{
		TransactionID: conf.TransactionID,
		RequestID:     conf.RequestID,
		Amount:        conf.Amount,
		Currency:      conf.Currency,
		ConfirmedAt:   time.Now(),
	}
	if err := s.store.RecordTransaction(ctx, record); err != nil {
		if errors.Is(err, database.ErrDuplicateTransaction) {
			log.Printf("Payment replay raced: transaction %s", conf.TransactionID)
			return false, nil
		}
		return false, fmt.Errorf("failed to record transaction: %w", err)
	}

	err = request.WithVersionRetry(func() (bool, error) {
		current, err := s.store.GetRequest(ctx, conf.RequestID)
		if err != nil {
			return false, err
		}
		if current.Status.IsTerminal() {
			return false, ErrRequestTerminal
		}
		return s.store.AddTip(ctx, conf.RequestID, current.Version, conf.Amount)
	})
	if err != nil {
		return false, err
	}

	if err := s.queue.Recompute(ctx, req.EventID); err != nil {
		log.Printf("Failed to recompute queue after tip: %v", err)
	}

	updated, err := s.store.GetRequest(ctx, conf.RequestID)
	if err == nil && s.publisher != nil {
		if err := s.publisher.PublishDelta(ctx, events.EventTypeTipApplied, req.EventID.String(),
			events.TipAppliedPayload{
				RequestID: conf.RequestID.String(),
				TipAmount: updated.TipAmount,
			}); err != nil {
			log.Printf("Failed to publish tip delta: %v", err)
		}
	}

	return true, nil
}
