package moderation

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

var (
	ErrNotEventDJ    = errors.New("user is not the event DJ")
	ErrUnknownAction = errors.New("unknown moderation action")
)

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func (a Action) status() (models.RequestStatus, error) {
	switch a {
	case ActionApprove:
		return models.StatusApproved, nil
	case ActionReject:
		return models.StatusRejected, nil
	default:
		return "", ErrUnknownAction
	}
}

// Recomputer re-derives the play order after a moderation decision.
type Recomputer interface {
	Recompute(ctx context.Context, eventID uuid.UUID) error
}

// Service applies DJ moderation decisions through the request store's
// transition table. Batch decisions are independent per item; blocklist
// entries gate future submissions only and never auto-purge pending
// requests; pulling those stays an explicit DJ action.
type Service struct {
	store     database.Store
	requests  *request.Service
	queue     Recomputer
	publisher request.Publisher
}

func NewService(store database.Store, requests *request.Service, queue Recomputer, publisher request.Publisher) *Service {
	return &Service{
		store:     store,
		requests:  requests,
		queue:     queue,
		publisher: publisher,
	}
}

func (s *Service) Approve(ctx context.Context, requestID, moderatorID uuid.UUID) error {
	return s.moderate(ctx, requestID, moderatorID, ActionApprove)
}

func (s *Service) Reject(ctx context.Context, requestID, moderatorID uuid.UUID) error {
	return s.moderate(ctx, requestID, moderatorID, ActionReject)
}

func (s *Service) moderate(ctx context.Context, requestID, moderatorID uuid.UUID, action Action) error {
	next, err := action.status()
	if err != nil {
		return err
	}

	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status == models.StatusExpired {
		return request.ErrRequestExpired
	}

	if err := s.authorizeDJ(ctx, req.EventID, moderatorID); err != nil {
		return err
	}

	if err := s.requests.Transition(ctx, requestID, next); err != nil {
		return err
	}

	if err := s.queue.Recompute(ctx, req.EventID); err != nil {
		log.Printf("Failed to recompute queue after moderation: %v", err)
	}

	s.publish(ctx, req.EventID, events.RequestModeratedPayload{
		RequestID: requestID.String(),
		Status:    string(next),
		Moderator: moderatorID.String(),
	})
	return nil
}

// BatchResult is the per-item outcome of a batch decision.
type BatchResult struct {
	RequestID uuid.UUID `json:"request_id"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
}

// BatchModerate applies the action to each id independently: one failing
// item (version conflict, illegal transition) does not block the rest.
func (s *Service) BatchModerate(ctx context.Context, ids []uuid.UUID, moderatorID uuid.UUID, action Action) []BatchResult {
	results := make([]BatchResult, 0, len(ids))
	for _, id := range ids {
		result := BatchResult{RequestID: id, OK: true}
		if err := s.moderate(ctx, id, moderatorID, action); err != nil {
			result.OK = false
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

// BlocklistPatch adds and removes entries in one call.
type BlocklistPatch struct {
	Add    []BlocklistAddition `json:"add"`
	Remove []uuid.UUID         `json:"remove"`
}

type BlocklistAddition struct {
	Kind  models.BlocklistKind `json:"kind"`
	Value string               `json:"value"`
}

func (s *Service) UpdateBlocklist(ctx context.Context, eventID, moderatorID uuid.UUID, patch BlocklistPatch) error {
	if err := s.authorizeDJ(ctx, eventID, moderatorID); err != nil {
		return err
	}

	for _, add := range patch.Add {
		entry := &models.BlocklistEntry{
			ID:        uuid.New(),
			EventID:   eventID,
			Kind:      add.Kind,
			Value:     add.Value,
			CreatedAt: time.Now(),
		}
		if err := s.store.AddBlocklistEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to add blocklist entry: %w", err)
		}
	}

	for _, id := range patch.Remove {
		if err := s.store.RemoveBlocklistEntry(ctx, eventID, id); err != nil {
			return fmt.Errorf("failed to remove blocklist entry: %w", err)
		}
	}
	return nil
}

func (s *Service) ListBlocklist(ctx context.Context, eventID, moderatorID uuid.UUID) ([]*models.BlocklistEntry, error) {
	if err := s.authorizeDJ(ctx, eventID, moderatorID); err != nil {
		return nil, err
	}
	return s.store.ListBlocklist(ctx, eventID)
}

func (s *Service) authorizeDJ(ctx context.Context, eventID, userID uuid.UUID) error {
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return err
	}
	if event.DJID != userID {
		return ErrNotEventDJ
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventID uuid.UUID, payload events.RequestModeratedPayload) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishDelta(ctx, events.EventTypeRequestModerated, eventID.String(), payload); err != nil {
		log.Printf("Failed to publish moderation delta: %v", err)
	}
}
