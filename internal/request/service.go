package request

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/live-queue-system/pkg/database"
	"github.com/live-queue-system/pkg/events"
	"github.com/live-queue-system/pkg/models"
)

var (
	ErrEventNotActive   = errors.New("event is not active")
	ErrDuplicateRequest = errors.New("song already requested recently")
	ErrQueueFull        = errors.New("event queue is full")
	ErrBlocked          = errors.New("submission is blocked for this event")
	ErrRequestExpired   = errors.New("request has expired")
	ErrNotVotable       = errors.New("request can no longer be voted on")
)

const (
	defaultDedupeWindow = 5 * time.Minute
	defaultPendingTTL   = 60 * time.Minute
)

// Publisher pushes state deltas onto the change-notification bus.
type Publisher interface {
	PublishDelta(ctx context.Context, eventType events.EventType, eventID string, payload interface{}) error
}

// Recomputer re-derives the play order for an event after an accepted write.
type Recomputer interface {
	Recompute(ctx context.Context, eventID uuid.UUID) error
}

type Config struct {
	DedupeWindow time.Duration
	PendingTTL   time.Duration
}

func DefaultConfig() Config {
	return Config{
		DedupeWindow: defaultDedupeWindow,
		PendingTTL:   defaultPendingTTL,
	}
}

// Service owns the canonical song-request records: submission with blocklist
// and duplicate checks, vote toggling, and lazy expiry of stale pending
// requests. All writes go through the store's version guard.
type Service struct {
	store     database.Store
	publisher Publisher
	queue     Recomputer
	cfg       Config
}

func NewService(store database.Store, publisher Publisher, queue Recomputer, cfg Config) *Service {
	if cfg.DedupeWindow == 0 {
		cfg.DedupeWindow = defaultDedupeWindow
	}
	if cfg.PendingTTL == 0 {
		cfg.PendingTTL = defaultPendingTTL
	}
	return &Service{
		store:     store,
		publisher: publisher,
		queue:     queue,
		cfg:       cfg,
	}
}

type Submission struct {
	EventID     uuid.UUID
	SubmitterID uuid.UUID
	SongID      string
	Title       string
	Artist      string
}

// Submit admits a new song request into the event's pending set. Blocklist,
// queue-size and duplicate checks run before the record is created; when the
// event does not require approval the request is approved immediately.
func (s *Service) Submit(ctx context.Context, sub Submission) (*models.SongRequest, error) {
	event, err := s.store.GetEventByID(ctx, sub.EventID)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventActive {
		return nil, ErrEventNotActive
	}

	blocked, err := s.isBlocked(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("failed to check blocklist: %w", err)
	}
	if blocked {
		return nil, ErrBlocked
	}

	if event.MaxQueueSize > 0 {
		active, err := s.store.CountActiveRequests(ctx, sub.EventID)
		if err != nil {
			return nil, fmt.Errorf("failed to count active requests: %w", err)
		}
		if active >= int64(event.MaxQueueSize) {
			return nil, ErrQueueFull
		}
	}

	since := time.Now().Add(-s.cfg.DedupeWindow)
	dup, err := s.store.HasRecentDuplicate(ctx, sub.EventID, sub.SubmitterID, sub.SongID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to check duplicates: %w", err)
	}
	if dup {
		return nil, ErrDuplicateRequest
	}

	now := time.Now()
	req := &models.SongRequest{
		ID:          uuid.New(),
		EventID:     sub.EventID,
		SubmitterID: sub.SubmitterID,
		SongID:      sub.SongID,
		Title:       sub.Title,
		Artist:      sub.Artist,
		Status:      models.StatusPending,
		Version:     1,
		RequestTime: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if !event.ApprovalRequired {
		if err := s.Transition(ctx, req.ID, models.StatusApproved); err != nil {
			return nil, fmt.Errorf("failed to auto-approve request: %w", err)
		}
		req.Status = models.StatusApproved
		req.Version++
		s.recompute(ctx, sub.EventID)
	}

	s.publish(ctx, events.EventTypeRequestSubmitted, sub.EventID, events.RequestSubmittedPayload{
		RequestID:   req.ID.String(),
		SongID:      req.SongID,
		Title:       req.Title,
		Artist:      req.Artist,
		SubmitterID: req.SubmitterID.String(),
		Status:      string(req.Status),
	})

	return req, nil
}

// Get returns the request, applying lazy expiry to stale pending records
// first so an expired request is never surfaced as actionable.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.SongRequest, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.maybeExpire(ctx, req)
}

// ListPending returns the actionable pending requests for the DJ, expiring
// stale ones on the way.
func (s *Service) ListPending(ctx context.Context, eventID uuid.UUID) ([]*models.SongRequest, error) {
	reqs, err := s.store.ListRequestsByStatus(ctx, eventID, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}

	actionable := make([]*models.SongRequest, 0, len(reqs))
	for _, req := range reqs {
		fresh, err := s.maybeExpire(ctx, req)
		if err != nil {
			return nil, err
		}
		if fresh.Status == models.StatusPending {
			actionable = append(actionable, fresh)
		}
	}
	return actionable, nil
}

// Transition moves a request to next under the shared retry policy.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, next models.RequestStatus) error {
	return WithVersionRetry(func() (bool, error) {
		current, err := s.store.GetRequest(ctx, id)
		if err != nil {
			return false, err
		}
		return s.store.ApplyTransition(ctx, id, current.Version, next)
	})
}

// Vote toggles the caller's vote on a request: first call counts it, the
// next removes it. Only pending and approved requests accept votes.
func (s *Service) Vote(ctx context.Context, requestID, voterID uuid.UUID) (*models.SongRequest, error) {
	err := WithVersionRetry(func() (bool, error) {
		current, err := s.store.GetRequest(ctx, requestID)
		if err != nil {
			return false, err
		}
		if current.Status.IsTerminal() {
			return false, ErrNotVotable
		}
		_, ok, err := s.store.ToggleVote(ctx, requestID, voterID, current.Version)
		if err != nil {
			return false, err
		}
		return ok, nil
	})
	if err != nil {
		return nil, err
	}

	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if req.Status == models.StatusApproved {
		s.recompute(ctx, req.EventID)
	}

	s.publish(ctx, events.EventTypeVoteUpdated, req.EventID, events.VoteUpdatedPayload{
		RequestID:  requestID.String(),
		VoterID:    voterID.String(),
		TotalVotes: req.VoteCount,
	})

	return req, nil
}

// ExpireStale sweeps pending requests older than the TTL into expired. Lost
// version races are fine: the winner already moved the request on.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.PendingTTL)
	stale, err := s.store.ListStalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale requests: %w", err)
	}

	expired := 0
	for _, req := range stale {
		ok, err := s.store.ApplyTransition(ctx, req.ID, req.Version, models.StatusExpired)
		if err != nil {
			if errors.Is(err, database.ErrInvalidTransition) {
				continue
			}
			return expired, err
		}
		if ok {
			expired++
			s.publish(ctx, events.EventTypeRequestExpired, req.EventID, events.RequestModeratedPayload{
				RequestID: req.ID.String(),
				Status:    string(models.StatusExpired),
			})
		}
	}
	return expired, nil
}

// RunExpirySweep periodically expires stale pending requests until ctx ends.
func (s *Service) RunExpirySweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.ExpireStale(ctx); err != nil {
				log.Printf("Expiry sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("Expired %d stale requests", n)
			}
		}
	}
}

func (s *Service) maybeExpire(ctx context.Context, req *models.SongRequest) (*models.SongRequest, error) {
	if req.Status != models.StatusPending || time.Since(req.RequestTime) < s.cfg.PendingTTL {
		return req, nil
	}

	ok, err := s.store.ApplyTransition(ctx, req.ID, req.Version, models.StatusExpired)
	if err != nil && !errors.Is(err, database.ErrInvalidTransition) {
		return nil, err
	}
	if ok {
		s.publish(ctx, events.EventTypeRequestExpired, req.EventID, events.RequestModeratedPayload{
			RequestID: req.ID.String(),
			Status:    string(models.StatusExpired),
		})
	}
	return s.store.GetRequest(ctx, req.ID)
}

func (s *Service) isBlocked(ctx context.Context, sub Submission) (bool, error) {
	entries, err := s.store.ListBlocklist(ctx, sub.EventID)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		switch entry.Kind {
		case models.BlockSong:
			if entry.Value == sub.SongID {
				return true, nil
			}
		case models.BlockArtist:
			if strings.EqualFold(entry.Value, sub.Artist) {
				return true, nil
			}
		case models.BlockUser:
			if entry.Value == sub.SubmitterID.String() {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Service) recompute(ctx context.Context, eventID uuid.UUID) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Recompute(ctx, eventID); err != nil {
		log.Printf("Failed to recompute queue for event %s: %v", eventID, err)
	}
}

func (s *Service) publish(ctx context.Context, eventType events.EventType, eventID uuid.UUID, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishDelta(ctx, eventType, eventID.String(), payload); err != nil {
		log.Printf("Failed to publish %s delta: %v", eventType, err)
	}
}
