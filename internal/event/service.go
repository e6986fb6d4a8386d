package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/live-queue-system/pkg/database"
	"github.com/live-queue-system/pkg/events"
	"github.com/live-queue-system/pkg/models"
)

const (
	eventKeyPrefix = "event:"
	eventCacheTTL  = 24 * time.Hour
	codeLength     = 6
)

var (
	ErrNotEventDJ = errors.New("user is not the event DJ")
	ErrEventEnded = errors.New("event has already ended")
)

// Publisher pushes state deltas onto the change-notification bus.
type Publisher interface {
	PublishDelta(ctx context.Context, eventType events.EventType, eventID string, payload interface{}) error
}

// QueueDropper releases derived queue state once an event closes.
type QueueDropper interface {
	Forget(ctx context.Context, eventID uuid.UUID)
}

type Service struct {
	store     database.Store
	redis     *redis.Client
	publisher Publisher
	queues    QueueDropper
}

func NewService(store database.Store, redis *redis.Client, publisher Publisher, queues QueueDropper) *Service {
	return &Service{
		store:     store,
		redis:     redis,
		publisher: publisher,
		queues:    queues,
	}
}

type Settings struct {
	TippingEnabled   bool `json:"tipping_enabled"`
	ApprovalRequired bool `json:"approval_required"`
	MaxQueueSize     int  `json:"max_queue_size"`
}

func (s *Service) CreateEvent(ctx context.Context, djID uuid.UUID, name string, settings Settings) (*models.Event, error) {
	now := time.Now()
	event := &models.Event{
		ID:               uuid.New(),
		Code:             generateJoinCode(),
		DJID:             djID,
		Name:             name,
		Status:           models.EventActive,
		TippingEnabled:   settings.TippingEnabled,
		ApprovalRequired: settings.ApprovalRequired,
		MaxQueueSize:     settings.MaxQueueSize,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	s.cacheEvent(ctx, event)
	return event, nil
}

func (s *Service) GetEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	// Try cache first
	if s.redis != nil {
		key := eventKeyPrefix + eventID.String()
		eventJSON, err := s.redis.Get(ctx, key).Bytes()
		if err == nil {
			var event models.Event
			if err := json.Unmarshal(eventJSON, &event); err == nil {
				return &event, nil
			}
		}
	}

	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	s.cacheEvent(ctx, event)
	return event, nil
}

func (s *Service) GetEventByCode(ctx context.Context, code string) (*models.Event, error) {
	event, err := s.store.GetEventByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	s.cacheEvent(ctx, event)
	return event, nil
}

// UpdateSettings rewrites the event's moderation and tipping settings.
func (s *Service) UpdateSettings(ctx context.Context, eventID, djID uuid.UUID, settings Settings) (*models.Event, error) {
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.DJID != djID {
		return nil, ErrNotEventDJ
	}
	if event.Status == models.EventEnded || event.Status == models.EventCancelled {
		return nil, ErrEventEnded
	}

	event.TippingEnabled = settings.TippingEnabled
	event.ApprovalRequired = settings.ApprovalRequired
	event.MaxQueueSize = settings.MaxQueueSize
	event.UpdatedAt = time.Now()

	if err := s.store.UpdateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}

	s.cacheEvent(ctx, event)
	return event, nil
}

// EndEvent archives the event; new submissions are refused afterwards.
func (s *Service) EndEvent(ctx context.Context, eventID, djID uuid.UUID) (*models.Event, error) {
	return s.close(ctx, eventID, djID, models.EventEnded)
}

func (s *Service) CancelEvent(ctx context.Context, eventID, djID uuid.UUID) (*models.Event, error) {
	return s.close(ctx, eventID, djID, models.EventCancelled)
}

func (s *Service) close(ctx context.Context, eventID, djID uuid.UUID, status models.EventStatus) (*models.Event, error) {
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.DJID != djID {
		return nil, ErrNotEventDJ
	}
	if event.Status == models.EventEnded || event.Status == models.EventCancelled {
		return nil, ErrEventEnded
	}

	event.Status = status
	event.UpdatedAt = time.Now()
	if err := s.store.UpdateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to end event: %w", err)
	}

	s.invalidate(ctx, eventID)
	if s.queues != nil {
		s.queues.Forget(ctx, eventID)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishDelta(ctx, events.EventTypeEventEnded, eventID.String(),
			map[string]string{"status": string(status)}); err != nil {
			log.Printf("Failed to publish event ended delta: %v", err)
		}
	}
	return event, nil
}

func (s *Service) cacheEvent(ctx context.Context, event *models.Event) {
	if s.redis == nil {
		return
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return
	}
	key := eventKeyPrefix + event.ID.String()
	if err := s.redis.Set(ctx, key, eventJSON, eventCacheTTL).Err(); err != nil {
		log.Printf("Warning: failed to cache event: %v", err)
	}
}

func (s *Service) invalidate(ctx context.Context, eventID uuid.UUID) {
	if s.redis == nil {
		return
	}
	s.redis.Del(ctx, eventKeyPrefix+eventID.String())
}

func generateJoinCode() string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	code := make([]byte, codeLength)
	for i := range code {
		code[i] = charset[rand.Intn(len(charset))]
	}
	return string(code)
}
