package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/live-queue-system/internal/request"
	"github.com/live-queue-system/pkg/database"
	"github.com/live-queue-system/pkg/events"
	"github.com/live-queue-system/pkg/models"
)

const (
	queueCachePrefix = "queue:"
	queueCacheTTL    = time.Hour
)

// Weights configure the priority score. Tip amounts are stored in minor
// units, so scoring normalizes them to major units first; with the defaults a
// 5.00 tip is worth 50 points and one vote is worth 1.
type Weights struct {
	Tip   float64
	Vote  float64
	Decay float64 // points lost per second of age
}

func DefaultWeights() Weights {
	return Weights{Tip: 10, Vote: 1, Decay: 0.01}
}

// Engine derives the play order for each event from the approved requests.
// Order is a projection: it is recomputed from the latest accepted state on
// every trigger and never stored as ground truth.
type Engine struct {
	store     database.Store
	cache     *goredis.Client
	publisher request.Publisher
	weights   Weights

	mu        sync.RWMutex
	snapshots map[uuid.UUID][]models.QueueItem
}

func NewEngine(store database.Store, cache *goredis.Client, publisher request.Publisher, weights Weights) *Engine {
	if weights.Tip == 0 && weights.Vote == 0 && weights.Decay == 0 {
		weights = DefaultWeights()
	}
	return &Engine{
		store:     store,
		cache:     cache,
		publisher: publisher,
		weights:   weights,
		snapshots: make(map[uuid.UUID][]models.QueueItem),
	}
}

// Score computes the priority of one request at the given instant.
func (e *Engine) Score(req *models.SongRequest, now time.Time) float64 {
	age := now.Sub(req.RequestTime).Seconds()
	tip := float64(req.TipAmount) / 100
	return tip*e.weights.Tip + float64(req.VoteCount)*e.weights.Vote - age*e.weights.Decay
}

// Recompute rebuilds the ordered queue for an event from the store and
// broadcasts the new order. Readers see either the previous complete order
// or the new one, never a partial mix.
func (e *Engine) Recompute(ctx context.Context, eventID uuid.UUID) error {
	items, err := e.compute(ctx, eventID, time.Now())
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.snapshots[eventID] = items
	e.mu.Unlock()

	e.cacheSnapshot(ctx, eventID, items)

	if e.publisher != nil {
		if err := e.publisher.PublishDelta(ctx, events.EventTypeQueueUpdated, eventID.String(),
			events.QueueUpdatedPayload{Items: items}); err != nil {
			log.Printf("Failed to publish queue update: %v", err)
		}
	}
	return nil
}

// GetOrderedQueue returns the current play order for an event. On a local
// miss it falls back to the Redis snapshot (another instance may have
// recomputed more recently) before re-deriving from the store.
func (e *Engine) GetOrderedQueue(ctx context.Context, eventID uuid.UUID) ([]models.QueueItem, error) {
	e.mu.RLock()
	items, ok := e.snapshots[eventID]
	e.mu.RUnlock()
	if ok {
		return items, nil
	}

	if cached, ok := e.cachedSnapshot(ctx, eventID); ok {
		e.mu.Lock()
		e.snapshots[eventID] = cached
		e.mu.Unlock()
		return cached, nil
	}

	items, err := e.compute(ctx, eventID, time.Now())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.snapshots[eventID] = items
	e.mu.Unlock()
	return items, nil
}

// MarkPlayed transitions a request out of the queue. Retrying an already
// played request is a no-op.
func (e *Engine) MarkPlayed(ctx context.Context, eventID, requestID uuid.UUID) error {
	err := request.WithVersionRetry(func() (bool, error) {
		current, err := e.store.GetRequest(ctx, requestID)
		if err != nil {
			return false, err
		}
		if current.Status == models.StatusPlayed {
			return true, nil
		}
		return e.store.ApplyTransition(ctx, requestID, current.Version, models.StatusPlayed)
	})
	if err != nil {
		return err
	}
	return e.Recompute(ctx, eventID)
}

// Forget drops the cached snapshot for an event, e.g. when it ends.
func (e *Engine) Forget(ctx context.Context, eventID uuid.UUID) {
	e.mu.Lock()
	delete(e.snapshots, eventID)
	e.mu.Unlock()

	if e.cache != nil {
		e.cache.Del(ctx, queueCachePrefix+eventID.String())
	}
}

// RunDecayTick periodically recomputes every active event so age decay keeps
// moving requests even without new votes or tips.
func (e *Engine) RunDecayTick(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			active, err := e.store.ListEventsByStatus(ctx, models.EventActive)
			if err != nil {
				log.Printf("Decay tick failed to list events: %v", err)
				continue
			}
			for _, event := range active {
				if err := e.Recompute(ctx, event.ID); err != nil {
					log.Printf("Decay tick failed to recompute event %s: %v", event.ID, err)
				}
			}
		}
	}
}

func (e *Engine) compute(ctx context.Context, eventID uuid.UUID, now time.Time) ([]models.QueueItem, error) {
	approved, err := e.store.ListRequestsByStatus(ctx, eventID, models.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to list approved requests: %w", err)
	}

	items := make([]models.QueueItem, 0, len(approved))
	for _, req := range approved {
		items = append(items, models.QueueItem{
			RequestID:   req.ID,
			SongID:      req.SongID,
			Title:       req.Title,
			Artist:      req.Artist,
			SubmitterID: req.SubmitterID,
			VoteCount:   req.VoteCount,
			TipAmount:   req.TipAmount,
			Score:       e.Score(req, now),
			RequestTime: req.RequestTime,
		})
	}

	// Strict total order: score desc, then request time asc, then id asc.
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if !items[i].RequestTime.Equal(items[j].RequestTime) {
			return items[i].RequestTime.Before(items[j].RequestTime)
		}
		return items[i].RequestID.String() < items[j].RequestID.String()
	})

	for i := range items {
		items[i].Position = i
	}
	return items, nil
}

func (e *Engine) cachedSnapshot(ctx context.Context, eventID uuid.UUID) ([]models.QueueItem, bool) {
	if e.cache == nil {
		return nil, false
	}
	data, err := e.cache.Get(ctx, queueCachePrefix+eventID.String()).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			log.Printf("Warning: failed to read queue snapshot cache: %v", err)
		}
		return nil, false
	}
	var items []models.QueueItem
	if err := json.Unmarshal(data, &items); err != nil {
		log.Printf("Warning: failed to decode queue snapshot cache: %v", err)
		return nil, false
	}
	return items, true
}

func (e *Engine) cacheSnapshot(ctx context.Context, eventID uuid.UUID, items []models.QueueItem) {
	if e.cache == nil {
		return
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		log.Printf("Failed to marshal queue snapshot: %v", err)
		return
	}
	if err := e.cache.Set(ctx, queueCachePrefix+eventID.String(), itemsJSON, queueCacheTTL).Err(); err != nil {
		log.Printf("Warning: failed to cache queue snapshot: %v", err)
	}
}
