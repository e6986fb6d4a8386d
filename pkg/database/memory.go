package database

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/live-queue-system/pkg/models"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and local
// development; the version-guard semantics match the MySQL implementation.
type MemoryStore struct {
	mu           sync.Mutex
	events       map[uuid.UUID]*models.Event
	eventsByCode map[string]uuid.UUID
	requests     map[uuid.UUID]*models.SongRequest
	votes        map[uuid.UUID]map[uuid.UUID]struct{} // requestID -> voterIDs
	transactions map[string]*models.TipTransaction
	blocklist    map[uuid.UUID][]*models.BlocklistEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:       make(map[uuid.UUID]*models.Event),
		eventsByCode: make(map[string]uuid.UUID),
		requests:     make(map[uuid.UUID]*models.SongRequest),
		votes:        make(map[uuid.UUID]map[uuid.UUID]struct{}),
		transactions: make(map[string]*models.TipTransaction),
		blocklist:    make(map[uuid.UUID][]*models.BlocklistEntry),
	}
}

func (s *MemoryStore) CreateEvent(ctx context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	s.events[event.ID] = &cp
	s.eventsByCode[event.Code] = event.ID
	return nil
}

func (s *MemoryStore) GetEventByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *event
	return &cp, nil
}

func (s *MemoryStore) GetEventByCode(ctx context.Context, code string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.eventsByCode[code]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *s.events[id]
	return &cp, nil
}

func (s *MemoryStore) UpdateEvent(ctx context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; !ok {
		return ErrEventNotFound
	}
	cp := *event
	s.events[event.ID] = &cp
	return nil
}

func (s *MemoryStore) ListEventsByStatus(ctx context.Context, status models.EventStatus) ([]*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []*models.Event
	for _, event := range s.events {
		if event.Status == status {
			cp := *event
			events = append(events, &cp)
		}
	}
	return events, nil
}

func (s *MemoryStore) CreateRequest(ctx context.Context, req *models.SongRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRequest(ctx context.Context, id uuid.UUID) (*models.SongRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *MemoryStore) ListRequestsByStatus(ctx context.Context, eventID uuid.UUID, status models.RequestStatus) ([]*models.SongRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reqs []*models.SongRequest
	for _, req := range s.requests {
		if req.EventID == eventID && req.Status == status {
			cp := *req
			reqs = append(reqs, &cp)
		}
	}
	return reqs, nil
}

func (s *MemoryStore) CountActiveRequests(ctx context.Context, eventID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, req := range s.requests {
		if req.EventID == eventID &&
			(req.Status == models.StatusPending || req.Status == models.StatusApproved) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) HasRecentDuplicate(ctx context.Context, eventID, submitterID uuid.UUID, songID string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, req := range s.requests {
		if req.EventID == eventID && req.SubmitterID == submitterID &&
			req.SongID == songID && !req.RequestTime.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ListStalePending(ctx context.Context, before time.Time) ([]*models.SongRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reqs []*models.SongRequest
	for _, req := range s.requests {
		if req.Status == models.StatusPending && req.RequestTime.Before(before) {
			cp := *req
			reqs = append(reqs, &cp)
		}
	}
	return reqs, nil
}

func (s *MemoryStore) ApplyTransition(ctx context.Context, id uuid.UUID, expectedVersion int64, next models.RequestStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return false, ErrRequestNotFound
	}
	if req.Status == next {
		return true, nil
	}
	if !models.CanTransition(req.Status, next) {
		return false, ErrInvalidTransition
	}
	if req.Version != expectedVersion {
		return false, nil
	}

	req.Status = next
	req.Version++
	req.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) AddTip(ctx context.Context, id uuid.UUID, expectedVersion int64, amount int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return false, ErrRequestNotFound
	}
	if req.Version != expectedVersion {
		return false, nil
	}

	req.TipAmount += amount
	req.Version++
	req.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) ToggleVote(ctx context.Context, requestID, voterID uuid.UUID, expectedVersion int64) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return false, false, ErrRequestNotFound
	}
	if req.Version != expectedVersion {
		return false, false, nil
	}

	voters, ok := s.votes[requestID]
	if !ok {
		voters = make(map[uuid.UUID]struct{})
		s.votes[requestID] = voters
	}

	var voted bool
	if _, exists := voters[voterID]; exists {
		delete(voters, voterID)
		req.VoteCount--
	} else {
		voters[voterID] = struct{}{}
		req.VoteCount++
		voted = true
	}
	req.Version++
	req.UpdatedAt = time.Now()
	return voted, true, nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, transactionID string) (*models.TipTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[transactionID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *MemoryStore) RecordTransaction(ctx context.Context, tx *models.TipTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.TransactionID]; exists {
		return ErrDuplicateTransaction
	}
	cp := *tx
	s.transactions[tx.TransactionID] = &cp
	return nil
}

func (s *MemoryStore) AddBlocklistEntry(ctx context.Context, entry *models.BlocklistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.blocklist[entry.EventID] = append(s.blocklist[entry.EventID], &cp)
	return nil
}

func (s *MemoryStore) RemoveBlocklistEntry(ctx context.Context, eventID, entryID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.blocklist[eventID]
	for i, entry := range entries {
		if entry.ID == entryID {
			s.blocklist[eventID] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) ListBlocklist(ctx context.Context, eventID uuid.UUID) ([]*models.BlocklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []*models.BlocklistEntry
	for _, entry := range s.blocklist[eventID] {
		cp := *entry
		entries = append(entries, &cp)
	}
	return entries, nil
}
