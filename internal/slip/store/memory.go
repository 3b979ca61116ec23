package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"marketslip/internal/slip/models"
	"marketslip/pkg/platform/sentinel"
	"marketslip/pkg/requestcontext"
)

// InMemoryStore keeps slip records in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.SlipRecord
	order   []string
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*models.SlipRecord)}
}

func (s *InMemoryStore) Create(ctx context.Context, storageKey, marketID, reservationID string) (*models.SlipRecord, error) {
	record := &models.SlipRecord{
		ID:            uuid.NewString(),
		StorageKey:    storageKey,
		MarketID:      marketID,
		ReservationID: reservationID,
		CreatedAt:     requestcontext.Now(ctx),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.StorageKey == storageKey {
			return nil, fmt.Errorf("insert slip %q: %w", storageKey, sentinel.ErrAlreadyExists)
		}
	}
	s.records[record.ID] = record
	s.order = append(s.order, record.ID)
	copied := *record
	return &copied, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*models.SlipRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *InMemoryStore) ListByReservation(_ context.Context, reservationID string) ([]*models.SlipRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]*models.SlipRecord, 0)
	for _, id := range s.order {
		record, ok := s.records[id]
		if !ok || record.ReservationID != reservationID {
			continue
		}
		copied := *record
		records = append(records, &copied)
	}
	return records, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *InMemoryStore) ExistsByStorageKey(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.records {
		if record.StorageKey == key {
			return true, nil
		}
	}
	return false, nil
}
