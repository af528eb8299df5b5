package store

import (
	"context"
	"sort"
	"sync"

	"coverline/internal/instrument/models"
	id "coverline/pkg/domain"
	"coverline/pkg/platform/sentinel"
)

// InMemoryStore keeps instruments of every kind in one map. Lookups by a
// kind that does not match the stored record behave as not found.
type InMemoryStore struct {
	mu          sync.RWMutex
	instruments map[id.InstrumentID]*models.Instrument
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{instruments: make(map[id.InstrumentID]*models.Instrument)}
}

func (s *InMemoryStore) Save(_ context.Context, instrument *models.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *instrument
	s.instruments[instrument.ID] = &clone
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID) (*models.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instruments[instrumentID]
	if !ok || inst.Kind != kind {
		return nil, sentinel.ErrNotFound
	}
	clone := *inst
	return &clone, nil
}

func (s *InMemoryStore) ListByKind(_ context.Context, kind id.InstrumentKind) ([]*models.Instrument, error) {
	return s.filter(func(i *models.Instrument) bool { return i.Kind == kind }), nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]*models.Instrument, error) {
	return s.filter(func(i *models.Instrument) bool { return i.UserID == userID }), nil
}

func (s *InMemoryStore) Delete(_ context.Context, kind id.InstrumentKind, instrumentID id.InstrumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instruments[instrumentID]
	if !ok || inst.Kind != kind {
		return sentinel.ErrNotFound
	}
	delete(s.instruments, instrumentID)
	return nil
}

// filter returns matching clones ordered by creation time.
func (s *InMemoryStore) filter(keep func(*models.Instrument) bool) []*models.Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Instrument, 0)
	for _, inst := range s.instruments {
		if keep(inst) {
			clone := *inst
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
