package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"coverline/internal/purchase/models"
	id "coverline/pkg/domain"
	"coverline/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu        sync.RWMutex
	purchases map[id.PurchaseID]*models.Purchase
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{purchases: make(map[id.PurchaseID]*models.Purchase)}
}

func (s *InMemoryStore) Save(_ context.Context, purchase *models.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *purchase
	s.purchases[purchase.ID] = &clone
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, purchaseID id.PurchaseID) (*models.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.purchases[purchaseID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]*models.Purchase, error) {
	return s.filter(func(p *models.Purchase) bool { return p.UserID == userID }), nil
}

func (s *InMemoryStore) ListByUserAndStatus(_ context.Context, userID id.UserID, status models.Status) ([]*models.Purchase, error) {
	return s.filter(func(p *models.Purchase) bool {
		return p.UserID == userID && p.Status == status
	}), nil
}

// ListActiveByUser returns ACTIVE purchases expiring on or after today.
func (s *InMemoryStore) ListActiveByUser(_ context.Context, userID id.UserID, today time.Time) ([]*models.Purchase, error) {
	return s.filter(func(p *models.Purchase) bool {
		return p.UserID == userID && p.IsActive(today)
	}), nil
}

// ListExpiredByUser returns purchases whose expiry date is before today,
// whatever their stored status.
func (s *InMemoryStore) ListExpiredByUser(_ context.Context, userID id.UserID, today time.Time) ([]*models.Purchase, error) {
	day := models.Day(today)
	return s.filter(func(p *models.Purchase) bool {
		return p.UserID == userID && p.ExpiryDate.Before(day)
	}), nil
}

func (s *InMemoryStore) filter(keep func(*models.Purchase) bool) []*models.Purchase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Purchase, 0)
	for _, p := range s.purchases {
		if keep(p) {
			clone := *p
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchaseDate.Before(out[j].PurchaseDate) })
	return out
}
