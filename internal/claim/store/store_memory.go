package store

import (
	"context"
	"sort"
	"sync"

	"coverline/internal/claim/models"
	id "coverline/pkg/domain"
	"coverline/pkg/platform/sentinel"
)

// InMemoryStore keeps claims plus the set of purchases that were ever
// claimed. Withdrawing a claim does not free its purchase.
type InMemoryStore struct {
	mu      sync.RWMutex
	claims  map[id.ClaimID]*models.Claim
	claimed map[id.PurchaseID]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		claims:  make(map[id.ClaimID]*models.Claim),
		claimed: make(map[id.PurchaseID]struct{}),
	}
}

// CreateIfPurchaseUnclaimed inserts the claim unless its purchase was claimed
// before, in which case sentinel.ErrAlreadyUsed is returned.
func (s *InMemoryStore) CreateIfPurchaseUnclaimed(_ context.Context, claim *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.claimed[claim.PurchaseID]; taken {
		return sentinel.ErrAlreadyUsed
	}
	s.claimed[claim.PurchaseID] = struct{}{}
	clone := *claim
	s.claims[claim.ID] = &clone
	return nil
}

func (s *InMemoryStore) Save(_ context.Context, claim *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *claim
	s.claims[claim.ID] = &clone
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, claimID id.ClaimID) (*models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[claimID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *InMemoryStore) Delete(_ context.Context, claimID id.ClaimID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[claimID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.claims, claimID)
	return nil
}

func (s *InMemoryStore) ListAll(_ context.Context) ([]*models.Claim, error) {
	return s.filter(func(*models.Claim) bool { return true }), nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]*models.Claim, error) {
	return s.filter(func(c *models.Claim) bool { return c.UserID == userID }), nil
}

func (s *InMemoryStore) ListByStatus(_ context.Context, status models.Status) ([]*models.Claim, error) {
	return s.filter(func(c *models.Claim) bool { return c.Status == status }), nil
}

func (s *InMemoryStore) ListByPurchase(_ context.Context, purchaseID id.PurchaseID) ([]*models.Claim, error) {
	return s.filter(func(c *models.Claim) bool { return c.PurchaseID == purchaseID }), nil
}

func (s *InMemoryStore) CountByStatus(ctx context.Context, status models.Status) (int, error) {
	list, _ := s.ListByStatus(ctx, status)
	return len(list), nil
}

func (s *InMemoryStore) CountByUser(ctx context.Context, userID id.UserID) (int, error) {
	list, _ := s.ListByUser(ctx, userID)
	return len(list), nil
}

// ClaimedPurchases reports which of purchaseIDs were ever claimed.
func (s *InMemoryStore) ClaimedPurchases(_ context.Context, purchaseIDs []id.PurchaseID) (map[id.PurchaseID]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.PurchaseID]bool)
	for _, pid := range purchaseIDs {
		if _, ok := s.claimed[pid]; ok {
			out[pid] = true
		}
	}
	return out, nil
}

func (s *InMemoryStore) filter(keep func(*models.Claim) bool) []*models.Claim {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Claim, 0)
	for _, c := range s.claims {
		if keep(c) {
			clone := *c
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
