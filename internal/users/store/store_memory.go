package store

import (
	"context"
	"sort"
	"sync"

	"coverline/internal/users/models"
	id "coverline/pkg/domain"
	"coverline/pkg/platform/sentinel"
)

// InMemoryUserStore keeps users in a map keyed by ID with a secondary email
// index.
type InMemoryUserStore struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.User
	byEmail map[string]id.UserID
}

func New() *InMemoryUserStore {
	return &InMemoryUserStore{
		users:   make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

// Save inserts or replaces the user.
func (s *InMemoryUserStore) Save(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(user)
	return nil
}

// CreateIfEmailAvailable inserts the user unless the email is already taken,
// in which case sentinel.ErrAlreadyUsed is returned.
func (s *InMemoryUserStore) CreateIfEmailAvailable(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[models.NormalizeEmail(user.Email)]; taken {
		return sentinel.ErrAlreadyUsed
	}
	s.put(user)
	return nil
}

func (s *InMemoryUserStore) put(user *models.User) {
	if old, ok := s.users[user.ID]; ok {
		delete(s.byEmail, models.NormalizeEmail(old.Email))
	}
	s.users[user.ID] = user
	s.byEmail[models.NormalizeEmail(user.Email)] = user.ID
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.users[userID]; ok {
		return user, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if userID, ok := s.byEmail[models.NormalizeEmail(email)]; ok {
		return s.users[userID], nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryUserStore) Delete(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byEmail, models.NormalizeEmail(user.Email))
	delete(s.users, userID)
	return nil
}

// ListAll returns every user ordered by creation time.
func (s *InMemoryUserStore) ListAll(_ context.Context) ([]*models.User, error) {
	return s.collect(func(*models.User) bool { return true }), nil
}

// ListInactiveByRole returns the inactive users holding role.
func (s *InMemoryUserStore) ListInactiveByRole(_ context.Context, role models.Role) ([]*models.User, error) {
	return s.collect(func(u *models.User) bool { return u.Role == role && !u.Active }), nil
}

func (s *InMemoryUserStore) collect(keep func(*models.User) bool) []*models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Email < out[j].Email
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
