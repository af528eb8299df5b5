package store

import (
	"context"
	"sort"
	"sync"

	"coverline/internal/attachment/models"
	id "coverline/pkg/domain"
	"coverline/pkg/platform/sentinel"
)

type InMemoryNotificationStore struct {
	mu    sync.RWMutex
	notes map[id.NotificationID]*models.Notification
}

func NewInMemoryNotificationStore() *InMemoryNotificationStore {
	return &InMemoryNotificationStore{notes: make(map[id.NotificationID]*models.Notification)}
}

func (s *InMemoryNotificationStore) Save(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[n.ID] = cloneNotification(n)
	return nil
}

func (s *InMemoryNotificationStore) FindByID(_ context.Context, notificationID id.NotificationID) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[notificationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneNotification(n), nil
}

// ListByUser returns the user's notifications, newest first.
func (s *InMemoryNotificationStore) ListByUser(_ context.Context, userID id.UserID) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Notification, 0)
	for _, n := range s.notes {
		if n.UserID == userID {
			out = append(out, cloneNotification(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func cloneNotification(n *models.Notification) *models.Notification {
	clone := *n
	if n.ClaimID != nil {
		claimID := *n.ClaimID
		clone.ClaimID = &claimID
	}
	return &clone
}
