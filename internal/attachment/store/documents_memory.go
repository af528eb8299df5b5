package store

import (
	"context"
	"sort"
	"sync"

	"coverline/internal/attachment/models"
	id "coverline/pkg/domain"
	"coverline/pkg/platform/sentinel"
)

// InMemoryDocumentStore keeps document records in a map guarded by a mutex.
type InMemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[id.DocumentID]*models.Document
}

func NewInMemoryDocumentStore() *InMemoryDocumentStore {
	return &InMemoryDocumentStore{docs: make(map[id.DocumentID]*models.Document)}
}

func (s *InMemoryDocumentStore) Save(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *doc
	s.docs[doc.ID] = &clone
	return nil
}

func (s *InMemoryDocumentStore) FindByID(_ context.Context, documentID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[documentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *d
	return &clone, nil
}

func (s *InMemoryDocumentStore) Delete(_ context.Context, documentID id.DocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[documentID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.docs, documentID)
	return nil
}

func (s *InMemoryDocumentStore) ListAll(_ context.Context) ([]*models.Document, error) {
	return s.filter(func(*models.Document) bool { return true }), nil
}

func (s *InMemoryDocumentStore) ListByClaim(_ context.Context, claimID id.ClaimID) ([]*models.Document, error) {
	return s.filter(func(d *models.Document) bool { return d.ClaimID == claimID }), nil
}

func (s *InMemoryDocumentStore) ListByUser(_ context.Context, userID id.UserID) ([]*models.Document, error) {
	return s.filter(func(d *models.Document) bool { return d.UserID == userID }), nil
}

func (s *InMemoryDocumentStore) filter(keep func(*models.Document) bool) []*models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Document, 0)
	for _, d := range s.docs {
		if keep(d) {
			clone := *d
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out
}
