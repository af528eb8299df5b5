package filestore

import (
	"context"
	"net/url"
	"sync"
	"time"

	"coverline/pkg/platform/sentinel"
)

// MemoryStore keeps objects in memory. PresignGet returns a memory:// URL.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]object
	ttl     time.Duration
}

type object struct {
	contentType string
	content     []byte
}

func NewMemory(ttl time.Duration) *MemoryStore {
	return &MemoryStore{objects: make(map[string]object), ttl: ttl}
}

func (s *MemoryStore) Put(_ context.Context, key, contentType string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{contentType: contentType, content: append([]byte(nil), content...)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) PresignGet(_ context.Context, key string) (string, time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[key]; !ok {
		return "", 0, sentinel.ErrNotFound
	}
	u := url.URL{Scheme: "memory", Path: "/" + key}
	return u.String(), s.ttl, nil
}

// Object returns the stored content for key.
func (s *MemoryStore) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[key]
	return o.content, ok
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
