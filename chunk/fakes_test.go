package chunk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reelforge/reelforge/storage"
)

// fakeStore is an in-memory ObjectStore with per-key failure injection.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	// putHook runs before a write; a non-nil return fails the Put. attempt
	// counts invocations per key, starting at 1.
	putHook func(store *fakeStore, key string, attempt int) error
	puts    map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects: map[string][]byte{},
		puts:    map[string]int{},
	}
}

func (s *fakeStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.puts[key]++
	if s.putHook != nil {
		if err := s.putHook(s, key, s.puts[key]); err != nil {
			return err
		}
	}
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key)
	return nil
}

func (s *fakeStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for key := range s.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.objects[key]
	return ok, nil
}

func (s *fakeStore) SignedURL(ctx context.Context, key string, ttl time.Duration, intent storage.Intent) (string, error) {
	return fmt.Sprintf("https://store.example/%s?intent=%s", key, intent), nil
}

// seed writes an object directly, bypassing hooks.
func (s *fakeStore) seed(key string, data []byte) {
	s.objects[key] = append([]byte(nil), data...)
}
