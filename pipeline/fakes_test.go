package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/reelforge/reelforge/generation"
	"github.com/reelforge/reelforge/storage"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  func(key string) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		if err := s.putErr(key); err != nil {
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
		if strings.HasPrefix(key, prefix) {
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

func (s *fakeStore) keys(prefix string) []string {
	keys, _ := s.List(context.Background(), prefix)
	return keys
}

// fakeGenerator resolves every job on the first status poll. statusFn can
// override the outcome per job id.
type fakeGenerator struct {
	mu       sync.Mutex
	submits  int
	statusFn func(jobID string) (generation.JobStatus, error)
	submitFn func(spec generation.JobSpec) (string, error)
}

func (g *fakeGenerator) Submit(ctx context.Context, spec generation.JobSpec) (string, error) {
	g.mu.Lock()
	g.submits++
	id := fmt.Sprintf("job-%d", g.submits)
	g.mu.Unlock()

	if g.submitFn != nil {
		return g.submitFn(spec)
	}
	return id, nil
}

func (g *fakeGenerator) Status(ctx context.Context, jobID string) (generation.JobStatus, error) {
	if g.statusFn != nil {
		return g.statusFn(jobID)
	}
	return generation.JobStatus{
		State:     generation.StateSucceeded,
		OutputURL: "https://outputs.example/" + jobID,
	}, nil
}

// fakeDownloader serves canned bytes per URL and records what it fetched.
type fakeDownloader struct {
	mu      sync.Mutex
	outputs map[string][]byte
	fetched []string
	err     error
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{outputs: map[string][]byte{}}
}

func (d *fakeDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetched = append(d.fetched, url)
	if d.err != nil {
		return nil, d.err
	}
	if data, ok := d.outputs[url]; ok {
		return data, nil
	}
	return []byte("output for " + url), nil
}

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) List() []string {
	var values []string
	for key, value := range repo.envVars {
		values = append(values, fmt.Sprintf("%s=%s", key, value))
	}
	return values
}

func (repo fakeEnvRepo) Unset(key string) error {
	delete(repo.envVars, key)
	return nil
}

func (repo fakeEnvRepo) Get(key string) string {
	return repo.envVars[key]
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}
