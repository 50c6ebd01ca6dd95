package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemStorage is an in-memory Storage for tests and offline runs. It honors
// the non-overwriting contract.
type MemStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	Err     error // returned by Upload when set
}

func NewMemStorage() *MemStorage {
	return &MemStorage{objects: make(map[string][]byte)}
}

func (s *MemStorage) Upload(_ context.Context, path string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, exists := s.objects[path]; exists {
		return fmt.Errorf("storage object already exists at %s", path)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[path] = cp
	return nil
}

func (s *MemStorage) Object(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	return data, ok
}

func (s *MemStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// MemRecordings is an in-memory Recordings for tests and offline runs.
type MemRecordings struct {
	mu      sync.Mutex
	records map[string]Recording
	Err     error // returned by Insert when set
}

func NewMemRecordings() *MemRecordings {
	return &MemRecordings{records: make(map[string]Recording)}
}

func (r *MemRecordings) Insert(_ context.Context, rec Recording) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return "", r.Err
	}
	id := uuid.NewString()
	r.records[id] = rec
	return id, nil
}

func (r *MemRecordings) Get(id string) (Recording, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	return rec, ok
}

func (r *MemRecordings) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
