package worker

import (
	"context"
	"sync"

	"github.com/oriys/workerexec/internal/domain"
)

// MetadataStore persists WorkerMetadata across a worker's lifecycle
// (spec.md §4.3 step 2). The database-backed implementation is out of
// scope (spec.md §1 Non-goals); MemoryMetadataStore is the in-process
// reference used by the worker lifecycle and its tests, grounded on
// internal/cache/inmemory.go's RWMutex-guarded map shape.
type MetadataStore interface {
	Add(ctx context.Context, meta domain.WorkerMetadata) error
	Get(ctx context.Context, id domain.WorkerId) (domain.WorkerMetadata, bool, error)
	UpdateStatus(ctx context.Context, id domain.WorkerId, status domain.WorkerStatusRecord) error
	Delete(ctx context.Context, id domain.WorkerId) error
}

// MemoryMetadataStore is an in-memory MetadataStore.
type MemoryMetadataStore struct {
	mu      sync.RWMutex
	entries map[domain.WorkerId]domain.WorkerMetadata
}

func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{entries: make(map[domain.WorkerId]domain.WorkerMetadata)}
}

func (s *MemoryMetadataStore) Add(ctx context.Context, meta domain.WorkerMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[meta.WorkerId.WorkerId] = meta
	return nil
}

func (s *MemoryMetadataStore) Get(ctx context.Context, id domain.WorkerId) (domain.WorkerMetadata, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.entries[id]
	return meta, ok, nil
}

func (s *MemoryMetadataStore) UpdateStatus(ctx context.Context, id domain.WorkerId, status domain.WorkerStatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.entries[id]
	if !ok {
		return nil
	}
	meta.Status = status
	s.entries[id] = meta
	return nil
}

func (s *MemoryMetadataStore) Delete(ctx context.Context, id domain.WorkerId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}
