package indexed

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// stream is a single (ns, key)'s ordered entries, guarded by its own mutex so
// unrelated streams never contend.
type stream struct {
	mu      sync.Mutex
	entries map[uint64][]byte
	first   uint64
	last    uint64
}

// MemoryStorage is an in-process, non-durable Storage implementation used for
// tests and single-node deployments. Replication is simulated as always
// fully caught-up (replicas == 1, wait_for_replicas always observes it
// immediately).
type MemoryStorage struct {
	mu      sync.RWMutex
	streams map[string]*stream
	replicas int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{streams: make(map[string]*stream), replicas: 1}
}

func streamKey(ns Namespace, key string) string {
	return string(ns) + "\x00" + key
}

func (m *MemoryStorage) getOrCreate(k string) *stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[k]
	if !ok {
		s = &stream{entries: make(map[uint64][]byte)}
		m.streams[k] = s
	}
	return s
}

func (m *MemoryStorage) get(k string) (*stream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[k]
	return s, ok
}

func (m *MemoryStorage) Append(ctx context.Context, ns Namespace, key string, idx uint64, value []byte) error {
	s := m.getOrCreate(streamKey(ns, key))
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.entries[idx] = cp
	if s.first == 0 || idx < s.first {
		s.first = idx
	}
	if idx > s.last {
		s.last = idx
	}
	return nil
}

func (m *MemoryStorage) Read(ctx context.Context, ns Namespace, key string, from, to uint64) ([][]byte, error) {
	s, ok := m.get(streamKey(ns, key))
	if !ok {
		return nil, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, 0, to-from+1)
	for i := from; i <= to; i++ {
		v, ok := s.entries[i]
		if !ok {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *MemoryStorage) FirstIndex(ctx context.Context, ns Namespace, key string) (uint64, error) {
	s, ok := m.get(streamKey(ns, key))
	if !ok {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return 0, nil
	}
	return s.first, nil
}

func (m *MemoryStorage) LastIndex(ctx context.Context, ns Namespace, key string) (uint64, error) {
	s, ok := m.get(streamKey(ns, key))
	if !ok {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return 0, nil
	}
	return s.last, nil
}

func (m *MemoryStorage) Length(ctx context.Context, ns Namespace, key string) (uint64, error) {
	s, ok := m.get(streamKey(ns, key))
	if !ok {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.entries)), nil
}

func (m *MemoryStorage) Exists(ctx context.Context, ns Namespace, key string) (bool, error) {
	n, err := m.Length(ctx, ns, key)
	return n > 0, err
}

func (m *MemoryStorage) Delete(ctx context.Context, ns Namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, streamKey(ns, key))
	return nil
}

func (m *MemoryStorage) DropPrefix(ctx context.Context, ns Namespace, key string, upTo uint64) error {
	s, ok := m.get(streamKey(ns, key))
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if i <= upTo {
			delete(s.entries, i)
		}
	}
	if len(s.entries) == 0 {
		s.first, s.last = 0, 0
		return nil
	}
	newFirst := s.last
	for i := range s.entries {
		if i < newFirst {
			newFirst = i
		}
	}
	s.first = newFirst
	return nil
}

func (m *MemoryStorage) Scan(ctx context.Context, ns Namespace, pattern string, cursor uint64, count int) (uint64, []string, error) {
	m.mu.RLock()
	var all []string
	prefix := string(ns) + "\x00"
	for k := range m.streams {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		bare := strings.TrimPrefix(k, prefix)
		if pattern == "" || strings.Contains(bare, pattern) {
			all = append(all, bare)
		}
	}
	m.mu.RUnlock()
	sort.Strings(all)

	if cursor >= uint64(len(all)) {
		return 0, nil, nil
	}
	end := cursor + uint64(count)
	if count <= 0 || end > uint64(len(all)) {
		end = uint64(len(all))
	}
	page := all[cursor:end]
	next := end
	if next >= uint64(len(all)) {
		next = 0
	}
	return next, page, nil
}

func (m *MemoryStorage) WaitForReplicas(ctx context.Context, ns Namespace, key string, n int, timeout time.Duration) (int, error) {
	clamped := n
	if clamped > m.replicas {
		clamped = m.replicas
	}
	return clamped, nil
}

func (m *MemoryStorage) NumberOfReplicas() int { return m.replicas }

func (m *MemoryStorage) Close() error { return nil }

var _ Storage = (*MemoryStorage)(nil)
