// Package oplogsvc implements the OplogService (spec.md §4.2): the factory
// and directory of open oplogs. It enforces at most one live Oplog handle
// per WorkerId within a process, because staged buffers hold uncommitted
// writes that a second concurrent handle would silently duplicate or lose.
//
// The registry is grounded on internal/cache/inmemory.go's bounded-map
// texture and internal/checkpoint/store.go's registry shape (mined before
// deletion, see DESIGN.md), expressed in the "registry of weak handles +
// scoped release" pattern spec.md §9 calls for: a plain map guards the
// single live *oplog.Oplog per key, and Handle.Close runs the release
// exactly once per acquisition, removing the slot on the last holder's
// drop. Concurrent opens for a worker that isn't yet registered are
// deduplicated with golang.org/x/sync/singleflight so only one constructor
// runs (spec.md's "single-flight guarded slot").
package oplogsvc

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/oriys/workerexec/internal/domain"
	"github.com/oriys/workerexec/internal/oplog"
	"github.com/oriys/workerexec/internal/storage/blob"
	"github.com/oriys/workerexec/internal/storage/indexed"
)

type registryEntry struct {
	handle   *oplog.Oplog
	refCount int
}

// Service is the OplogService: directory of open oplogs plus create/scan.
type Service struct {
	storage indexed.Storage
	blobs   blob.Storage
	cfg     oplog.Config

	mu    sync.Mutex
	open  map[string]*registryEntry
	group singleflight.Group
}

func New(storage indexed.Storage, blobs blob.Storage, cfg oplog.Config) *Service {
	return &Service{
		storage: storage,
		blobs:   blobs,
		cfg:     cfg,
		open:    make(map[string]*registryEntry),
	}
}

// Handle is a scoped acquisition of a worker's Oplog. Close must be called
// exactly once per successful Open/Create to release the registry slot;
// it is safe to call multiple times (idempotent no-op after the first).
type Handle struct {
	*oplog.Oplog
	svc       *Service
	key       string
	closeOnce sync.Once
}

// Close releases this acquisition. When it was the last live reference for
// the worker, the registry slot is removed so a future Open constructs a
// fresh handle.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.svc.release(h.key)
	})
}

func (s *Service) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.open[key]
	if !ok {
		return
	}
	e.refCount--
	if e.refCount <= 0 {
		delete(s.open, key)
	}
}

// Open returns the existing shared handle for worker if one is live, or
// constructs one from the backing stream's last committed index. Concurrent
// Open calls for the same not-yet-open worker share a single construction
// (spec.md §4.2 invariant).
func (s *Service) Open(ctx context.Context, account domain.AccountId, worker domain.WorkerId) (*Handle, error) {
	key := oplog.Key(worker)

	s.mu.Lock()
	if e, ok := s.open[key]; ok {
		e.refCount++
		s.mu.Unlock()
		return &Handle{Oplog: e.handle, svc: s, key: key}, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		s.mu.Lock()
		if e, ok := s.open[key]; ok {
			e.refCount++
			s.mu.Unlock()
			return e.handle, nil
		}
		s.mu.Unlock()

		last, err := s.storage.LastIndex(ctx, indexed.NamespaceOpLog, key)
		if err != nil {
			return nil, fmt.Errorf("oplogsvc: open %s: %w", key, err)
		}
		h := oplog.New(s.storage, s.blobs, account, worker, domain.OplogIndex(last), s.cfg)

		s.mu.Lock()
		s.open[key] = &registryEntry{handle: h, refCount: 1}
		s.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return &Handle{Oplog: v.(*oplog.Oplog), svc: s, key: key}, nil
}

// Create writes initialEntry at index 1 and fails (fatal per spec.md §4.2)
// if the oplog already exists. On success it returns the opened handle via
// Open, exercising the same single-open invariant as any other caller.
func (s *Service) Create(ctx context.Context, account domain.AccountId, worker domain.WorkerId, initialEntry domain.OplogEntry) (*Handle, error) {
	key := oplog.Key(worker)

	exists, err := s.storage.Exists(ctx, indexed.NamespaceOpLog, key)
	if err != nil {
		return nil, fmt.Errorf("oplogsvc: create %s: %w", key, err)
	}
	if exists {
		return nil, domain.NewWorkerAlreadyExists(worker)
	}

	data, err := oplog.EncodeEntry(initialEntry)
	if err != nil {
		return nil, fmt.Errorf("oplogsvc: create %s: encode initial entry: %w", key, err)
	}
	if err := s.storage.Append(ctx, indexed.NamespaceOpLog, key, 1, data); err != nil {
		return nil, fmt.Errorf("oplogsvc: create %s: %w", key, err)
	}
	return s.Open(ctx, account, worker)
}

// GetFirstIndex returns the lowest committed index for worker, or 0 if the
// oplog is empty or does not exist.
func (s *Service) GetFirstIndex(ctx context.Context, worker domain.WorkerId) (domain.OplogIndex, error) {
	idx, err := s.storage.FirstIndex(ctx, indexed.NamespaceOpLog, oplog.Key(worker))
	return domain.OplogIndex(idx), err
}

// GetLastIndex returns the highest committed index for worker, or 0 if the
// oplog is empty or does not exist.
func (s *Service) GetLastIndex(ctx context.Context, worker domain.WorkerId) (domain.OplogIndex, error) {
	idx, err := s.storage.LastIndex(ctx, indexed.NamespaceOpLog, oplog.Key(worker))
	return domain.OplogIndex(idx), err
}

// ScanCursor pages through workers belonging to a component. A returned
// Cursor of 0 signals completion (spec.md §4.2, §8).
type ScanCursor struct {
	Cursor uint64
}

// ScanForComponent pages through oplog keys matching componentID and
// reconstructs the WorkerIds they belong to.
func (s *Service) ScanForComponent(ctx context.Context, componentID string, cursor ScanCursor, count int) (ScanCursor, []domain.WorkerId, error) {
	pattern := fmt.Sprintf("worker:oplog:%s:", componentID)
	next, keys, err := s.storage.Scan(ctx, indexed.NamespaceOpLog, pattern, cursor.Cursor, count)
	if err != nil {
		return ScanCursor{}, nil, fmt.Errorf("oplogsvc: scan_for_component %s: %w", componentID, err)
	}

	ids := make([]domain.WorkerId, 0, len(keys))
	for _, k := range keys {
		wid, ok := parseWorkerKey(k, componentID)
		if !ok {
			continue
		}
		ids = append(ids, wid)
	}
	return ScanCursor{Cursor: next}, ids, nil
}

func parseWorkerKey(key, componentID string) (domain.WorkerId, bool) {
	prefix := fmt.Sprintf("worker:oplog:%s:", componentID)
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		return domain.WorkerId{}, false
	}
	cid, err := domain.ParseComponentID(componentID)
	if err != nil {
		return domain.WorkerId{}, false
	}
	return domain.WorkerId{ComponentID: cid, WorkerName: key[len(prefix):]}, true
}

// Shutdown drains the registry, dropping every retained handle reference.
// Callers that still hold a Handle must Close it themselves; Shutdown only
// clears bookkeeping so a fresh Service can be constructed cleanly in
// tests.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = make(map[string]*registryEntry)
}
