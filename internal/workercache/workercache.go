// Package workercache implements the ActiveWorkerCache (spec.md §4.3): a
// bounded, keyed get-or-create cache over live *worker.Worker instances
// with single-flight construction, LRU eviction of idle entries, and
// bind-time validation on a hit.
//
// The bounded-map-plus-singleflight shape is grounded on
// internal/pool/pool.go's acquisition path (mined before that package's
// deletion, see DESIGN.md): there it pooled WASM VM instances behind a
// capacity limit; here the same shape pools *worker.Worker instances
// behind an LRU capacity limit, with golang.org/x/sync/singleflight
// replacing the teacher's own hand-rolled wait-group-based dedup.
package workercache

import (
	"container/list"
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/oriys/workerexec/internal/domain"
	"github.com/oriys/workerexec/internal/logging"
	"github.com/oriys/workerexec/internal/worker"
)

// Result is the sum-type answer Peek returns: at most one of Pending or
// Final is non-nil, and both are nil when id is neither resident nor
// under construction (spec.md §4.3 "observe either the final Worker or the
// transient PendingWorker").
type Result struct {
	Pending *worker.PendingWorker
	Final   *worker.Worker
}

type entry struct {
	id     domain.WorkerId
	worker *worker.Worker
	elem   *list.Element
}

// Cache is the ActiveWorkerCache: bounded-LRU, single-flight-guarded.
type Cache struct {
	deps     worker.Deps
	capacity int

	mu      sync.Mutex
	entries map[domain.WorkerId]*entry
	lru     *list.List // front = most recently used

	pendingMu sync.Mutex
	pending   map[domain.WorkerId]*worker.PendingWorker

	group singleflight.Group
}

// New constructs a Cache bounded to capacity live workers (capacity <= 0
// means unbounded).
func New(deps worker.Deps, capacity int) *Cache {
	return &Cache{
		deps:     deps,
		capacity: capacity,
		entries:  make(map[domain.WorkerId]*entry),
		lru:      list.New(),
		pending:  make(map[domain.WorkerId]*worker.PendingWorker),
	}
}

// Peek reports the cache's current knowledge of id without blocking:
// Final if a live worker is already resident, Pending if construction is
// in flight, or a zero Result if neither.
func (c *Cache) Peek(id domain.WorkerId) Result {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		c.mu.Unlock()
		return Result{Final: e.worker}
	}
	c.mu.Unlock()

	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if p, ok := c.pending[id]; ok {
		return Result{Pending: p}
	}
	return Result{}
}

// GetOrCreate returns the live worker for id, constructing it if absent.
// Concurrent calls for the same id share a single construction
// (singleflight); a call that finds an existing live worker performs
// bind-time validation of args/env/version before returning it (spec.md
// §4.3 "Bind-time validation").
func (c *Cache) GetOrCreate(ctx context.Context, id domain.WorkerId, args []string, env []domain.EnvVar, version *uint64, account domain.AccountId) (*worker.Worker, error) {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		c.lru.MoveToFront(e.elem)
		w := e.worker
		c.mu.Unlock()

		if err := worker.ValidateWorker(w.Metadata, args, env, version); err != nil {
			return nil, err
		}
		return w, nil
	}
	c.mu.Unlock()

	key := id.String()
	c.pendingMu.Lock()
	c.pending[id] = worker.NewPendingWorker(id)
	c.pendingMu.Unlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.Lock()
		if e, ok := c.entries[id]; ok {
			c.lru.MoveToFront(e.elem)
			w := e.worker
			c.mu.Unlock()
			return w, nil
		}
		c.mu.Unlock()

		w, err := worker.New(ctx, c.deps, id, args, env, version, account)
		if err != nil {
			return nil, err
		}
		c.insert(id, w)
		return w, nil
	})

	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()

	if err != nil {
		return nil, err
	}
	return v.(*worker.Worker), nil
}

func (c *Cache) insert(id domain.WorkerId, w *worker.Worker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem := c.lru.PushFront(id)
	c.entries[id] = &entry{id: id, worker: w, elem: elem}
	c.evictLocked()
}

// evictLocked drops least-recently-used entries until the cache is back
// within capacity. Must be called with c.mu held.
func (c *Cache) evictLocked() {
	if c.capacity <= 0 {
		return
	}
	for len(c.entries) > c.capacity {
		back := c.lru.Back()
		if back == nil {
			return
		}
		id := back.Value.(domain.WorkerId)
		e := c.entries[back.Value.(domain.WorkerId)]
		c.lru.Remove(back)
		delete(c.entries, id)
		if e != nil {
			// The evicted worker's own in-flight recovery or host calls
			// may still be running; Close only releases the oplog
			// registry slot, not the store, so this does not interrupt
			// them (spec.md §4.3 "an evicted worker's drop may still
			// complete recovery before releasing resources").
			go e.worker.Close()
			logging.Op().Info("workercache: evicted idle worker", "worker", id.String())
		}
	}
}

// Remove drops id from the cache unconditionally (used on DeleteWorker).
func (c *Cache) Remove(id domain.WorkerId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return
	}
	c.lru.Remove(e.elem)
	delete(c.entries, id)
}

// Len reports the number of resident live workers.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot returns the metadata of every currently-resident live worker
// belonging to componentID, read straight from memory with no storage
// round trip. GetRunningWorkersMetadata uses this so that a "Status=Running"
// find-metadata query never touches persistent storage (spec.md §8 "Find
// metadata filter short-circuit").
func (c *Cache) Snapshot(componentID uuid.UUID) []domain.WorkerMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.WorkerMetadata
	for id, e := range c.entries {
		if id.ComponentID != componentID {
			continue
		}
		out = append(out, e.worker.Metadata)
	}
	return out
}
