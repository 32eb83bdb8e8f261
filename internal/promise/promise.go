// Package promise implements the PromiseService: a per-worker directory of
// promises a caller creates and a later, independent completer resolves,
// distinct from internal/invocationkey's await-an-invocation directory
// (spec.md §4 models promise and invocation-key as two separate
// host-context services; §7's PromiseNotFound/PromiseDropped/
// PromiseAlreadyCompleted taxonomy applies only to this table).
//
// The shape — an RWMutex-guarded map with Create/Complete/DropForWorker —
// mirrors internal/invocationkey.Service's own pending/confirmed registry,
// but keeps a genuinely separate table: completing a promise answers "was
// this promise resolved", not "did this invocation finish", and the two
// can disagree (a promise may be completed by a third party before the
// invocation that created it ever returns).
package promise

import (
	"sync"

	"github.com/oriys/workerexec/internal/domain"
)

// ID identifies a promise, unique across the whole process (mirroring the
// original's globally-unique PromiseId, which already encodes its owning
// worker; CompletePromiseRequest therefore carries only an ID).
type ID string

type state int

const (
	statePending state = iota
	stateCompleted
	stateDropped
)

type entry struct {
	worker domain.WorkerId
	state  state
	data   []byte
}

// Service maintains the promise table for every worker in this process.
type Service struct {
	mu      sync.Mutex
	entries map[ID]*entry
}

// New constructs an empty Service.
func New() *Service {
	return &Service{entries: make(map[ID]*entry)}
}

// Create registers a new pending promise owned by worker. Called when an
// invocation begins, since every invocation in this runtime can be
// externally completed through its own promise the way the original's
// create_promise host call mints one per pending host operation.
func (s *Service) Create(worker domain.WorkerId, id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = &entry{worker: worker, state: statePending}
}

// Complete resolves id with data, returning the owning WorkerId on success.
// Returns PromiseNotFound if id was never created, PromiseDropped if its
// owning worker was deleted before completion, PromiseAlreadyCompleted if
// a previous Complete already resolved it.
func (s *Service) Complete(id ID, data []byte) (domain.WorkerId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return domain.WorkerId{}, domain.NewPromiseNotFound(domain.WorkerId{}, string(id))
	}
	switch e.state {
	case stateDropped:
		return e.worker, domain.NewPromiseDropped(e.worker, string(id))
	case stateCompleted:
		return e.worker, domain.NewPromiseAlreadyCompleted(e.worker, string(id))
	}
	e.state = stateCompleted
	e.data = data
	return e.worker, nil
}

// Lookup reports whether id has been completed and, if so, its data.
func (s *Service) Lookup(id ID) (data []byte, completed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.state != stateCompleted {
		return nil, false
	}
	return e.data, true
}

// DropForWorker marks every promise owned by worker as dropped rather than
// deleting it outright, so a completion attempt that arrives after the
// worker is torn down reports PromiseDropped instead of resurrecting a
// stale id as PromiseNotFound.
func (s *Service) DropForWorker(worker domain.WorkerId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.worker == worker && e.state == statePending {
			e.state = stateDropped
		}
	}
}

// PendingCount reports how many promises are still pending, for
// metrics/tests.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.state == statePending {
			n++
		}
	}
	return n
}
