// Package invocationkey implements the InvocationKeyService (spec.md
// §4.6): an in-process directory mapping an opaque invocation key to the
// result of the guest call it was bound to, so a second client can await
// completion of an invocation it did not itself start.
//
// The registry shape — an RWMutex-guarded map with Save/Load/Delete
// methods — is grounded on internal/checkpoint/store.go, minus its TTL
// sweep: invocation keys expire only with the worker's lifetime, never on
// a timer (spec.md §4.6 "keys are not TTL'd").
package invocationkey

import (
	"sync"

	"github.com/oriys/workerexec/internal/domain"
)

// Result is the outcome recorded against a confirmed invocation key.
type Result struct {
	Payload domain.OplogPayload
	Err     error
}

// LookupStatus discriminates the four states lookup_key can report: the
// three of spec.md §4.6 plus StatusUnknown for a key never registered.
type LookupStatus int

const (
	// StatusUnknown means the key was never registered pending for this
	// worker.
	StatusUnknown LookupStatus = iota
	// StatusPending means the invocation has been enqueued but has not
	// completed or been interrupted.
	StatusPending
	// StatusComplete means the invocation finished and Result is valid.
	StatusComplete
	// StatusInterrupted means the invocation was interrupted before
	// completing.
	StatusInterrupted
)

// LookupResult is the answer lookup_key returns.
type LookupResult struct {
	Status LookupStatus
	Result Result
}

type pendingKey struct {
	worker domain.WorkerId
	key    domain.InvocationKey
}

// Service maintains the pending and confirmed tables for invocation keys
// across all workers in this process.
type Service struct {
	mu        sync.RWMutex
	pending   map[pendingKey]struct{}
	confirmed map[pendingKey]Result
	// interrupted tracks keys whose owning worker was interrupted while
	// the invocation was in flight, distinct from a confirmed result.
	interrupted map[pendingKey]struct{}
}

// New constructs an empty Service.
func New() *Service {
	return &Service{
		pending:     make(map[pendingKey]struct{}),
		confirmed:   make(map[pendingKey]Result),
		interrupted: make(map[pendingKey]struct{}),
	}
}

// EnqueuePending registers key as pending for worker. Called when an
// ExportedFunctionInvoked entry carrying this key is journalled
// (spec.md §4.7).
func (s *Service) EnqueuePending(worker domain.WorkerId, key domain.InvocationKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[pendingKey{worker, key}] = struct{}{}
}

// Complete moves key from pending to confirmed with result. Safe to call
// even if key was never enqueued pending (e.g. a replayed completion).
func (s *Service) Complete(worker domain.WorkerId, key domain.InvocationKey, result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk := pendingKey{worker, key}
	delete(s.pending, pk)
	delete(s.interrupted, pk)
	s.confirmed[pk] = result
}

// Interrupt marks key as interrupted for worker, removing it from pending
// without recording a confirmed result.
func (s *Service) Interrupt(worker domain.WorkerId, key domain.InvocationKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk := pendingKey{worker, key}
	delete(s.pending, pk)
	s.interrupted[pk] = struct{}{}
}

// LookupKey reports the current status of key for worker.
func (s *Service) LookupKey(worker domain.WorkerId, key domain.InvocationKey) LookupResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pk := pendingKey{worker, key}

	if result, ok := s.confirmed[pk]; ok {
		return LookupResult{Status: StatusComplete, Result: result}
	}
	if _, ok := s.interrupted[pk]; ok {
		return LookupResult{Status: StatusInterrupted}
	}
	if _, ok := s.pending[pk]; ok {
		return LookupResult{Status: StatusPending}
	}
	return LookupResult{Status: StatusUnknown}
}

// DropWorker removes every pending/confirmed/interrupted entry belonging
// to worker, called when the worker is torn down for good (not merely
// interrupted) so its keys do not leak for the life of the process.
func (s *Service) DropWorker(worker domain.WorkerId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pk := range s.pending {
		if pk.worker == worker {
			delete(s.pending, pk)
		}
	}
	for pk := range s.confirmed {
		if pk.worker == worker {
			delete(s.confirmed, pk)
		}
	}
	for pk := range s.interrupted {
		if pk.worker == worker {
			delete(s.interrupted, pk)
		}
	}
}

// PendingCount and ConfirmedCount expose registry sizes for metrics
// (spec.md §4.6 "Counters are exposed for pending/confirmed sizes").
func (s *Service) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

func (s *Service) ConfirmedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.confirmed)
}
