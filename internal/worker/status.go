package worker

import (
	"sync"

	"github.com/oriys/workerexec/internal/domain"
)

// State is the in-memory execution phase of a live Worker (spec.md §4.7),
// distinct from the durable domain.WorkerStatus persisted in metadata.
type State int

const (
	StateRunning State = iota
	StateSuspended
	StateInterrupting
	StateInterrupted
)

// ExecutionStatus is the interrupt state machine spec.md §4.3/§4.7
// describes. It is shared between the worker's own goroutine and any
// caller requesting interruption, guarded by its own mutex independent of
// the guest store's.
//
// SetInterrupting's broadcast-on-close channel is the Go idiom for the
// original's tokio::sync::broadcast::Receiver<()>: every caller that asked
// to be notified gets the same channel, and closing it wakes all of them
// at once instead of requiring a subscribe-per-call handshake.
type ExecutionStatus struct {
	mu            sync.Mutex
	state         State
	interruptKind domain.InterruptKind
	awaitCh       chan struct{}
}

// NewExecutionStatus starts a worker in the Suspended phase, matching the
// original's `ExecutionStatus::Suspended` default before activation.
func NewExecutionStatus() *ExecutionStatus {
	return &ExecutionStatus{state: StateSuspended}
}

// MarkRunning transitions to Running, called once creation/recovery
// completes and the worker is ready to accept invocations.
func (s *ExecutionStatus) MarkRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateRunning
}

// MarkSuspended transitions to Suspended (a Suspend oplog entry was
// journalled).
func (s *ExecutionStatus) MarkSuspended() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateSuspended
}

// State reports the current phase.
func (s *ExecutionStatus) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetInterrupting requests interruption with kind, returning a channel
// that closes once the interruption actually lands (nil if it already has,
// or already will with no further signal needed).
//
//   - Running -> Interrupting: a fresh channel is armed and returned.
//   - Suspended -> Interrupted immediately (no in-flight guest call to
//     wait for); returns nil.
//   - Interrupting already in progress: returns the same channel already
//     armed for this interruption.
//   - Interrupted already: returns nil.
func (s *ExecutionStatus) SetInterrupting(kind domain.InterruptKind) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateRunning:
		s.state = StateInterrupting
		s.interruptKind = kind
		s.awaitCh = make(chan struct{})
		return s.awaitCh
	case StateSuspended:
		s.state = StateInterrupted
		s.interruptKind = kind
		return nil
	case StateInterrupting:
		return s.awaitCh
	default: // StateInterrupted
		return nil
	}
}

// CheckInterrupt is polled by the epoch callback (spec.md §4.3 step 4b).
// It reports the pending interrupt kind if one is in progress.
func (s *ExecutionStatus) CheckInterrupt() (domain.InterruptKind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateInterrupting {
		return s.interruptKind, true
	}
	return "", false
}

// ConfirmInterrupted finalizes a pending interruption once the epoch
// callback has aborted guest execution, closing the broadcast channel so
// every caller waiting on SetInterrupting's result wakes up.
func (s *ExecutionStatus) ConfirmInterrupted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInterrupting {
		return
	}
	s.state = StateInterrupted
	if s.awaitCh != nil {
		close(s.awaitCh)
		s.awaitCh = nil
	}
}

// Resume transitions out of Interrupted back to Running, used both by
// interrupt(recover_immediately=true)'s inline restart and by an explicit
// resume call on a worker left Interrupted (spec.md §4.7, §8 scenario 4).
func (s *ExecutionStatus) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateInterrupted {
		s.state = StateRunning
	}
}
