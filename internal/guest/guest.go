// Package guest models the WASM guest-execution surface the Worker
// lifecycle (spec.md §4.3) drives: instantiation, fuel metering, and the
// epoch-based preemption callback used to deliver interrupts and re-check
// fuel without suspending inside guest code (spec.md §5 "Suspension
// points": "the epoch callback only returns control via errors, never
// suspends inside guest code").
//
// No real WASM engine dependency (wasmtime-go, wazero) exists anywhere in
// the retrieved example pack, and spec.md §1 marks "WASM compilation
// strategy" an explicit non-goal. Store is therefore the exact boundary
// the durability layer and worker lifecycle are specified against; Sim, in
// simstore.go, is a reference in-process implementation that exercises the
// fuel/epoch/interrupt contract without fabricating a module dependency
// (see DESIGN.md).
package guest

import "context"

// EpochAction is returned by an EpochCallback to tell the store whether to
// keep running or to abort the current guest call.
type EpochAction int

const (
	// EpochContinue lets guest execution proceed; the callback is
	// responsible for scheduling its own next deadline via
	// Store.SetEpochDeadline before returning this.
	EpochContinue EpochAction = iota
	// EpochAbort aborts the in-flight guest call; Tick returns the error
	// the callback produced (e.g. domain.ErrInterrupted or OutOfFuel).
	EpochAbort
)

// EpochCallback is invoked each time the store's epoch deadline elapses.
// Implementations mirror spec.md §4.3 step 4: first check fuel (borrowing
// more from the account budget if exhausted), then check ExecutionStatus
// for a pending interrupt.
type EpochCallback func(s Store) (EpochAction, error)

// ExportedFunc is a guest-exported function body, registered on a Store so
// tests and the durability wrapper can drive CallExported without a real
// component.
type ExportedFunc func(ctx context.Context, params []byte) ([]byte, error)

// Store is the per-worker WASM store abstraction. Spec.md §3 "Ownership":
// exclusively owned by the worker instance and guarded by a mutex because
// epoch callbacks, fuel bookkeeping, and host calls all mutate it; callers
// must Lock/Unlock around any sequence of operations that must appear
// atomic to a concurrent epoch tick.
type Store interface {
	// Instantiate pre-instantiates then asynchronously instantiates the
	// component. Safe to call only once.
	Instantiate(ctx context.Context) error

	// AddFuel adds amount to the store's fuel budget (spec.md step 5,
	// "Add maximum fuel").
	AddFuel(amount uint64)

	// FuelRemaining returns the fuel left before the next epoch check
	// would observe exhaustion.
	FuelRemaining() uint64

	// SetEpochDeadline schedules the epoch callback to fire after ticks
	// more calls to Tick.
	SetEpochDeadline(ticks uint64)

	// SetEpochCallback registers the callback invoked when the epoch
	// deadline elapses.
	SetEpochCallback(cb EpochCallback)

	// Tick advances the store's epoch clock by one tick, firing the
	// registered callback if the deadline has elapsed. Returns the
	// callback's error when it aborts guest execution.
	Tick() error

	// CallExported invokes a guest-exported function by name, simulating
	// the synchronous-on-this-task execution spec.md §5 describes.
	CallExported(ctx context.Context, name string, params []byte) ([]byte, error)

	// Lock/Unlock guard the store's exclusive access (spec.md §5).
	Lock()
	Unlock()
}
