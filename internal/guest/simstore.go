package guest

import (
	"context"
	"fmt"
	"sync"
)

// Sim is an in-process reference Store. Its constructor shape and
// mutex-guarded field layout are grounded on internal/wasm/manager.go's
// process-lifecycle texture (mined before that package's deletion, since
// its subprocess/TCP transport has no analog once guest execution is
// modeled in-process — see DESIGN.md), not on any subprocess transport.
//
// guard is the Store-level mutex callers take via Lock/Unlock to bracket a
// sequence of operations spec.md §5 requires be atomic to a concurrent
// epoch tick (e.g. the worker's epoch ticker goroutine racing a host
// call). state is a second, always-self-contained mutex protecting field
// access directly; it is intentionally distinct from guard so Sim's own
// methods never need to assume the caller already holds guard, and never
// risk a self-deadlock by re-entering it.
type Sim struct {
	guard sync.Mutex

	state         sync.Mutex
	instantiated  bool
	fuel          uint64
	deadlineTicks uint64
	callback      EpochCallback
	exports       map[string]ExportedFunc
}

// NewSim constructs an un-instantiated simulated store.
func NewSim() *Sim {
	return &Sim{exports: make(map[string]ExportedFunc)}
}

// RegisterExport installs a guest-exported function body for tests.
func (s *Sim) RegisterExport(name string, fn ExportedFunc) {
	s.state.Lock()
	defer s.state.Unlock()
	s.exports[name] = fn
}

func (s *Sim) Instantiate(ctx context.Context) error {
	s.state.Lock()
	defer s.state.Unlock()
	s.instantiated = true
	return nil
}

func (s *Sim) AddFuel(amount uint64) {
	s.state.Lock()
	defer s.state.Unlock()
	s.fuel += amount
}

func (s *Sim) FuelRemaining() uint64 {
	s.state.Lock()
	defer s.state.Unlock()
	return s.fuel
}

func (s *Sim) SetEpochDeadline(ticks uint64) {
	s.state.Lock()
	defer s.state.Unlock()
	s.deadlineTicks = ticks
}

func (s *Sim) SetEpochCallback(cb EpochCallback) {
	s.state.Lock()
	defer s.state.Unlock()
	s.callback = cb
}

// Tick fires the registered callback once deadlineTicks reaches zero. The
// callback itself is responsible for calling SetEpochDeadline again to
// schedule the next check (spec.md §4.3: "schedule the next yield in 1
// epoch tick"); Tick does not re-arm on the callback's behalf.
func (s *Sim) Tick() error {
	s.state.Lock()
	if s.deadlineTicks == 0 {
		s.state.Unlock()
		return nil
	}
	s.deadlineTicks--
	fire := s.deadlineTicks == 0
	cb := s.callback
	s.state.Unlock()

	if !fire || cb == nil {
		return nil
	}
	action, err := cb(s)
	if err != nil {
		return err
	}
	if action == EpochAbort {
		return fmt.Errorf("guest: epoch callback requested abort with no error")
	}
	return nil
}

// CallExported consumes one unit of fuel per invocation (a simplified
// stand-in for real fuel accounting) and runs the registered export body,
// ticking the epoch clock once before and after so interrupt checks can
// land around the call the way spec.md §5's suspension points describe.
func (s *Sim) CallExported(ctx context.Context, name string, params []byte) ([]byte, error) {
	if err := s.Tick(); err != nil {
		return nil, err
	}

	s.state.Lock()
	if s.fuel > 0 {
		s.fuel--
	}
	fn, ok := s.exports[name]
	s.state.Unlock()
	if !ok {
		return nil, fmt.Errorf("guest: no exported function %q", name)
	}

	result, err := fn(ctx, params)
	if err != nil {
		return nil, err
	}
	if tickErr := s.Tick(); tickErr != nil {
		return nil, tickErr
	}
	return result, nil
}

func (s *Sim) Lock()   { s.guard.Lock() }
func (s *Sim) Unlock() { s.guard.Unlock() }

var _ Store = (*Sim)(nil)
