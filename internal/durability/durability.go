// Package durability implements the host-call envelope (spec.md §4.4): the
// single wrapper every non-deterministic host function is invoked under,
// collapsing the source's per-capability trait explosion (clocks, sockets,
// filesystem, CLI) into one HostCall dispatch parameterized by
// WrappedFunctionType.
//
// The wrapper's replay/live branching and its async side-effect shape are
// grounded on internal/executor/executor.go's Invoke pipeline: the same
// call site used uniformly regardless of which capability is being
// wrapped. No circuit-breaker guard sits before the real call.
package durability

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/workerexec/internal/domain"
	"github.com/oriys/workerexec/internal/oplog"
)

// WrappedFunctionType classifies a host call by its durability requirement
// (spec.md §4.4). The enum itself lives in internal/domain since it is
// also a field of OplogEntry; durability only adds the behavior attached
// to it.
type WrappedFunctionType = domain.WrappedFunctionType

const (
	ReadLocal         = domain.ReadLocal
	WriteLocal        = domain.WriteLocal
	ReadRemote        = domain.ReadRemote
	WriteRemote       = domain.WriteRemote
	ReadRemoteBatched = domain.ReadRemoteBatched
)

func forcesCommit(t WrappedFunctionType) bool {
	return t == WriteRemote
}

// Mode is the execution phase a Wrapper is operating in.
type Mode int

const (
	// Live calls the real host function and journals its outcome.
	Live Mode = iota
	// Replay returns journalled outcomes without calling the real host.
	Replay
)

// HostCall is the collapsed representation of any wrapped host function:
// a name identifying the call site and its serialized arguments, used only
// for the oplog record and for replay mismatch diagnostics.
type HostCall struct {
	Name string
	Args []byte
}

// Invoker performs the real, non-deterministic host call when operating in
// live mode. Implementations wrap clock reads, socket I/O, RPC calls, and
// promise resolutions; the wrapper itself never knows which.
type Invoker func(ctx context.Context, call HostCall) (domain.OplogPayload, error)

// ErrReplayMismatch is returned when a replay expects an ImportedFunctionInvoked
// entry that is absent or does not match the call site being replayed.
type ErrReplayMismatch struct {
	Worker domain.WorkerId
	Index  domain.OplogIndex
	Call   string
}

func (e *ErrReplayMismatch) Error() string {
	return fmt.Sprintf("durability: replay mismatch for %s at index %d calling %s", e.Worker, e.Index, e.Call)
}

// Wrapper implements the host-call envelope for a single worker. It holds
// no state of its own beyond the worker's Oplog and current Mode; the
// worker lifecycle (internal/worker) owns the transition from Replay to
// Live once recovery exhausts the journal.
type Wrapper struct {
	worker domain.WorkerId
	log    *oplog.Oplog

	mode    Mode
	nextIdx domain.OplogIndex // next oplog index the replay cursor expects
}

// NewWrapper constructs a Wrapper in Live mode. Callers driving recovery
// should construct in Replay mode via NewReplayWrapper instead and call
// SwitchToLive once the journal is exhausted.
func NewWrapper(worker domain.WorkerId, log *oplog.Oplog) *Wrapper {
	return &Wrapper{worker: worker, log: log, mode: Live}
}

// NewReplayWrapper constructs a Wrapper that starts replaying from
// resumeFrom (spec.md §4.3 step 6, §4.1 "Recovery / replay").
func NewReplayWrapper(worker domain.WorkerId, log *oplog.Oplog, resumeFrom domain.OplogIndex) *Wrapper {
	return &Wrapper{worker: worker, log: log, mode: Replay, nextIdx: resumeFrom}
}

// Mode reports the wrapper's current execution phase.
func (w *Wrapper) Mode() Mode { return w.mode }

// SwitchToLive transitions the wrapper out of replay once the journal is
// exhausted ("replay is live from the first entry the context cannot
// re-synthesize", spec.md §4.3).
func (w *Wrapper) SwitchToLive() { w.mode = Live }

// Call executes call under fnType's durability requirement, dispatching to
// the real host via invoke only in live mode. On success it returns the
// outcome payload the guest should observe — either freshly produced or
// replayed verbatim from the journal.
func (w *Wrapper) Call(ctx context.Context, fnType WrappedFunctionType, call HostCall, invoke Invoker) (domain.OplogPayload, error) {
	if w.mode == Replay {
		return w.replayNext(ctx, call)
	}
	return w.callLive(ctx, fnType, call, invoke)
}

func (w *Wrapper) replayNext(ctx context.Context, call HostCall) (domain.OplogPayload, error) {
	idx := w.nextIdx
	entry, err := w.log.Read(ctx, idx)
	if err != nil {
		return domain.OplogPayload{}, &ErrReplayMismatch{Worker: w.worker, Index: idx, Call: call.Name}
	}
	if entry.Kind != domain.EntryImportedFunctionInvoked || entry.ImportedFunctionName != call.Name {
		return domain.OplogPayload{}, &ErrReplayMismatch{Worker: w.worker, Index: idx, Call: call.Name}
	}
	w.nextIdx = idx.Next()
	if entry.ErrorMessage != "" {
		return domain.OplogPayload{}, fmt.Errorf("durability: replayed error for %s: %s", call.Name, entry.ErrorMessage)
	}
	return entry.ImportedResult, nil
}

func (w *Wrapper) callLive(ctx context.Context, fnType WrappedFunctionType, call HostCall, invoke Invoker) (domain.OplogPayload, error) {
	outcome, callErr := invoke(ctx, call)

	entry := domain.OplogEntry{
		Kind:                 domain.EntryImportedFunctionInvoked,
		Timestamp:            time.Now(),
		ImportedFunctionName: call.Name,
		WrappedType:          fnType,
	}
	if callErr != nil {
		entry.ErrorMessage = callErr.Error()
	} else {
		entry.ImportedResult = outcome
	}

	if err := w.log.Add(ctx, entry); err != nil {
		return domain.OplogPayload{}, fmt.Errorf("durability: journal host call %s: %w", call.Name, err)
	}
	if forcesCommit(fnType) {
		if err := w.log.Commit(ctx); err != nil {
			return domain.OplogPayload{}, fmt.Errorf("durability: commit after %s: %w", call.Name, err)
		}
	}
	if callErr != nil {
		return domain.OplogPayload{}, callErr
	}
	return outcome, nil
}
