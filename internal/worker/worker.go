// Package worker implements the Worker lifecycle (spec.md §4.3):
// instantiation, the fuel/epoch preemption callback, the interrupt state
// machine, bind-time validation on rebind, and recovery replay.
//
// Creation's step ordering (resolve component, persist metadata, create
// the oplog, allocate a guest store with an epoch callback, add and borrow
// fuel, instantiate) follows original_source's worker.rs Worker::new. New
// replays nothing; Reopen puts the durability wrapper in replay mode and
// leaves driving the replay to its caller. The epoch callback's fuel-then-interrupt check order and
// validate_worker's accumulate-all-mismatches-then-join behavior are
// carried over unchanged into Go idiom (a []string joined with "\n").
package worker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/workerexec/internal/domain"
	"github.com/oriys/workerexec/internal/durability"
	"github.com/oriys/workerexec/internal/guest"
	"github.com/oriys/workerexec/internal/invocationkey"
	"github.com/oriys/workerexec/internal/logging"
	"github.com/oriys/workerexec/internal/oplogsvc"
)

// ComponentSource resolves a component's bytes and metadata for worker
// creation (spec.md §3 DATA MODEL supplement). internal/codeloader.FSSource
// is the filesystem-backed implementation.
type ComponentSource interface {
	Get(ctx context.Context, id uuid.UUID, version uint64) ([]byte, domain.ComponentMetadata, error)
}

// FuelAccount is the per-account fuel budget the epoch callback borrows
// against (spec.md §4.3 step 4a). internal/ratelimit.Account implements it.
type FuelAccount interface {
	BorrowFuel(amount uint64) uint64
	BorrowFuelSync(amount uint64, timeout time.Duration) uint64
}

// Accounts resolves a FuelAccount by AccountId (internal/ratelimit.WorkerAccounts
// wraps a *ratelimit.Registry to implement it).
type Accounts interface {
	Account(id domain.AccountId) FuelAccount
}

// borrowSyncTimeout bounds how long the epoch callback waits for the
// account's budget to refill before giving up and surfacing OutOfFuel.
const borrowSyncTimeout = 2 * time.Second

// initialFuelGrant mirrors the original's `i64::MAX as u64`: as much fuel
// as the store's epoch accounting can represent as a budget, since actual
// consumption is metered per exported call rather than up front.
const initialFuelGrant = uint64(math.MaxInt64)

// Deps bundles the collaborators New needs to construct a worker. All
// fields are required.
type Deps struct {
	Components   ComponentSource
	Metadata     MetadataStore
	Oplogs       *oplogsvc.Service
	InvokeKeys   *invocationkey.Service
	Accounts     Accounts
	NewStore     func() guest.Store
}

// Worker is a single, currently-instantiated worker. It is owned by the
// ActiveWorkerCache that constructed it (internal/workercache) and by
// anything holding its oplog Handle; both must be released on teardown.
type Worker struct {
	Metadata domain.WorkerMetadata
	Store    guest.Store
	Status   *ExecutionStatus

	durability *durability.Wrapper
	oplog      *oplogsvc.Handle
	invokeKeys *invocationkey.Service
	account    FuelAccount
}

// PendingWorker is the transient handle concurrent get_or_create callers
// observe while construction is in flight (spec.md §4.3 "Active-worker
// cache"). It carries nothing beyond identity and a start time since this
// implementation has no separate event-stream service to expose early;
// ActiveWorkerCache still uses it as the "pending" arm of its result.
type PendingWorker struct {
	WorkerId domain.WorkerId
	Started  time.Time
}

func NewPendingWorker(id domain.WorkerId) *PendingWorker {
	return &PendingWorker{WorkerId: id, Started: time.Now()}
}

// New constructs and activates a worker (spec.md §4.3 steps 1-6).
// version nil resolves to version 0, which ComponentSource implementations
// are expected to treat as "latest" (the component registry enforces that
// policy; this package only forwards the value).
func New(ctx context.Context, deps Deps, id domain.WorkerId, args []string, env []domain.EnvVar, version *uint64, account domain.AccountId) (*Worker, error) {
	var resolvedVersion uint64
	if version != nil {
		resolvedVersion = *version
	}

	_, componentMeta, err := deps.Components.Get(ctx, id.ComponentID, resolvedVersion)
	if err != nil {
		return nil, domain.NewWorkerCreationFailed(id, fmt.Sprintf("resolve component: %v", err))
	}

	meta := domain.WorkerMetadata{
		WorkerId:  domain.VersionedWorkerId{WorkerId: id, ComponentVersion: componentMeta.Version},
		Args:      args,
		Env:       env,
		AccountId: account,
		Status:    domain.NewWorkerStatusRecord(),
		CreatedAt: time.Now(),
		Resources: domain.ResourceAccounting{ComponentSizeBytes: componentMeta.SizeBytes},
	}
	if err := deps.Metadata.Add(ctx, meta); err != nil {
		return nil, domain.NewWorkerCreationFailed(id, fmt.Sprintf("persist metadata: %v", err))
	}

	handle, err := deps.Oplogs.Create(ctx, account, id, domain.OplogEntry{
		Kind:            domain.EntryCreate,
		Timestamp:       time.Now(),
		CreateArgs:      args,
		CreateEnv:       env,
		CreateComponent: meta.WorkerId,
		CreateAccount:   account,
	})
	if err != nil {
		return nil, domain.NewWorkerCreationFailed(id, fmt.Sprintf("create oplog: %v", err))
	}

	status := NewExecutionStatus()
	fuelAccount := deps.Accounts.Account(account)
	store := deps.NewStore()

	store.SetEpochDeadline(1)
	store.SetEpochCallback(epochCallback(status, fuelAccount))

	store.AddFuel(initialFuelGrant)
	fuelAccount.BorrowFuelSync(1, borrowSyncTimeout)

	if err := store.Instantiate(ctx); err != nil {
		handle.Close()
		return nil, domain.NewWorkerCreationFailed(id, fmt.Sprintf("instantiate: %v", err))
	}

	w := &Worker{
		Metadata:   meta,
		Store:      store,
		Status:     status,
		durability: durability.NewWrapper(id, handle.Oplog),
		oplog:      handle,
		invokeKeys: deps.InvokeKeys,
		account:    fuelAccount,
	}

	status.MarkRunning()
	logging.Op().Info("worker activated", "worker", id.String(), "version", meta.WorkerId.ComponentVersion)
	return w, nil
}

// epochCallback implements spec.md §4.3 step 4: borrow more fuel if
// exhausted, then check for a pending interrupt, in that order.
func epochCallback(status *ExecutionStatus, account FuelAccount) guest.EpochCallback {
	return func(s guest.Store) (guest.EpochAction, error) {
		if s.FuelRemaining() == 0 {
			granted := account.BorrowFuelSync(1, borrowSyncTimeout)
			if granted > 0 {
				s.AddFuel(granted)
			}
		}

		if kind, interrupting := status.CheckInterrupt(); interrupting {
			status.ConfirmInterrupted()
			return guest.EpochAbort, domain.NewInterrupted(kind)
		}

		s.SetEpochDeadline(1)
		return guest.EpochContinue, nil
	}
}

// Close releases the worker's oplog handle. It does not tear down the
// guest store; callers that also own the store lifecycle must close it
// themselves (guest.Store has no Close of its own, see internal/guest).
func (w *Worker) Close() {
	w.oplog.Close()
}

// Durability returns the worker's host-call wrapper, the single
// integration point every non-deterministic host call must go through
// (spec.md §4.4).
func (w *Worker) Durability() *durability.Wrapper {
	return w.durability
}

// InvokeKeys exposes the shared invocation-key directory so callers can
// register and look up keys for this worker's exported calls.
func (w *Worker) InvokeKeys() *invocationkey.Service {
	return w.invokeKeys
}

// Oplog exposes the worker's own journal handle so callers (internal/workerservice's
// invoke/interrupt/update paths) can append entries and commit directly,
// without this package having to expose the oplog field itself.
func (w *Worker) Oplog() *oplogsvc.Handle {
	return w.oplog
}

// Reopen reconstructs a worker over an already-existing oplog, starting
// its durability wrapper in Replay mode at the first oplog entry; the
// caller switches it to Live once recovery exhausts the journal
// (spec.md §4.1 "Recovery / replay is live from the first entry the
// context cannot re-synthesize", §4.3 step 6 "prepare_instance hooks,
// typically a recovery replay").
//
// Reopen does not itself drive replay of ExportedFunctionInvoked entries
// against the guest: that is the caller's job (invoking the same exported
// functions again so the durability wrapper can intercept each host call
// and return journalled results instead of live ones). Reopen only
// arranges for the wrapper to be in the correct mode and position when
// that driving begins.
func Reopen(ctx context.Context, deps Deps, id domain.WorkerId, account domain.AccountId) (*Worker, error) {
	meta, ok, err := deps.Metadata.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("worker: reopen %s: read metadata: %w", id, err)
	}
	if !ok {
		return nil, domain.NewWorkerNotFound(id)
	}

	handle, err := deps.Oplogs.Open(ctx, account, id)
	if err != nil {
		return nil, fmt.Errorf("worker: reopen %s: open oplog: %w", id, err)
	}

	status := NewExecutionStatus()
	fuelAccount := deps.Accounts.Account(account)
	store := deps.NewStore()
	store.SetEpochDeadline(1)
	store.SetEpochCallback(epochCallback(status, fuelAccount))
	store.AddFuel(initialFuelGrant)

	if err := store.Instantiate(ctx); err != nil {
		handle.Close()
		return nil, domain.NewWorkerCreationFailed(id, fmt.Sprintf("instantiate on reopen: %v", err))
	}

	// Replay starts at the first oplog entry; the durability wrapper walks
	// forward from there and the caller switches it to Live once it has
	// consumed every entry up to CurrentIndex (spec.md §4.1 "Recovery /
	// replay").
	const firstOplogIndex = domain.OplogIndex(1)
	w := &Worker{
		Metadata:   meta,
		Store:      store,
		Status:     status,
		durability: durability.NewReplayWrapper(id, handle.Oplog, firstOplogIndex),
		oplog:      handle,
		invokeKeys: deps.InvokeKeys,
		account:    fuelAccount,
	}

	status.MarkRunning()
	logging.Op().Info("worker reopened for recovery", "worker", id.String(), "resume_to", handle.CurrentIndex())
	return w, nil
}

// ValidateWorker checks that args, env, and (if provided) version match an
// existing worker's stored metadata, collecting every mismatch rather than
// failing fast on the first one, matching original_source's
// validate_worker exactly. internal/workercache calls this on every
// get_or_create cache hit (spec.md §4.3 "Bind-time validation").
func ValidateWorker(meta domain.WorkerMetadata, args []string, env []domain.EnvVar, version *uint64) error {
	var errs []string
	if !domain.StringSliceEqual(meta.Args, args) {
		errs = append(errs, fmt.Sprintf("Worker is already running with different args: %v != %v", meta.Args, args))
	}
	if !domain.EnvEqual(meta.Env, env) {
		errs = append(errs, fmt.Sprintf("Worker is already running with different env: %v != %v", meta.Env, env))
	}
	if version != nil && meta.WorkerId.ComponentVersion != *version {
		errs = append(errs, fmt.Sprintf("Worker is already running with different component version: %d != %d", meta.WorkerId.ComponentVersion, *version))
	}
	if len(errs) == 0 {
		return nil
	}
	return domain.NewWorkerCreationFailed(meta.WorkerId.WorkerId, strings.Join(errs, "\n"))
}
