package workerservice

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/workerexec/internal/domain"
	"github.com/oriys/workerexec/internal/guest"
	"github.com/oriys/workerexec/internal/invocationkey"
	"github.com/oriys/workerexec/internal/oplog"
	"github.com/oriys/workerexec/internal/oplogsvc"
	"github.com/oriys/workerexec/internal/promise"
	"github.com/oriys/workerexec/internal/ratelimit"
	"github.com/oriys/workerexec/internal/routing"
	"github.com/oriys/workerexec/internal/storage/blob"
	"github.com/oriys/workerexec/internal/storage/indexed"
	"github.com/oriys/workerexec/internal/worker"
	"github.com/oriys/workerexec/internal/workercache"
)

type fakeComponentSource struct{}

func (fakeComponentSource) Get(ctx context.Context, id uuid.UUID, version uint64) ([]byte, domain.ComponentMetadata, error) {
	return []byte("bytes"), domain.ComponentMetadata{ComponentID: id, Version: version}, nil
}

type testFixture struct {
	svc      *Service
	cache    *workercache.Cache
	metadata *worker.MemoryMetadataStore
}

func newTestFixture(t *testing.T) testFixture {
	t.Helper()
	oplogs := oplogsvc.New(indexed.NewMemoryStorage(), blob.NewMemoryStorage(), oplog.Config{
		MaxOperationsBeforeCommit: 16,
		MaxPayloadSize:            1 << 20,
	})
	t.Cleanup(oplogs.Shutdown)

	metadata := worker.NewMemoryMetadataStore()
	invokeKeys := invocationkey.New()
	promises := promise.New()

	deps := worker.Deps{
		Components: fakeComponentSource{},
		Metadata:   metadata,
		Oplogs:     oplogs,
		InvokeKeys: invokeKeys,
		Accounts:   ratelimit.WorkerAccounts{Registry: ratelimit.NewRegistry()},
		NewStore:   func() guest.Store { return guest.NewSim() },
	}
	cache := workercache.New(deps, 0)

	svc := New(Deps{
		Cache:      cache,
		Metadata:   metadata,
		Oplogs:     oplogs,
		InvokeKeys: invokeKeys,
		Promises:   promises,
		LocalAddr:  "local",
	})
	return testFixture{svc: svc, cache: cache, metadata: metadata}
}

func TestCreateWorker(t *testing.T) {
	f := newTestFixture(t)
	id := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}

	_, gerr := f.svc.CreateWorker(context.Background(), &routing.CreateWorkerRequest{WorkerId: id, Account: "acct-1"})
	if gerr != nil {
		t.Fatalf("CreateWorker failed: %v", gerr.AsError())
	}
	if f.cache.Len() != 1 {
		t.Fatalf("expected the cache to hold the newly created worker, got len %d", f.cache.Len())
	}
}

func TestInvokeAndAwaitWorkerRunsExportAndJournals(t *testing.T) {
	f := newTestFixture(t)
	id := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}

	w, err := f.cache.GetOrCreate(context.Background(), id, nil, nil, nil, "acct-1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	sim, ok := w.Store.(*guest.Sim)
	if !ok {
		t.Fatalf("expected *guest.Sim, got %T", w.Store)
	}
	sim.RegisterExport("echo", func(ctx context.Context, params []byte) ([]byte, error) {
		return params, nil
	})

	resp, gerr := f.svc.InvokeAndAwaitWorker(context.Background(), &routing.InvokeRequest{
		WorkerId:     id,
		Account:      "acct-1",
		FunctionName: "echo",
		Params:       []byte("hello"),
	})
	if gerr != nil {
		t.Fatalf("InvokeAndAwaitWorker failed: %v", gerr.AsError())
	}
	if string(resp.Result) != "hello" {
		t.Fatalf("expected result %q, got %q", "hello", resp.Result)
	}
}

func TestInvokeAndAwaitWorkerPropagatesGuestError(t *testing.T) {
	f := newTestFixture(t)
	id := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}

	w, err := f.cache.GetOrCreate(context.Background(), id, nil, nil, nil, "acct-1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	sim := w.Store.(*guest.Sim)
	sim.RegisterExport("fail", func(ctx context.Context, params []byte) ([]byte, error) {
		return nil, context.DeadlineExceeded
	})

	_, gerr := f.svc.InvokeAndAwaitWorker(context.Background(), &routing.InvokeRequest{
		WorkerId:     id,
		Account:      "acct-1",
		FunctionName: "fail",
	})
	if gerr == nil {
		t.Fatal("expected a GolemError when the guest export returns an error")
	}
}

func TestDeleteWorkerRemovesFromCacheAndMetadata(t *testing.T) {
	f := newTestFixture(t)
	id := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}

	if _, gerr := f.svc.CreateWorker(context.Background(), &routing.CreateWorkerRequest{WorkerId: id, Account: "acct-1"}); gerr != nil {
		t.Fatalf("CreateWorker failed: %v", gerr.AsError())
	}
	if _, gerr := f.svc.DeleteWorker(context.Background(), &routing.WorkerRef{WorkerId: id, Account: "acct-1"}); gerr != nil {
		t.Fatalf("DeleteWorker failed: %v", gerr.AsError())
	}
	if f.cache.Len() != 0 {
		t.Fatalf("expected the cache to be empty after delete, got len %d", f.cache.Len())
	}
	if _, ok, _ := f.metadata.Get(context.Background(), id); ok {
		t.Fatal("expected metadata to be removed after delete")
	}
}

func TestInterruptThenResumeWorker(t *testing.T) {
	f := newTestFixture(t)
	id := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}

	w, err := f.cache.GetOrCreate(context.Background(), id, nil, nil, nil, "acct-1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	w.Status.MarkSuspended()

	if _, gerr := f.svc.InterruptWorker(context.Background(), &routing.InterruptRequest{WorkerId: id, Account: "acct-1"}); gerr != nil {
		t.Fatalf("InterruptWorker failed: %v", gerr.AsError())
	}
	if w.Status.State() != worker.StateInterrupted {
		t.Fatalf("expected worker to be Interrupted, got %v", w.Status.State())
	}

	if _, gerr := f.svc.ResumeWorker(context.Background(), &routing.WorkerRef{WorkerId: id, Account: "acct-1"}); gerr != nil {
		t.Fatalf("ResumeWorker failed: %v", gerr.AsError())
	}
	if w.Status.State() != worker.StateRunning {
		t.Fatalf("expected worker to be Running after resume, got %v", w.Status.State())
	}
}

func TestInterruptUnknownWorkerFails(t *testing.T) {
	f := newTestFixture(t)
	_, gerr := f.svc.InterruptWorker(context.Background(), &routing.InterruptRequest{WorkerId: domain.WorkerId{WorkerName: "missing"}})
	if gerr == nil {
		t.Fatal("expected an error interrupting an unknown worker")
	}
	if gerr.Code != domain.ErrWorkerNotFound {
		t.Fatalf("expected ErrWorkerNotFound, got %v", gerr.Code)
	}
}

func TestGetWorkerMetadataReturnsPersistedMetadata(t *testing.T) {
	f := newTestFixture(t)
	id := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}

	if _, gerr := f.svc.CreateWorker(context.Background(), &routing.CreateWorkerRequest{WorkerId: id, Account: "acct-1"}); gerr != nil {
		t.Fatalf("CreateWorker failed: %v", gerr.AsError())
	}
	resp, gerr := f.svc.GetWorkerMetadata(context.Background(), &routing.WorkerRef{WorkerId: id, Account: "acct-1"})
	if gerr != nil {
		t.Fatalf("GetWorkerMetadata failed: %v", gerr.AsError())
	}
	if resp.Metadata.AccountId != "acct-1" {
		t.Fatalf("expected account acct-1, got %q", resp.Metadata.AccountId)
	}
}

func TestUpdateWorkerAppendsHistory(t *testing.T) {
	f := newTestFixture(t)
	id := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}

	if _, gerr := f.svc.CreateWorker(context.Background(), &routing.CreateWorkerRequest{WorkerId: id, Account: "acct-1"}); gerr != nil {
		t.Fatalf("CreateWorker failed: %v", gerr.AsError())
	}
	if _, gerr := f.svc.UpdateWorker(context.Background(), &routing.UpdateRequest{
		WorkerId:      id,
		Account:       "acct-1",
		Mode:          domain.UpdateModeAutomatic,
		TargetVersion: 2,
	}); gerr != nil {
		t.Fatalf("UpdateWorker failed: %v", gerr.AsError())
	}

	meta, _, err := f.metadata.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(meta.Status.UpdateHistory) != 1 {
		t.Fatalf("expected one update history entry, got %d", len(meta.Status.UpdateHistory))
	}
	if meta.Status.UpdateHistory[0].TargetVersion != 2 {
		t.Fatalf("expected target version 2, got %d", meta.Status.UpdateHistory[0].TargetVersion)
	}
}

func TestGetWorkersMetadataScansByComponent(t *testing.T) {
	f := newTestFixture(t)
	componentID := uuid.New()
	id1 := domain.WorkerId{ComponentID: componentID, WorkerName: "w1"}
	id2 := domain.WorkerId{ComponentID: componentID, WorkerName: "w2"}

	for _, id := range []domain.WorkerId{id1, id2} {
		if _, gerr := f.svc.CreateWorker(context.Background(), &routing.CreateWorkerRequest{WorkerId: id, Account: "acct-1"}); gerr != nil {
			t.Fatalf("CreateWorker(%v) failed: %v", id, gerr.AsError())
		}
	}

	resp, gerr := f.svc.GetWorkersMetadata(context.Background(), &routing.ScanRequest{ComponentID: componentID.String(), Count: 10})
	if gerr != nil {
		t.Fatalf("GetWorkersMetadata failed: %v", gerr.AsError())
	}
	if len(resp.Workers) != 2 {
		t.Fatalf("expected 2 workers scanned for the component, got %d", len(resp.Workers))
	}
}

func TestGetRunningWorkersMetadataReadsCacheNotStorage(t *testing.T) {
	f := newTestFixture(t)
	componentID := uuid.New()
	running := domain.WorkerId{ComponentID: componentID, WorkerName: "running"}

	if _, gerr := f.svc.CreateWorker(context.Background(), &routing.CreateWorkerRequest{WorkerId: running, Account: "acct-1"}); gerr != nil {
		t.Fatalf("CreateWorker failed: %v", gerr.AsError())
	}

	// A worker that only exists in persistent metadata (never resident in
	// the active-worker cache) must not appear in the result: the running
	// query answers purely from memory.
	other := domain.WorkerId{ComponentID: componentID, WorkerName: "not-resident"}
	if err := f.metadata.Add(context.Background(), domain.WorkerMetadata{
		WorkerId:  domain.VersionedWorkerId{WorkerId: other},
		AccountId: "acct-1",
		Status:    domain.NewWorkerStatusRecord(),
	}); err != nil {
		t.Fatalf("metadata.Add failed: %v", err)
	}

	resp, gerr := f.svc.GetRunningWorkersMetadata(context.Background(), &routing.ComponentRef{ComponentID: componentID.String()})
	if gerr != nil {
		t.Fatalf("GetRunningWorkersMetadata failed: %v", gerr.AsError())
	}
	if resp.NextCursor != 0 {
		t.Fatalf("expected a nil (zero) cursor, got %d", resp.NextCursor)
	}
	if len(resp.Workers) != 1 || resp.Workers[0].WorkerId.WorkerId != running {
		t.Fatalf("expected exactly the resident worker %v, got %v", running, resp.Workers)
	}
}

func TestCompletePromiseUnknownIDReturnsNotFound(t *testing.T) {
	f := newTestFixture(t)
	_, gerr := f.svc.CompletePromise(context.Background(), &routing.CompletePromiseRequest{
		PromiseID: "never-created",
		Data:      []byte("payload"),
	})
	if gerr == nil {
		t.Fatal("expected an error completing an unknown promise")
	}
	if gerr.Code != domain.ErrPromiseNotFound {
		t.Fatalf("expected ErrPromiseNotFound, got %v", gerr.Code)
	}
}

func TestCompletePromiseCreatedByInvocation(t *testing.T) {
	f := newTestFixture(t)
	id := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}

	w, err := f.cache.GetOrCreate(context.Background(), id, nil, nil, nil, "acct-1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	sim := w.Store.(*guest.Sim)
	sim.RegisterExport("echo", func(ctx context.Context, params []byte) ([]byte, error) {
		return params, nil
	})

	key := domain.NewInvocationKey()
	if _, gerr := f.svc.InvokeAndAwaitWorker(context.Background(), &routing.InvokeRequest{
		WorkerId:      id,
		Account:       "acct-1",
		FunctionName:  "echo",
		Params:        []byte("hello"),
		InvocationKey: key,
	}); gerr != nil {
		t.Fatalf("InvokeAndAwaitWorker failed: %v", gerr.AsError())
	}

	if _, gerr := f.svc.CompletePromise(context.Background(), &routing.CompletePromiseRequest{
		PromiseID: string(key),
		Data:      []byte("resolved"),
	}); gerr != nil {
		t.Fatalf("CompletePromise failed: %v", gerr.AsError())
	}

	// Completing the promise must not disturb the already-confirmed
	// invocation key: the two tables are independent.
	status := f.svc.deps.InvokeKeys.LookupKey(id, key)
	if status.Status != invocationkey.StatusComplete {
		t.Fatalf("expected the invocation key to remain confirmed complete, got %v", status.Status)
	}
}

func TestCompletePromiseTwiceReturnsAlreadyCompleted(t *testing.T) {
	f := newTestFixture(t)
	id := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}
	f.svc.deps.Promises.Create(id, promise.ID("p1"))

	if _, gerr := f.svc.CompletePromise(context.Background(), &routing.CompletePromiseRequest{PromiseID: "p1"}); gerr != nil {
		t.Fatalf("first CompletePromise failed: %v", gerr.AsError())
	}
	_, gerr := f.svc.CompletePromise(context.Background(), &routing.CompletePromiseRequest{PromiseID: "p1"})
	if gerr == nil {
		t.Fatal("expected an error completing an already-completed promise")
	}
	if gerr.Code != domain.ErrPromiseAlreadyCompleted {
		t.Fatalf("expected ErrPromiseAlreadyCompleted, got %v", gerr.Code)
	}
}

func TestCompletePromiseAfterDeleteReturnsDropped(t *testing.T) {
	f := newTestFixture(t)
	id := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}

	if _, gerr := f.svc.CreateWorker(context.Background(), &routing.CreateWorkerRequest{WorkerId: id, Account: "acct-1"}); gerr != nil {
		t.Fatalf("CreateWorker failed: %v", gerr.AsError())
	}
	f.svc.deps.Promises.Create(id, promise.ID("p1"))

	if _, gerr := f.svc.DeleteWorker(context.Background(), &routing.WorkerRef{WorkerId: id, Account: "acct-1"}); gerr != nil {
		t.Fatalf("DeleteWorker failed: %v", gerr.AsError())
	}

	_, gerr := f.svc.CompletePromise(context.Background(), &routing.CompletePromiseRequest{PromiseID: "p1"})
	if gerr == nil {
		t.Fatal("expected an error completing a promise whose worker was deleted")
	}
	if gerr.Code != domain.ErrPromiseDropped {
		t.Fatalf("expected ErrPromiseDropped, got %v", gerr.Code)
	}
}

var _ = time.Second
