package workercache

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/oriys/workerexec/internal/domain"
	"github.com/oriys/workerexec/internal/guest"
	"github.com/oriys/workerexec/internal/invocationkey"
	"github.com/oriys/workerexec/internal/oplog"
	"github.com/oriys/workerexec/internal/oplogsvc"
	"github.com/oriys/workerexec/internal/ratelimit"
	"github.com/oriys/workerexec/internal/storage/blob"
	"github.com/oriys/workerexec/internal/storage/indexed"
	"github.com/oriys/workerexec/internal/worker"
)

type fakeComponentSource struct{}

func (fakeComponentSource) Get(ctx context.Context, id uuid.UUID, version uint64) ([]byte, domain.ComponentMetadata, error) {
	return []byte("bytes"), domain.ComponentMetadata{ComponentID: id, Version: version}, nil
}

func newTestDeps(t *testing.T) worker.Deps {
	t.Helper()
	oplogs := oplogsvc.New(indexed.NewMemoryStorage(), blob.NewMemoryStorage(), oplog.Config{
		MaxOperationsBeforeCommit: 16,
		MaxPayloadSize:            1 << 20,
	})
	t.Cleanup(oplogs.Shutdown)

	return worker.Deps{
		Components: fakeComponentSource{},
		Metadata:   worker.NewMemoryMetadataStore(),
		Oplogs:     oplogs,
		InvokeKeys: invocationkey.New(),
		Accounts:   ratelimit.WorkerAccounts{Registry: ratelimit.NewRegistry()},
		NewStore:   func() guest.Store { return guest.NewSim() },
	}
}

func TestGetOrCreateConstructsOnFirstCall(t *testing.T) {
	c := New(newTestDeps(t), 0)
	id := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}

	w, err := c.GetOrCreate(context.Background(), id, nil, nil, nil, "acct-1")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if w == nil {
		t.Fatal("expected a non-nil worker")
	}
	if c.Len() != 1 {
		t.Fatalf("expected cache length 1, got %d", c.Len())
	}
}

func TestGetOrCreateReturnsSameWorkerOnSecondCall(t *testing.T) {
	c := New(newTestDeps(t), 0)
	id := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}

	w1, err := c.GetOrCreate(context.Background(), id, nil, nil, nil, "acct-1")
	if err != nil {
		t.Fatalf("first GetOrCreate failed: %v", err)
	}
	w2, err := c.GetOrCreate(context.Background(), id, nil, nil, nil, "acct-1")
	if err != nil {
		t.Fatalf("second GetOrCreate failed: %v", err)
	}
	if w1 != w2 {
		t.Fatal("expected the same worker instance on a cache hit")
	}
}

func TestGetOrCreateFailsBindTimeValidationOnMismatch(t *testing.T) {
	c := New(newTestDeps(t), 0)
	id := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}

	if _, err := c.GetOrCreate(context.Background(), id, []string{"a"}, nil, nil, "acct-1"); err != nil {
		t.Fatalf("initial GetOrCreate failed: %v", err)
	}
	if _, err := c.GetOrCreate(context.Background(), id, []string{"different"}, nil, nil, "acct-1"); err == nil {
		t.Fatal("expected bind-time validation to reject mismatched args")
	}
}

func TestGetOrCreateDedupsConcurrentConstruction(t *testing.T) {
	c := New(newTestDeps(t), 0)
	id := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}

	const n = 8
	results := make([]*worker.Worker, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			w, err := c.GetOrCreate(context.Background(), id, nil, nil, nil, "acct-1")
			if err != nil {
				t.Errorf("GetOrCreate failed: %v", err)
				return
			}
			results[i] = w
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatal("expected every concurrent caller to observe the same constructed worker")
		}
	}
	if c.Len() != 1 {
		t.Fatalf("expected exactly one cache entry after dedup, got %d", c.Len())
	}
}

func TestEvictionRespectsCapacity(t *testing.T) {
	c := New(newTestDeps(t), 2)
	for i := 0; i < 3; i++ {
		id := domain.WorkerId{ComponentID: uuid.New(), WorkerName: string(rune('a' + i))}
		if _, err := c.GetOrCreate(context.Background(), id, nil, nil, nil, "acct-1"); err != nil {
			t.Fatalf("GetOrCreate %d failed: %v", i, err)
		}
	}
	if c.Len() != 2 {
		t.Fatalf("expected capacity-bounded length 2, got %d", c.Len())
	}
}

func TestRemoveDropsEntry(t *testing.T) {
	c := New(newTestDeps(t), 0)
	id := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}
	if _, err := c.GetOrCreate(context.Background(), id, nil, nil, nil, "acct-1"); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	c.Remove(id)
	if c.Len() != 0 {
		t.Fatalf("expected cache length 0 after Remove, got %d", c.Len())
	}
	if res := c.Peek(id); res.Final != nil || res.Pending != nil {
		t.Fatalf("expected Peek to report nothing after Remove, got %+v", res)
	}
}

func TestPeekReportsFinalAfterCreate(t *testing.T) {
	c := New(newTestDeps(t), 0)
	id := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}
	if _, err := c.GetOrCreate(context.Background(), id, nil, nil, nil, "acct-1"); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	res := c.Peek(id)
	if res.Final == nil {
		t.Fatal("expected Peek to report a Final worker after construction")
	}
}
