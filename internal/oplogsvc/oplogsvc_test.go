package oplogsvc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/workerexec/internal/domain"
	"github.com/oriys/workerexec/internal/oplog"
	"github.com/oriys/workerexec/internal/storage/blob"
	"github.com/oriys/workerexec/internal/storage/indexed"
)

func newTestService() *Service {
	return New(indexed.NewMemoryStorage(), blob.NewMemoryStorage(), oplog.DefaultConfig())
}

func TestCreateThenSecondCreateFails(t *testing.T) {
	svc := newTestService()
	worker := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}
	ctx := context.Background()

	h, err := svc.Create(ctx, "acct", worker, domain.OplogEntry{Kind: domain.EntryCreate, Timestamp: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if _, err := svc.Create(ctx, "acct", worker, domain.OplogEntry{Kind: domain.EntryCreate, Timestamp: time.Now()}); err == nil {
		t.Fatal("expected second create for the same worker to fail")
	}
}

func TestOpenReturnsSameHandleWhileLive(t *testing.T) {
	svc := newTestService()
	worker := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}
	ctx := context.Background()

	h1, err := svc.Create(ctx, "acct", worker, domain.OplogEntry{Kind: domain.EntryCreate, Timestamp: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := svc.Open(ctx, "acct", worker)
	if err != nil {
		t.Fatal(err)
	}
	if h1.Oplog != h2.Oplog {
		t.Fatal("expected Open to return the same underlying Oplog while a handle is live")
	}
	h1.Close()
	h2.Close()

	h3, err := svc.Open(ctx, "acct", worker)
	if err != nil {
		t.Fatal(err)
	}
	defer h3.Close()
	if h3.Oplog == h1.Oplog {
		t.Fatal("expected a fresh handle once all prior references were closed")
	}
}

func TestConcurrentOpenSharesConstruction(t *testing.T) {
	svc := newTestService()
	worker := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}
	ctx := context.Background()

	h0, err := svc.Create(ctx, "acct", worker, domain.OplogEntry{Kind: domain.EntryCreate, Timestamp: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	h0.Close()

	var wg sync.WaitGroup
	handles := make([]*Handle, 8)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := svc.Open(ctx, "acct", worker)
			if err != nil {
				t.Error(err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(handles); i++ {
		if handles[i] == nil || handles[0] == nil {
			t.Fatal("open failed for a concurrent caller")
		}
		if handles[i].Oplog != handles[0].Oplog {
			t.Fatal("expected all concurrent opens to share one constructed handle")
		}
	}
	for _, h := range handles {
		h.Close()
	}
}

func TestScanForComponentEnumeratesAllKeysOnce(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	componentID := uuid.New()

	const n = 5
	for i := 0; i < n; i++ {
		worker := domain.WorkerId{ComponentID: componentID, WorkerName: uuid.NewString()}
		h, err := svc.Create(ctx, "acct", worker, domain.OplogEntry{Kind: domain.EntryCreate, Timestamp: time.Now()})
		if err != nil {
			t.Fatal(err)
		}
		h.Close()
	}

	seen := map[string]bool{}
	cursor := ScanCursor{}
	for {
		next, ids, err := svc.ScanForComponent(ctx, componentID.String(), cursor, 2)
		if err != nil {
			t.Fatal(err)
		}
		for _, id := range ids {
			seen[id.String()] = true
		}
		if next.Cursor == 0 {
			break
		}
		cursor = next
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct workers enumerated, got %d", n, len(seen))
	}
}
