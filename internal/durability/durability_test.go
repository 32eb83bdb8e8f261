package durability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/workerexec/internal/domain"
	"github.com/oriys/workerexec/internal/oplog"
	"github.com/oriys/workerexec/internal/storage/blob"
	"github.com/oriys/workerexec/internal/storage/indexed"
)

func newTestOplog(t *testing.T) (*oplog.Oplog, domain.WorkerId) {
	t.Helper()
	worker := domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}
	storage := indexed.NewMemoryStorage()
	blobs := blob.NewMemoryStorage()
	return oplog.New(storage, blobs, "acct", worker, 0, oplog.DefaultConfig()), worker
}

func TestLiveCallJournalsAndReturnsOutcome(t *testing.T) {
	log, worker := newTestOplog(t)
	w := NewWrapper(worker, log)

	invoked := false
	invoke := func(ctx context.Context, call HostCall) (domain.OplogPayload, error) {
		invoked = true
		return domain.NewInlinePayload([]byte("t0=100")), nil
	}

	out, err := w.Call(context.Background(), ReadLocal, HostCall{Name: "now"}, invoke)
	if err != nil {
		t.Fatal(err)
	}
	if !invoked {
		t.Fatal("expected the real host invoker to be called in live mode")
	}
	if string(out.Inline) != "t0=100" {
		t.Fatalf("unexpected outcome: %q", out.Inline)
	}

	if err := log.Commit(context.Background()); err != nil {
		t.Fatal(err)
	}
	entry, err := log.Read(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Kind != domain.EntryImportedFunctionInvoked || entry.ImportedFunctionName != "now" {
		t.Fatalf("expected a journalled ImportedFunctionInvoked entry for %q, got %+v", "now", entry)
	}
}

func TestWriteRemoteForcesCommitBeforeReturning(t *testing.T) {
	log, worker := newTestOplog(t)
	w := NewWrapper(worker, log)

	invoke := func(ctx context.Context, call HostCall) (domain.OplogPayload, error) {
		return domain.NewInlinePayload([]byte("ok")), nil
	}
	if _, err := w.Call(context.Background(), WriteRemote, HostCall{Name: "rpc"}, invoke); err != nil {
		t.Fatal(err)
	}

	last, err := log.Length(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if last != 1 {
		t.Fatalf("expected WriteRemote to commit immediately, got %d committed entries", last)
	}
}

func TestReadLocalDoesNotForceCommit(t *testing.T) {
	log, worker := newTestOplog(t)
	w := NewWrapper(worker, log)

	invoke := func(ctx context.Context, call HostCall) (domain.OplogPayload, error) {
		return domain.NewInlinePayload([]byte("ok")), nil
	}
	if _, err := w.Call(context.Background(), ReadLocal, HostCall{Name: "read"}, invoke); err != nil {
		t.Fatal(err)
	}

	last, err := log.Length(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if last != 0 {
		t.Fatalf("expected ReadLocal to leave the entry staged, got %d committed entries", last)
	}
	if log.CurrentIndex() != 1 {
		t.Fatalf("expected staged index to advance regardless, got %d", log.CurrentIndex())
	}
}

func TestLiveCallJournalsHostError(t *testing.T) {
	log, worker := newTestOplog(t)
	w := NewWrapper(worker, log)

	wantErr := errors.New("connection refused")
	invoke := func(ctx context.Context, call HostCall) (domain.OplogPayload, error) {
		return domain.OplogPayload{}, wantErr
	}

	_, err := w.Call(context.Background(), ReadRemote, HostCall{Name: "dial"}, invoke)
	if err == nil || err.Error() != wantErr.Error() {
		t.Fatalf("expected the host error to propagate, got %v", err)
	}

	if err := log.Commit(context.Background()); err != nil {
		t.Fatal(err)
	}
	entry, err := log.Read(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if entry.ErrorMessage != wantErr.Error() {
		t.Fatalf("expected the error recorded in the journal, got %q", entry.ErrorMessage)
	}
}

func TestReplayReturnsJournalledResultWithoutInvokingHost(t *testing.T) {
	log, worker := newTestOplog(t)
	if err := log.Add(context.Background(), domain.OplogEntry{
		Kind:                 domain.EntryImportedFunctionInvoked,
		Timestamp:            time.Now(),
		ImportedFunctionName: "now",
		ImportedResult:       domain.NewInlinePayload([]byte("t0=100")),
	}); err != nil {
		t.Fatal(err)
	}
	if err := log.Commit(context.Background()); err != nil {
		t.Fatal(err)
	}

	w := NewReplayWrapper(worker, log, 1)
	called := false
	invoke := func(ctx context.Context, call HostCall) (domain.OplogPayload, error) {
		called = true
		return domain.OplogPayload{}, nil
	}

	out, err := w.Call(context.Background(), ReadLocal, HostCall{Name: "now"}, invoke)
	if err != nil {
		t.Fatal(err)
	}
	if called {
		t.Fatal("expected replay mode not to call the real host invoker")
	}
	if string(out.Inline) != "t0=100" {
		t.Fatalf("expected replayed result t0=100, got %q", out.Inline)
	}
}

func TestReplayMismatchOnWrongCallSite(t *testing.T) {
	log, worker := newTestOplog(t)
	if err := log.Add(context.Background(), domain.OplogEntry{
		Kind:                 domain.EntryImportedFunctionInvoked,
		Timestamp:            time.Now(),
		ImportedFunctionName: "now",
		ImportedResult:       domain.NewInlinePayload([]byte("t0=100")),
	}); err != nil {
		t.Fatal(err)
	}
	if err := log.Commit(context.Background()); err != nil {
		t.Fatal(err)
	}

	w := NewReplayWrapper(worker, log, 1)
	_, err := w.Call(context.Background(), ReadLocal, HostCall{Name: "random_bytes"}, nil)
	var mismatch *ErrReplayMismatch
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ErrReplayMismatch, got %v", err)
	}
}

func TestSwitchToLiveEndsReplay(t *testing.T) {
	log, worker := newTestOplog(t)
	w := NewReplayWrapper(worker, log, 1)
	w.SwitchToLive()
	if w.Mode() != Live {
		t.Fatal("expected Mode() to report Live after SwitchToLive")
	}

	invoked := false
	invoke := func(ctx context.Context, call HostCall) (domain.OplogPayload, error) {
		invoked = true
		return domain.NewInlinePayload([]byte("fresh")), nil
	}
	if _, err := w.Call(context.Background(), ReadLocal, HostCall{Name: "now"}, invoke); err != nil {
		t.Fatal(err)
	}
	if !invoked {
		t.Fatal("expected a live call to reach the real host invoker after switching out of replay")
	}
}
