package promise

import (
	"testing"

	"github.com/google/uuid"

	"github.com/oriys/workerexec/internal/domain"
)

func testWorker() domain.WorkerId {
	return domain.WorkerId{ComponentID: uuid.New(), WorkerName: "w1"}
}

func TestCompleteUnknownPromiseReturnsNotFound(t *testing.T) {
	s := New()
	_, err := s.Complete("missing", nil)
	werr, ok := err.(*domain.WorkerError)
	if !ok || werr.Code != domain.ErrPromiseNotFound {
		t.Fatalf("got %v, want PromiseNotFound", err)
	}
}

func TestCreateThenComplete(t *testing.T) {
	s := New()
	worker := testWorker()
	s.Create(worker, "p1")

	owner, err := s.Complete("p1", []byte("result"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if owner != worker {
		t.Fatalf("got owner %v, want %v", owner, worker)
	}

	data, completed := s.Lookup("p1")
	if !completed || string(data) != "result" {
		t.Fatalf("got (%q, %v), want completed result", data, completed)
	}
}

func TestCompleteTwiceReturnsAlreadyCompleted(t *testing.T) {
	s := New()
	worker := testWorker()
	s.Create(worker, "p1")
	if _, err := s.Complete("p1", []byte("a")); err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	_, err := s.Complete("p1", []byte("b"))
	werr, ok := err.(*domain.WorkerError)
	if !ok || werr.Code != domain.ErrPromiseAlreadyCompleted {
		t.Fatalf("got %v, want PromiseAlreadyCompleted", err)
	}
}

func TestDropForWorkerThenCompleteReturnsDropped(t *testing.T) {
	s := New()
	worker := testWorker()
	s.Create(worker, "p1")
	s.DropForWorker(worker)

	_, err := s.Complete("p1", nil)
	werr, ok := err.(*domain.WorkerError)
	if !ok || werr.Code != domain.ErrPromiseDropped {
		t.Fatalf("got %v, want PromiseDropped", err)
	}
}

func TestDropForWorkerLeavesOtherWorkersAlone(t *testing.T) {
	s := New()
	w1, w2 := testWorker(), testWorker()
	s.Create(w1, "p1")
	s.Create(w2, "p2")
	s.DropForWorker(w1)

	if _, err := s.Complete("p2", []byte("ok")); err != nil {
		t.Fatalf("Complete p2: %v", err)
	}
	if n := s.PendingCount(); n != 0 {
		t.Fatalf("got %d pending, want 0", n)
	}
}
