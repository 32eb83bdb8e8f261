package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/oriys/workerexec/internal/domain"
	"github.com/oriys/workerexec/internal/routing"
)

type stubExecutor struct {
	workers map[string]bool
}

func (s *stubExecutor) CreateWorker(ctx context.Context, req *routing.CreateWorkerRequest) (*routing.Ack, *routing.GolemError) {
	key := req.WorkerId.String()
	if s.workers[key] {
		return nil, &routing.GolemError{Code: domain.ErrWorkerAlreadyExists, Worker: req.WorkerId}
	}
	s.workers[key] = true
	return &routing.Ack{}, nil
}

func (s *stubExecutor) DeleteWorker(ctx context.Context, req *routing.WorkerRef) (*routing.Ack, *routing.GolemError) {
	delete(s.workers, req.WorkerId.String())
	return &routing.Ack{}, nil
}

func (s *stubExecutor) InvokeWorker(ctx context.Context, req *routing.InvokeRequest) (*routing.Ack, *routing.GolemError) {
	return &routing.Ack{}, nil
}

func (s *stubExecutor) InvokeAndAwaitWorker(ctx context.Context, req *routing.InvokeRequest) (*routing.InvokeResponse, *routing.GolemError) {
	if !s.workers[req.WorkerId.String()] {
		return nil, &routing.GolemError{Code: domain.ErrWorkerNotFound, Worker: req.WorkerId}
	}
	return &routing.InvokeResponse{Result: []byte("echo:" + req.FunctionName)}, nil
}

func (s *stubExecutor) InterruptWorker(ctx context.Context, req *routing.InterruptRequest) (*routing.Ack, *routing.GolemError) {
	return &routing.Ack{}, nil
}
func (s *stubExecutor) ResumeWorker(ctx context.Context, req *routing.WorkerRef) (*routing.Ack, *routing.GolemError) {
	return &routing.Ack{}, nil
}
func (s *stubExecutor) UpdateWorker(ctx context.Context, req *routing.UpdateRequest) (*routing.Ack, *routing.GolemError) {
	return &routing.Ack{}, nil
}
func (s *stubExecutor) GetWorkerMetadata(ctx context.Context, req *routing.WorkerRef) (*routing.WorkerMetadataResponse, *routing.GolemError) {
	return &routing.WorkerMetadataResponse{}, nil
}
func (s *stubExecutor) GetRunningWorkersMetadata(ctx context.Context, req *routing.ComponentRef) (*routing.WorkerMetadataListResponse, *routing.GolemError) {
	return &routing.WorkerMetadataListResponse{}, nil
}
func (s *stubExecutor) GetWorkersMetadata(ctx context.Context, req *routing.ScanRequest) (*routing.WorkerMetadataListResponse, *routing.GolemError) {
	return &routing.WorkerMetadataListResponse{}, nil
}
func (s *stubExecutor) CompletePromise(ctx context.Context, req *routing.CompletePromiseRequest) (*routing.Ack, *routing.GolemError) {
	return &routing.Ack{}, nil
}

func startTestServer(t *testing.T) routing.ExecutorClient {
	t.Helper()
	impl := &stubExecutor{workers: make(map[string]bool)}
	srv := NewServer(impl)
	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(srv.Stop)

	client, err := Dial(srv.Addr())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { client.(*Client).Close() })
	return client
}

func TestClientServerCreateAndInvokeWorker(t *testing.T) {
	client := startTestServer(t)
	workerID := domain.WorkerId{WorkerName: "w1"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, gerr := client.CreateWorker(ctx, &routing.CreateWorkerRequest{WorkerId: workerID}); gerr != nil {
		t.Fatalf("CreateWorker failed: %v", gerr.AsError())
	}

	resp, gerr := client.InvokeAndAwaitWorker(ctx, &routing.InvokeRequest{WorkerId: workerID, FunctionName: "run"})
	if gerr != nil {
		t.Fatalf("InvokeAndAwaitWorker failed: %v", gerr.AsError())
	}
	if string(resp.Result) != "echo:run" {
		t.Fatalf("expected result %q, got %q", "echo:run", resp.Result)
	}
}

func TestClientServerPropagatesGolemError(t *testing.T) {
	client := startTestServer(t)
	workerID := domain.WorkerId{WorkerName: "w1"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, gerr := client.CreateWorker(ctx, &routing.CreateWorkerRequest{WorkerId: workerID}); gerr != nil {
		t.Fatalf("first CreateWorker failed: %v", gerr.AsError())
	}

	_, gerr := client.CreateWorker(ctx, &routing.CreateWorkerRequest{WorkerId: workerID})
	if gerr == nil {
		t.Fatal("expected a GolemError for a duplicate CreateWorker")
	}
	if gerr.Code != domain.ErrWorkerAlreadyExists {
		t.Fatalf("expected ErrWorkerAlreadyExists, got %v", gerr.Code)
	}
	if gerr.Worker.WorkerName != workerID.WorkerName {
		t.Fatalf("expected the GolemError to carry the worker id, got %+v", gerr.Worker)
	}
}

func TestClientServerInvokeUnknownWorker(t *testing.T) {
	client := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, gerr := client.InvokeAndAwaitWorker(ctx, &routing.InvokeRequest{
		WorkerId:     domain.WorkerId{WorkerName: "missing"},
		FunctionName: "run",
	})
	if gerr == nil {
		t.Fatal("expected a GolemError for an unknown worker")
	}
	if gerr.Code != domain.ErrWorkerNotFound {
		t.Fatalf("expected ErrWorkerNotFound, got %v", gerr.Code)
	}
}
