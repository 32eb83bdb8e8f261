package routing

import (
	"context"

	"github.com/oriys/workerexec/internal/domain"
)

// GolemError is the wire representation of domain.WorkerError carried on
// every failure response of the routing RPC surface (spec.md §6 "Each
// response is success | failure(GolemError)").
type GolemError struct {
	Code           domain.ErrorCode
	Worker         domain.WorkerId
	Details        string
	Shard          uint32
	ExpectedShards []uint32
	Kind           domain.InterruptKind
}

// ToGolemError converts any error into the wire shape, preserving
// domain.WorkerError's fields when present and falling back to Unknown
// otherwise.
func ToGolemError(err error) *GolemError {
	if err == nil {
		return nil
	}
	if we, ok := err.(*domain.WorkerError); ok {
		return &GolemError{
			Code:           we.Code,
			Worker:         we.Worker,
			Details:        we.Details,
			Shard:          we.Shard,
			ExpectedShards: we.ExpectedShards,
			Kind:           we.Kind,
		}
	}
	return &GolemError{Code: domain.ErrUnknown, Details: err.Error()}
}

// AsError converts a GolemError back into a *domain.WorkerError for
// callers that want to errors.Is/As against it.
func (e *GolemError) AsError() error {
	if e == nil {
		return nil
	}
	return &domain.WorkerError{
		Code:           e.Code,
		Worker:         e.Worker,
		Details:        e.Details,
		Shard:          e.Shard,
		ExpectedShards: e.ExpectedShards,
		Kind:           e.Kind,
	}
}

// CreateWorkerRequest is the CreateWorker RPC payload.
type CreateWorkerRequest struct {
	WorkerId domain.WorkerId
	Args     []string
	Env      []domain.EnvVar
	Version  *uint64
	Account  domain.AccountId
}

// WorkerRef identifies a target worker, shared by several RPCs
// (DeleteWorker, ResumeWorker, GetWorkerMetadata).
type WorkerRef struct {
	WorkerId domain.WorkerId
	Account  domain.AccountId
}

// InvokeRequest is the payload for InvokeWorker/InvokeAndAwaitWorker.
type InvokeRequest struct {
	WorkerId      domain.WorkerId
	Account       domain.AccountId
	FunctionName  string
	Params        []byte
	InvocationKey domain.InvocationKey
	// CallingConvention selects how params/result are packed (spec.md §8
	// "CallingConvention proto ↔ domain: identity"); defaults to
	// CallingConventionComponent's zero value.
	CallingConvention domain.CallingConvention
}

// InvokeResponse carries an exported function's result payload.
type InvokeResponse struct {
	Result []byte
}

// InterruptRequest is the InterruptWorker RPC payload.
type InterruptRequest struct {
	WorkerId          domain.WorkerId
	Account           domain.AccountId
	RecoverImmediately bool
}

// UpdateRequest is the UpdateWorker RPC payload.
type UpdateRequest struct {
	WorkerId      domain.WorkerId
	Account       domain.AccountId
	Mode          domain.UpdateMode
	TargetVersion uint64
}

// ComponentRef identifies all workers of one component, used by
// GetRunningWorkersMetadata.
type ComponentRef struct {
	ComponentID string
}

// ScanRequest is the GetWorkersMetadata RPC payload.
type ScanRequest struct {
	ComponentID string
	Cursor      uint64
	Count       int
	Precise     bool
	Filter      string
}

// WorkerMetadataResponse carries a single worker's metadata.
type WorkerMetadataResponse struct {
	Metadata domain.WorkerMetadata
}

// WorkerMetadataListResponse carries a page of worker metadata plus the
// next scan cursor (0 signals completion).
type WorkerMetadataListResponse struct {
	Workers    []domain.WorkerMetadata
	NextCursor uint64
}

// CompletePromiseRequest is the CompletePromise RPC payload.
type CompletePromiseRequest struct {
	PromiseID string
	Data      []byte
}

// Ack is the generic empty-success response used by RPCs that otherwise
// return nothing but success|failure.
type Ack struct{}

// TargetKind discriminates the three ways call_worker_executor can
// resolve a target (spec.md §4.5 step 1).
type TargetKind int

const (
	TargetWorkerID TargetKind = iota
	TargetRandomExecutor
	TargetAllExecutors
)

// Target selects which executor(s) a routed call should reach.
type Target struct {
	Kind     TargetKind
	WorkerId domain.WorkerId // valid when Kind == TargetWorkerID
}

// ForWorker builds a Target routing to the single executor owning id's
// shard.
func ForWorker(id domain.WorkerId) Target {
	return Target{Kind: TargetWorkerID, WorkerId: id}
}

// RandomExecutor builds a Target routing to any one live executor.
func RandomExecutor() Target {
	return Target{Kind: TargetRandomExecutor}
}

// AllExecutors builds a Target that fans out to every live executor.
func AllExecutors() Target {
	return Target{Kind: TargetAllExecutors}
}

// ExecutorClient is the routing RPC surface a Router dispatches calls
// through (spec.md §6 "Routing RPC surface"). internal/grpc's client type
// implements this over a real grpc.ClientConn; internal/workerservice's
// Service implements it directly for same-process local dispatch.
type ExecutorClient interface {
	CreateWorker(ctx context.Context, req *CreateWorkerRequest) (*Ack, *GolemError)
	DeleteWorker(ctx context.Context, req *WorkerRef) (*Ack, *GolemError)
	InvokeWorker(ctx context.Context, req *InvokeRequest) (*Ack, *GolemError)
	InvokeAndAwaitWorker(ctx context.Context, req *InvokeRequest) (*InvokeResponse, *GolemError)
	InterruptWorker(ctx context.Context, req *InterruptRequest) (*Ack, *GolemError)
	ResumeWorker(ctx context.Context, req *WorkerRef) (*Ack, *GolemError)
	UpdateWorker(ctx context.Context, req *UpdateRequest) (*Ack, *GolemError)
	GetWorkerMetadata(ctx context.Context, req *WorkerRef) (*WorkerMetadataResponse, *GolemError)
	GetRunningWorkersMetadata(ctx context.Context, req *ComponentRef) (*WorkerMetadataListResponse, *GolemError)
	GetWorkersMetadata(ctx context.Context, req *ScanRequest) (*WorkerMetadataListResponse, *GolemError)
	CompletePromise(ctx context.Context, req *CompletePromiseRequest) (*Ack, *GolemError)
}
