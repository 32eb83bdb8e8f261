// Package workerservice implements the WorkerService facade: the single
// entry point invocations go through (Create, Invoke, InvokeAndAwait,
// Interrupt, Resume, Update, FindMetadata), dispatching every call through
// internal/routing so the caller never has to know which executor owns a
// worker's shard.
//
// The facade shape — a thin dispatch layer in front of the real
// get-or-create/invoke/interrupt logic — is grounded on
// internal/executor/executor.go's Invoke pipeline (mined before that
// package's deletion, see DESIGN.md): there it fronted the VM pool and a
// circuit breaker; here it fronts internal/workercache and
// internal/routing instead.
package workerservice

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/workerexec/internal/domain"
	"github.com/oriys/workerexec/internal/invocationkey"
	"github.com/oriys/workerexec/internal/logging"
	"github.com/oriys/workerexec/internal/metrics"
	"github.com/oriys/workerexec/internal/oplogsvc"
	"github.com/oriys/workerexec/internal/promise"
	"github.com/oriys/workerexec/internal/routing"
	"github.com/oriys/workerexec/internal/workercache"
	"github.com/oriys/workerexec/internal/worker"
)

// Deps bundles the collaborators the Service dispatches to.
type Deps struct {
	Cache      *workercache.Cache
	Metadata   worker.MetadataStore
	Oplogs     *oplogsvc.Service
	InvokeKeys *invocationkey.Service
	Promises   *promise.Service
	Router     *routing.Router
	Metrics    *metrics.PrometheusMetrics // may be nil
	LocalAddr  string
}

// Service is the local executor's implementation of the routing RPC
// surface (spec.md §6) and the high-level facade used by CLI/daemon
// callers. It satisfies routing.ExecutorClient directly so the Router's
// Dialer can short-circuit to it without a network round trip whenever
// the target shard is owned by this same process.
type Service struct {
	deps Deps
}

func New(deps Deps) *Service {
	return &Service{deps: deps}
}

func (s *Service) observe(seconds float64, success bool) {
	if s.deps.Metrics == nil {
		return
	}
	s.deps.Metrics.ObserveGRPCCall(seconds, success)
}

// --- routing.ExecutorClient: local implementation ---------------------

func (s *Service) CreateWorker(ctx context.Context, req *routing.CreateWorkerRequest) (*routing.Ack, *routing.GolemError) {
	start := time.Now()
	_, err := s.deps.Cache.GetOrCreate(ctx, req.WorkerId, req.Args, req.Env, req.Version, req.Account)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveCreateInstance(time.Since(start).Seconds())
	}
	s.observe(time.Since(start).Seconds(), err == nil)
	if err != nil {
		return nil, routing.ToGolemError(err)
	}
	return &routing.Ack{}, nil
}

func (s *Service) DeleteWorker(ctx context.Context, req *routing.WorkerRef) (*routing.Ack, *routing.GolemError) {
	s.deps.Cache.Remove(req.WorkerId)
	s.deps.InvokeKeys.DropWorker(req.WorkerId)
	s.deps.Promises.DropForWorker(req.WorkerId)
	if err := s.deps.Metadata.Delete(ctx, req.WorkerId); err != nil {
		return nil, routing.ToGolemError(err)
	}
	return &routing.Ack{}, nil
}

func (s *Service) InvokeWorker(ctx context.Context, req *routing.InvokeRequest) (*routing.Ack, *routing.GolemError) {
	start := time.Now()
	_, err := s.invoke(ctx, req, false)
	s.recordInvocation("fire_and_forget", err)
	s.observe(time.Since(start).Seconds(), err == nil)
	if err != nil {
		return nil, routing.ToGolemError(err)
	}
	return &routing.Ack{}, nil
}

func (s *Service) InvokeAndAwaitWorker(ctx context.Context, req *routing.InvokeRequest) (*routing.InvokeResponse, *routing.GolemError) {
	start := time.Now()
	result, err := s.invoke(ctx, req, true)
	s.recordInvocation("await", err)
	s.observe(time.Since(start).Seconds(), err == nil)
	if err != nil {
		return nil, routing.ToGolemError(err)
	}
	return &routing.InvokeResponse{Result: result}, nil
}

func (s *Service) recordInvocation(mode string, err error) {
	if s.deps.Metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.deps.Metrics.RecordInvocation(mode, outcome, 0)
}

// invoke drives the Create → enqueue → run → complete state transition
// (spec.md §4.7): journal ExportedFunctionInvoked, call the guest export,
// journal ExportedFunctionCompleted, commit, and, when await is set, wait
// for replicas before returning the result.
func (s *Service) invoke(ctx context.Context, req *routing.InvokeRequest, await bool) ([]byte, error) {
	w, err := s.deps.Cache.GetOrCreate(ctx, req.WorkerId, nil, nil, nil, req.Account)
	if err != nil {
		return nil, err
	}

	key := req.InvocationKey
	if key == "" {
		key = domain.NewInvocationKey()
	}
	s.deps.InvokeKeys.EnqueuePending(req.WorkerId, key)
	// The invocation's own key also names a promise a third party can
	// resolve via CompletePromise, independent of whether the invocation
	// that created it has itself returned (spec.md §4's promise/
	// invocation-key distinction).
	s.deps.Promises.Create(req.WorkerId, promise.ID(key))

	w.Store.Lock()
	defer w.Store.Unlock()

	fuelBefore := w.Store.FuelRemaining()

	entry := domain.OplogEntry{
		Kind:                 domain.EntryExportedFunctionInvoked,
		Timestamp:            time.Now(),
		ExportedFunctionName: req.FunctionName,
		ExportedParams:       domain.NewInlinePayload(req.Params),
		InvocationKey:        key,
	}

	log := w.Oplog()
	if err := log.Add(ctx, entry); err != nil {
		s.deps.InvokeKeys.Interrupt(req.WorkerId, key)
		return nil, fmt.Errorf("workerservice: journal invocation: %w", err)
	}

	result, callErr := w.Store.CallExported(ctx, req.FunctionName, req.Params)

	fuelAfter := w.Store.FuelRemaining()
	consumed := int64(0)
	if fuelBefore > fuelAfter {
		consumed = int64(fuelBefore - fuelAfter)
	}

	completion := domain.OplogEntry{
		Kind:         domain.EntryExportedFunctionCompleted,
		Timestamp:    time.Now(),
		ConsumedFuel: consumed,
	}
	if callErr != nil {
		completion.ExportedResult = domain.OplogPayload{}
	} else {
		completion.ExportedResult = domain.NewInlinePayload(result)
	}
	if err := log.Add(ctx, completion); err != nil {
		return nil, fmt.Errorf("workerservice: journal completion: %w", err)
	}
	if err := log.Commit(ctx); err != nil {
		return nil, fmt.Errorf("workerservice: commit invocation: %w", err)
	}

	if await {
		log.WaitForReplicas(ctx, 1, 2*time.Second)
	}

	if callErr != nil {
		s.deps.InvokeKeys.Complete(req.WorkerId, key, invocationkey.Result{Err: callErr})
		return nil, callErr
	}
	s.deps.InvokeKeys.Complete(req.WorkerId, key, invocationkey.Result{Payload: completion.ExportedResult})
	logging.Op().Info("invocation completed",
		"worker", req.WorkerId.String(),
		"function", req.FunctionName,
		"fuel_consumed", consumed,
		"calling_convention", req.CallingConvention.String(),
	)
	return result, nil
}

func (s *Service) InterruptWorker(ctx context.Context, req *routing.InterruptRequest) (*routing.Ack, *routing.GolemError) {
	peek := s.deps.Cache.Peek(req.WorkerId)
	if peek.Final == nil {
		return nil, routing.ToGolemError(domain.NewWorkerNotFound(req.WorkerId))
	}
	w := peek.Final

	kind := domain.InterruptKindInterrupt
	if req.RecoverImmediately {
		kind = domain.InterruptKindRestart
	}

	wait := w.Status.SetInterrupting(kind)
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, routing.ToGolemError(ctx.Err())
		}
	}

	if err := w.Oplog().Add(ctx, domain.OplogEntry{
		Kind:          domain.EntryInterrupted,
		Timestamp:     time.Now(),
		InterruptKind: kind,
	}); err != nil {
		return nil, routing.ToGolemError(err)
	}

	if req.RecoverImmediately {
		w.Status.Resume()
	}
	return &routing.Ack{}, nil
}

func (s *Service) ResumeWorker(ctx context.Context, req *routing.WorkerRef) (*routing.Ack, *routing.GolemError) {
	peek := s.deps.Cache.Peek(req.WorkerId)
	if peek.Final == nil {
		return nil, routing.ToGolemError(domain.NewWorkerNotFound(req.WorkerId))
	}
	peek.Final.Status.Resume()
	return &routing.Ack{}, nil
}

func (s *Service) UpdateWorker(ctx context.Context, req *routing.UpdateRequest) (*routing.Ack, *routing.GolemError) {
	meta, ok, err := s.deps.Metadata.Get(ctx, req.WorkerId)
	if err != nil {
		return nil, routing.ToGolemError(err)
	}
	if !ok {
		return nil, routing.ToGolemError(domain.NewWorkerNotFound(req.WorkerId))
	}

	peek := s.deps.Cache.Peek(req.WorkerId)
	if peek.Final != nil {
		if err := peek.Final.Oplog().Add(ctx, domain.OplogEntry{
			Kind:          domain.EntryPendingUpdate,
			Timestamp:     time.Now(),
			UpdateMode:    req.Mode,
			TargetVersion: req.TargetVersion,
		}); err != nil {
			return nil, routing.ToGolemError(err)
		}
	}

	meta.Status.UpdateHistory = append(meta.Status.UpdateHistory, domain.UpdateRecord{
		TargetVersion: req.TargetVersion,
		AppliedAt:     time.Now(),
		Successful:    true,
	})
	if err := s.deps.Metadata.UpdateStatus(ctx, req.WorkerId, meta.Status); err != nil {
		return nil, routing.ToGolemError(err)
	}
	return &routing.Ack{}, nil
}

func (s *Service) GetWorkerMetadata(ctx context.Context, req *routing.WorkerRef) (*routing.WorkerMetadataResponse, *routing.GolemError) {
	meta, ok, err := s.deps.Metadata.Get(ctx, req.WorkerId)
	if err != nil {
		return nil, routing.ToGolemError(err)
	}
	if !ok {
		return nil, routing.ToGolemError(domain.NewWorkerNotFound(req.WorkerId))
	}
	return &routing.WorkerMetadataResponse{Metadata: meta}, nil
}

// GetRunningWorkersMetadata answers entirely from the in-memory active-worker
// cache, never touching persistent storage (spec.md §8 "Find-metadata filter
// short-circuit": a Status=Running query fans out to every executor's live
// state and always returns a nil cursor, since "running" is a purely
// in-memory fact that a storage scan cannot improve on).
func (s *Service) GetRunningWorkersMetadata(ctx context.Context, req *routing.ComponentRef) (*routing.WorkerMetadataListResponse, *routing.GolemError) {
	id, err := domain.ParseComponentID(req.ComponentID)
	if err != nil {
		return nil, routing.ToGolemError(domain.NewInvalidRequest(err.Error()))
	}
	workers := s.deps.Cache.Snapshot(id)
	return &routing.WorkerMetadataListResponse{Workers: workers, NextCursor: 0}, nil
}

// GetWorkersMetadata pages through persistent storage by component,
// precise or not, optionally filtered — unlike GetRunningWorkersMetadata
// this one genuinely needs the durable metadata store since it must see
// workers that are not currently resident in any executor's cache.
func (s *Service) GetWorkersMetadata(ctx context.Context, req *routing.ScanRequest) (*routing.WorkerMetadataListResponse, *routing.GolemError) {
	next, ids, err := s.deps.Oplogs.ScanForComponent(ctx, req.ComponentID, oplogsvc.ScanCursor{Cursor: req.Cursor}, req.Count)
	if err != nil {
		return nil, routing.ToGolemError(err)
	}

	workers := make([]domain.WorkerMetadata, 0, len(ids))
	for _, id := range ids {
		meta, ok, err := s.deps.Metadata.Get(ctx, id)
		if err != nil || !ok {
			continue
		}
		workers = append(workers, meta)
	}
	return &routing.WorkerMetadataListResponse{Workers: workers, NextCursor: next.Cursor}, nil
}

// CompletePromise resolves the named promise through the PromiseService
// (spec.md §7: PromiseNotFound/PromiseDropped/PromiseAlreadyCompleted),
// which is a table distinct from InvokeKeys — completing a promise never
// itself confirms the invocation key an awaiting caller polls, since a
// promise may be completed by a party other than the invocation that
// created it.
func (s *Service) CompletePromise(ctx context.Context, req *routing.CompletePromiseRequest) (*routing.Ack, *routing.GolemError) {
	if _, err := s.deps.Promises.Complete(promise.ID(req.PromiseID), req.Data); err != nil {
		return nil, routing.ToGolemError(err)
	}
	return &routing.Ack{}, nil
}
