package grpc

import (
	"context"

	"github.com/oriys/workerexec/internal/routing"
	"google.golang.org/grpc"
)

// serviceName is the fully qualified gRPC service name advertised in every
// method's FullMethod and in reflection/health tooling that inspects it.
const serviceName = "workerexec.Executor"

// executorServer adapts a routing.ExecutorClient (which returns
// (*Resp, *routing.GolemError)) to the (*Resp, error) shape grpc.ServiceDesc
// handlers require, encoding the GolemError into the returned status error.
type executorServer struct {
	impl routing.ExecutorClient
}

func (s executorServer) createWorker(ctx context.Context, req *routing.CreateWorkerRequest) (*routing.Ack, error) {
	resp, gerr := s.impl.CreateWorker(ctx, req)
	return resp, encodeStatusErr(gerr)
}

func (s executorServer) deleteWorker(ctx context.Context, req *routing.WorkerRef) (*routing.Ack, error) {
	resp, gerr := s.impl.DeleteWorker(ctx, req)
	return resp, encodeStatusErr(gerr)
}

func (s executorServer) invokeWorker(ctx context.Context, req *routing.InvokeRequest) (*routing.Ack, error) {
	resp, gerr := s.impl.InvokeWorker(ctx, req)
	return resp, encodeStatusErr(gerr)
}

func (s executorServer) invokeAndAwaitWorker(ctx context.Context, req *routing.InvokeRequest) (*routing.InvokeResponse, error) {
	resp, gerr := s.impl.InvokeAndAwaitWorker(ctx, req)
	return resp, encodeStatusErr(gerr)
}

func (s executorServer) interruptWorker(ctx context.Context, req *routing.InterruptRequest) (*routing.Ack, error) {
	resp, gerr := s.impl.InterruptWorker(ctx, req)
	return resp, encodeStatusErr(gerr)
}

func (s executorServer) resumeWorker(ctx context.Context, req *routing.WorkerRef) (*routing.Ack, error) {
	resp, gerr := s.impl.ResumeWorker(ctx, req)
	return resp, encodeStatusErr(gerr)
}

func (s executorServer) updateWorker(ctx context.Context, req *routing.UpdateRequest) (*routing.Ack, error) {
	resp, gerr := s.impl.UpdateWorker(ctx, req)
	return resp, encodeStatusErr(gerr)
}

func (s executorServer) getWorkerMetadata(ctx context.Context, req *routing.WorkerRef) (*routing.WorkerMetadataResponse, error) {
	resp, gerr := s.impl.GetWorkerMetadata(ctx, req)
	return resp, encodeStatusErr(gerr)
}

func (s executorServer) getRunningWorkersMetadata(ctx context.Context, req *routing.ComponentRef) (*routing.WorkerMetadataListResponse, error) {
	resp, gerr := s.impl.GetRunningWorkersMetadata(ctx, req)
	return resp, encodeStatusErr(gerr)
}

func (s executorServer) getWorkersMetadata(ctx context.Context, req *routing.ScanRequest) (*routing.WorkerMetadataListResponse, error) {
	resp, gerr := s.impl.GetWorkersMetadata(ctx, req)
	return resp, encodeStatusErr(gerr)
}

func (s executorServer) completePromise(ctx context.Context, req *routing.CompletePromiseRequest) (*routing.Ack, error) {
	resp, gerr := s.impl.CompletePromise(ctx, req)
	return resp, encodeStatusErr(gerr)
}

// executorServerIface exists only so grpc.ServiceDesc.HandlerType has an
// interface to check registered handlers against (grpc.Server.RegisterService
// does a reflect.Type.Implements assertion, which panics if HandlerType
// isn't an interface type). The method set mirrors executorServer's
// unexported methods, which a protoc-generated XxxServer interface would
// otherwise expose as exported ones.
type executorServerIface interface {
	createWorker(context.Context, *routing.CreateWorkerRequest) (*routing.Ack, error)
	deleteWorker(context.Context, *routing.WorkerRef) (*routing.Ack, error)
	invokeWorker(context.Context, *routing.InvokeRequest) (*routing.Ack, error)
	invokeAndAwaitWorker(context.Context, *routing.InvokeRequest) (*routing.InvokeResponse, error)
	interruptWorker(context.Context, *routing.InterruptRequest) (*routing.Ack, error)
	resumeWorker(context.Context, *routing.WorkerRef) (*routing.Ack, error)
	updateWorker(context.Context, *routing.UpdateRequest) (*routing.Ack, error)
	getWorkerMetadata(context.Context, *routing.WorkerRef) (*routing.WorkerMetadataResponse, error)
	getRunningWorkersMetadata(context.Context, *routing.ComponentRef) (*routing.WorkerMetadataListResponse, error)
	getWorkersMetadata(context.Context, *routing.ScanRequest) (*routing.WorkerMetadataListResponse, error)
	completePromise(context.Context, *routing.CompletePromiseRequest) (*routing.Ack, error)
}

var _ executorServerIface = executorServer{}

func unaryHandler[Req any, Resp any](method func(executorServer, context.Context, *Req) (*Resp, error), fullMethod string) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		impl := srv.(executorServer)
		if interceptor == nil {
			return method(impl, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(impl, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// serviceDesc is the hand-written equivalent of a protoc-generated
// grpc.ServiceDesc: one method entry per routing.ExecutorClient RPC, each
// wired through unaryHandler's generic decode/dispatch/interceptor glue.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*executorServerIface)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateWorker", Handler: grpc.MethodHandler(unaryHandler(executorServer.createWorker, "/"+serviceName+"/CreateWorker"))},
		{MethodName: "DeleteWorker", Handler: grpc.MethodHandler(unaryHandler(executorServer.deleteWorker, "/"+serviceName+"/DeleteWorker"))},
		{MethodName: "InvokeWorker", Handler: grpc.MethodHandler(unaryHandler(executorServer.invokeWorker, "/"+serviceName+"/InvokeWorker"))},
		{MethodName: "InvokeAndAwaitWorker", Handler: grpc.MethodHandler(unaryHandler(executorServer.invokeAndAwaitWorker, "/"+serviceName+"/InvokeAndAwaitWorker"))},
		{MethodName: "InterruptWorker", Handler: grpc.MethodHandler(unaryHandler(executorServer.interruptWorker, "/"+serviceName+"/InterruptWorker"))},
		{MethodName: "ResumeWorker", Handler: grpc.MethodHandler(unaryHandler(executorServer.resumeWorker, "/"+serviceName+"/ResumeWorker"))},
		{MethodName: "UpdateWorker", Handler: grpc.MethodHandler(unaryHandler(executorServer.updateWorker, "/"+serviceName+"/UpdateWorker"))},
		{MethodName: "GetWorkerMetadata", Handler: grpc.MethodHandler(unaryHandler(executorServer.getWorkerMetadata, "/"+serviceName+"/GetWorkerMetadata"))},
		{MethodName: "GetRunningWorkersMetadata", Handler: grpc.MethodHandler(unaryHandler(executorServer.getRunningWorkersMetadata, "/"+serviceName+"/GetRunningWorkersMetadata"))},
		{MethodName: "GetWorkersMetadata", Handler: grpc.MethodHandler(unaryHandler(executorServer.getWorkersMetadata, "/"+serviceName+"/GetWorkersMetadata"))},
		{MethodName: "CompletePromise", Handler: grpc.MethodHandler(unaryHandler(executorServer.completePromise, "/"+serviceName+"/CompletePromise"))},
	},
	Metadata: "internal/grpc/service.go",
}

// RegisterExecutorServer registers impl as the handler for the Executor
// service on s, the gob-codec counterpart of a protoc-generated
// RegisterXxxServer function.
func RegisterExecutorServer(s *grpc.Server, impl routing.ExecutorClient) {
	s.RegisterService(&serviceDesc, executorServer{impl: impl})
}
