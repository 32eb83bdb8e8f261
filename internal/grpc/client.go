package grpc

import (
	"context"

	"github.com/oriys/workerexec/internal/observability"
	"github.com/oriys/workerexec/internal/routing"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client implements routing.ExecutorClient over a real grpc.ClientConn
// dialed against another executor's gRPC address: a call whose target
// shard is owned by a remote executor is forwarded over this connection.
// internal/routing.Router calls its Dialer on every routed attempt, and
// Dial opens a new connection each time it is called.
type Client struct {
	cc *grpc.ClientConn
}

// Dial connects to addr and wraps the connection as an ExecutorClient,
// suitable for use directly as a routing.Dialer.
func Dial(addr string) (routing.ExecutorClient, error) {
	cc, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(gobCodec{})),
		grpc.WithChainUnaryInterceptor(observability.UnaryClientInterceptor()),
	)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.cc.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) *routing.GolemError {
	err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, req, resp)
	return decodeStatusErr(err)
}

func (c *Client) CreateWorker(ctx context.Context, req *routing.CreateWorkerRequest) (*routing.Ack, *routing.GolemError) {
	resp := new(routing.Ack)
	if gerr := c.invoke(ctx, "CreateWorker", req, resp); gerr != nil {
		return nil, gerr
	}
	return resp, nil
}

func (c *Client) DeleteWorker(ctx context.Context, req *routing.WorkerRef) (*routing.Ack, *routing.GolemError) {
	resp := new(routing.Ack)
	if gerr := c.invoke(ctx, "DeleteWorker", req, resp); gerr != nil {
		return nil, gerr
	}
	return resp, nil
}

func (c *Client) InvokeWorker(ctx context.Context, req *routing.InvokeRequest) (*routing.Ack, *routing.GolemError) {
	resp := new(routing.Ack)
	if gerr := c.invoke(ctx, "InvokeWorker", req, resp); gerr != nil {
		return nil, gerr
	}
	return resp, nil
}

func (c *Client) InvokeAndAwaitWorker(ctx context.Context, req *routing.InvokeRequest) (*routing.InvokeResponse, *routing.GolemError) {
	resp := new(routing.InvokeResponse)
	if gerr := c.invoke(ctx, "InvokeAndAwaitWorker", req, resp); gerr != nil {
		return nil, gerr
	}
	return resp, nil
}

func (c *Client) InterruptWorker(ctx context.Context, req *routing.InterruptRequest) (*routing.Ack, *routing.GolemError) {
	resp := new(routing.Ack)
	if gerr := c.invoke(ctx, "InterruptWorker", req, resp); gerr != nil {
		return nil, gerr
	}
	return resp, nil
}

func (c *Client) ResumeWorker(ctx context.Context, req *routing.WorkerRef) (*routing.Ack, *routing.GolemError) {
	resp := new(routing.Ack)
	if gerr := c.invoke(ctx, "ResumeWorker", req, resp); gerr != nil {
		return nil, gerr
	}
	return resp, nil
}

func (c *Client) UpdateWorker(ctx context.Context, req *routing.UpdateRequest) (*routing.Ack, *routing.GolemError) {
	resp := new(routing.Ack)
	if gerr := c.invoke(ctx, "UpdateWorker", req, resp); gerr != nil {
		return nil, gerr
	}
	return resp, nil
}

func (c *Client) GetWorkerMetadata(ctx context.Context, req *routing.WorkerRef) (*routing.WorkerMetadataResponse, *routing.GolemError) {
	resp := new(routing.WorkerMetadataResponse)
	if gerr := c.invoke(ctx, "GetWorkerMetadata", req, resp); gerr != nil {
		return nil, gerr
	}
	return resp, nil
}

func (c *Client) GetRunningWorkersMetadata(ctx context.Context, req *routing.ComponentRef) (*routing.WorkerMetadataListResponse, *routing.GolemError) {
	resp := new(routing.WorkerMetadataListResponse)
	if gerr := c.invoke(ctx, "GetRunningWorkersMetadata", req, resp); gerr != nil {
		return nil, gerr
	}
	return resp, nil
}

func (c *Client) GetWorkersMetadata(ctx context.Context, req *routing.ScanRequest) (*routing.WorkerMetadataListResponse, *routing.GolemError) {
	resp := new(routing.WorkerMetadataListResponse)
	if gerr := c.invoke(ctx, "GetWorkersMetadata", req, resp); gerr != nil {
		return nil, gerr
	}
	return resp, nil
}

func (c *Client) CompletePromise(ctx context.Context, req *routing.CompletePromiseRequest) (*routing.Ack, *routing.GolemError) {
	resp := new(routing.Ack)
	if gerr := c.invoke(ctx, "CompletePromise", req, resp); gerr != nil {
		return nil, gerr
	}
	return resp, nil
}

var _ routing.ExecutorClient = (*Client)(nil)
