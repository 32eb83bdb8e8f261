package grpc

import (
	"fmt"
	"net"

	"github.com/oriys/workerexec/internal/logging"
	"github.com/oriys/workerexec/internal/observability"
	"github.com/oriys/workerexec/internal/routing"
	"google.golang.org/grpc"
)

// Server is the network front door for one executor process, wrapping a
// real grpc.Server the way oriys-nova's internal/grpc.Server wraps the
// generated novapb service, minus the protoc-generated types this module
// replaces with the gob codec in codec.go.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
}

// NewServer constructs a Server dispatching the Executor service to impl
// (normally a *workerservice.Service, invoked in-process for workers this
// executor owns).
func NewServer(impl routing.ExecutorClient) *Server {
	s := grpc.NewServer(
		grpc.ForceServerCodec(gobCodec{}),
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor()),
	)
	RegisterExecutorServer(s, impl)
	return &Server{grpcServer: s}
}

// Start binds addr and begins serving in the background, returning once the
// listener is ready so callers can read back the resolved address (useful
// when addr uses port 0 in tests).
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc: listen %s: %w", addr, err)
	}
	s.listener = lis

	logging.Op().Info("executor grpc server started", "addr", lis.Addr().String())

	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			logging.Op().Error("executor grpc server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listener address, valid after Start succeeds.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully drains in-flight RPCs before returning.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
