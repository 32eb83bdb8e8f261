package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// metadataCarrier adapts gRPC metadata to the otel TextMapCarrier interface
// so the composite W3C propagator configured in Init can extract and inject
// trace context across a routing call (spec.md §4.5 inter-executor calls
// carry the same trace the client request started).
type metadataCarrier metadata.MD

func (c metadataCarrier) Get(key string) string {
	vals := metadata.MD(c).Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (c metadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// UnaryServerInterceptor extracts an incoming trace context from gRPC
// metadata and wraps the call in a server span, replacing the teacher's
// net/http middleware now that this runtime's surface is gRPC-only
// (spec.md §1 scope).
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !Enabled() {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			md = metadata.MD{}
		}
		ctx = otel.GetTextMapPropagator().Extract(ctx, metadataCarrier(md))

		ctx, span := StartServerSpan(ctx, info.FullMethod,
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.method", info.FullMethod),
		)
		defer span.End()

		resp, err := handler(ctx, req)
		if err != nil {
			SetSpanError(span, err)
		} else {
			SetSpanOK(span)
		}
		return resp, err
	}
}

// UnaryClientInterceptor injects the current trace context into outgoing
// gRPC metadata, the client-side counterpart of UnaryServerInterceptor used
// by internal/routing's executor-to-executor calls.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if !Enabled() {
			return invoker(ctx, method, req, reply, cc, opts...)
		}

		md, ok := metadata.FromOutgoingContext(ctx)
		if !ok {
			md = metadata.MD{}
		} else {
			md = md.Copy()
		}

		ctx, span := StartSpan(ctx, method,
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.method", method),
		)
		defer span.End()

		otel.GetTextMapPropagator().Inject(ctx, metadataCarrier(md))
		ctx = metadata.NewOutgoingContext(ctx, md)

		err := invoker(ctx, method, req, reply, cc, opts...)
		if err != nil {
			SetSpanError(span, err)
		} else {
			SetSpanOK(span)
		}
		return err
	}
}
