// Package grpc exposes internal/routing's ExecutorClient surface as a
// real google.golang.org/grpc service, the network counterpart to
// internal/workerservice's in-process implementation of the same interface.
// There is no .proto-generated client here: message framing uses a
// hand-rolled gob codec instead of protobuf, since every request/response
// type in internal/routing is a plain struct gob already round-trips
// without generated marshal code.
package grpc

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// gobCodec implements encoding.Codec (google.golang.org/grpc/encoding) over
// encoding/gob instead of protobuf, grounded on the same "swap the wire
// format, keep the RPC plumbing" shape as oriys-nova's internal/grpc server,
// minus the protoc-generated novapb types this module has no equivalent of.
type gobCodec struct{}

func (gobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("grpc: gob marshal: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("grpc: gob unmarshal: %w", err)
	}
	return nil
}

func (gobCodec) Name() string {
	return "gob"
}
