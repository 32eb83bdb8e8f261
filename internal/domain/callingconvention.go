package domain

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// CallingConvention selects how invoke_and_await packs and unpacks a guest
// export's arguments (spec.md §8 "CallingConvention proto ↔ domain:
// identity"). Component is the WIT-typed convention every operation in
// this runtime actually uses; Stdio is carried so the wire round trip
// below never has to special-case a value it hasn't seen.
type CallingConvention int32

const (
	CallingConventionComponent CallingConvention = 0
	CallingConventionStdio     CallingConvention = 1
)

func (c CallingConvention) String() string {
	if c == CallingConventionStdio {
		return "Stdio"
	}
	return "Component"
}

// GobEncode crosses the wire as the bytes of a protobuf
// wrapperspb.Int32Value rather than a bare int, so every CallingConvention
// carried through the executor gRPC codec (internal/grpc/codec.go's
// gob-based encoding.Codec) round-trips through an actual protobuf
// message, not just a Go-native encoding.
func (c CallingConvention) GobEncode() ([]byte, error) {
	return proto.Marshal(wrapperspb.Int32(int32(c)))
}

// GobDecode reverses GobEncode.
func (c *CallingConvention) GobDecode(data []byte) error {
	var w wrapperspb.Int32Value
	if err := proto.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = CallingConvention(w.GetValue())
	return nil
}
