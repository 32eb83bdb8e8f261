package domain

import (
	"bytes"
	"encoding/gob"
	"testing"
)

func TestCallingConventionProtoRoundTrip(t *testing.T) {
	for _, cc := range []CallingConvention{CallingConventionComponent, CallingConventionStdio} {
		encoded, err := cc.GobEncode()
		if err != nil {
			t.Fatalf("GobEncode(%v): %v", cc, err)
		}
		var decoded CallingConvention
		if err := decoded.GobDecode(encoded); err != nil {
			t.Fatalf("GobDecode(%v): %v", cc, err)
		}
		if decoded != cc {
			t.Fatalf("round trip mismatch: got %v, want %v", decoded, cc)
		}
	}
}

func TestCallingConventionGobStructField(t *testing.T) {
	type wrapper struct {
		Convention CallingConvention
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(wrapper{Convention: CallingConventionStdio}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out wrapper
	if err := gob.NewDecoder(&buf).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Convention != CallingConventionStdio {
		t.Fatalf("got %v, want %v", out.Convention, CallingConventionStdio)
	}
}
