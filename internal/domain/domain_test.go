package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestOplogIndexNext(t *testing.T) {
	var idx OplogIndex = 1
	if got := idx.Next(); got != 2 {
		t.Fatalf("Next() = %d, want 2", got)
	}
}

func TestOplogIndexRangeEnd(t *testing.T) {
	cases := []struct {
		start OplogIndex
		n     uint64
		want  OplogIndex
	}{
		{1, 1, 1},
		{1, 5, 5},
		{10, 0, 10},
	}
	for _, c := range cases {
		if got := c.start.RangeEnd(c.n); got != c.want {
			t.Errorf("RangeEnd(%d) from %d = %d, want %d", c.n, c.start, got, c.want)
		}
	}
}

func TestOplogPayloadBlobPath(t *testing.T) {
	id := PayloadID(uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	p := NewExternalPayload([]byte("hello world"), id)
	if !p.External {
		t.Fatal("expected external payload")
	}
	path := p.BlobPath()
	if path != p.HexMD5()+"/"+id.String() {
		t.Fatalf("unexpected blob path: %s", path)
	}
	if len(p.HexMD5()) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(p.HexMD5()))
	}
}

func TestWorkerErrorIs(t *testing.T) {
	err := NewWorkerNotFound(WorkerId{WorkerName: "w1"})
	if err.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
	var target error = &WorkerError{Code: ErrWorkerNotFound}
	if !err.Is(target) {
		t.Fatal("expected Is match on WorkerNotFound code")
	}
}
