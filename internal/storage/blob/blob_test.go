package blob

import (
	"context"
	"testing"

	"github.com/oriys/workerexec/internal/domain"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()
	fs, err := NewFilesystemStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return map[string]Storage{
		"memory":     NewMemoryStorage(),
		"filesystem": fs,
	}
}

func TestStoragePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	ns := NewOplogPayloadNamespace("acct1", "w1")
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.PutRaw(ctx, ns, "ab/payload.bin", []byte("hello")); err != nil {
				t.Fatal(err)
			}
			got, ok, err := s.GetRaw(ctx, ns, "ab/payload.bin")
			if err != nil || !ok {
				t.Fatalf("get: ok=%v err=%v", ok, err)
			}
			if string(got) != "hello" {
				t.Fatalf("got %q", got)
			}
		})
	}
}

func TestStorageGetMissingReturnsFalse(t *testing.T) {
	ctx := context.Background()
	ns := NewCustomStorageNamespace("acct1")
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.GetRaw(ctx, ns, "nope")
			if err != nil {
				t.Fatal(err)
			}
			if ok {
				t.Fatal("expected missing object to report ok=false")
			}
		})
	}
}

func TestStorageRejectsPathEscape(t *testing.T) {
	ctx := context.Background()
	ns := NewCustomStorageNamespace("acct1")
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.PutRaw(ctx, ns, "../escape", []byte("x")); err == nil {
				t.Fatal("expected path escape to be rejected")
			}
		})
	}
}

func TestStorageListAndDeleteDir(t *testing.T) {
	ctx := context.Background()
	ns := NewInitialFileSystemNamespace("acct1")
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.PutRaw(ctx, ns, "root/a.txt", []byte("a")); err != nil {
				t.Fatal(err)
			}
			if err := s.PutRaw(ctx, ns, "root/b.txt", []byte("b")); err != nil {
				t.Fatal(err)
			}
			entries, err := s.ListDir(ctx, ns, "root")
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 2 {
				t.Fatalf("expected 2 entries, got %v", entries)
			}
			if err := s.DeleteDir(ctx, ns, "root"); err != nil {
				t.Fatal(err)
			}
			entries, err = s.ListDir(ctx, ns, "root")
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 0 {
				t.Fatalf("expected empty dir after delete, got %v", entries)
			}
		})
	}
}

func TestStorageCopy(t *testing.T) {
	ctx := context.Background()
	ns := NewCustomStorageNamespace("acct1")
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.PutRaw(ctx, ns, "src.bin", []byte("payload")); err != nil {
				t.Fatal(err)
			}
			if err := s.Copy(ctx, ns, "src.bin", "dst.bin"); err != nil {
				t.Fatal(err)
			}
			got, ok, err := s.GetRaw(ctx, ns, "dst.bin")
			if err != nil || !ok || string(got) != "payload" {
				t.Fatalf("copy result: ok=%v err=%v got=%q", ok, err, got)
			}
		})
	}
}

func TestStorageExistsTristate(t *testing.T) {
	ctx := context.Background()
	ns := NewCustomStorageNamespace("acct1")
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			kind, err := s.Exists(ctx, ns, "missing")
			if err != nil || kind != DoesNotExist {
				t.Fatalf("expected DoesNotExist, got %v err=%v", kind, err)
			}
			if err := s.PutRaw(ctx, ns, "file.bin", []byte("x")); err != nil {
				t.Fatal(err)
			}
			kind, err = s.Exists(ctx, ns, "file.bin")
			if err != nil || kind != IsFile {
				t.Fatalf("expected IsFile, got %v err=%v", kind, err)
			}
		})
	}
}

func TestNamespaceRootsAreDistinct(t *testing.T) {
	a := NewOplogPayloadNamespace(domain.AccountId("acct1"), "w1")
	b := NewOplogPayloadNamespace(domain.AccountId("acct1"), "w2")
	if a.Root() == b.Root() {
		t.Fatalf("expected distinct roots for distinct workers, got %q", a.Root())
	}
}
