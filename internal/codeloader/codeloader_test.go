package codeloader

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/oriys/workerexec/internal/domain"
)

func TestRegisterThenGetRoundTrips(t *testing.T) {
	src, err := NewFSSource(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	id := uuid.New()
	meta := domain.ComponentMetadata{ComponentID: id, Version: 1, SizeBytes: 4, MemoryPagesInitial: 2}
	if err := src.Register(id, 1, []byte("wasm"), meta); err != nil {
		t.Fatal(err)
	}

	code, gotMeta, err := src.Get(context.Background(), id, 1)
	if err != nil {
		t.Fatal(err)
	}
	if string(code) != "wasm" {
		t.Fatalf("expected registered bytes back, got %q", code)
	}
	if gotMeta != meta {
		t.Fatalf("expected metadata round trip, got %+v", gotMeta)
	}
}

func TestGetUnknownComponentFails(t *testing.T) {
	src, err := NewFSSource(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := src.Get(context.Background(), uuid.New(), 1); err == nil {
		t.Fatal("expected an error for an unregistered component")
	}
}

func TestGetServesFromCacheWithoutRereadingDisk(t *testing.T) {
	dir := t.TempDir()
	src, err := NewFSSource(dir)
	if err != nil {
		t.Fatal(err)
	}
	id := uuid.New()
	meta := domain.ComponentMetadata{ComponentID: id, Version: 1}
	if err := src.Register(id, 1, []byte("v1"), meta); err != nil {
		t.Fatal(err)
	}
	if _, _, err := src.Get(context.Background(), id, 1); err != nil {
		t.Fatal(err)
	}

	src.mu.Lock()
	src.cache[componentKey(id, 1)] = []byte("cached-not-disk")
	src.mu.Unlock()

	code, _, err := src.Get(context.Background(), id, 1)
	if err != nil {
		t.Fatal(err)
	}
	if string(code) != "cached-not-disk" {
		t.Fatalf("expected the cached value to be served, got %q", code)
	}
}

func TestDifferentVersionsAreDistinctEntries(t *testing.T) {
	src, err := NewFSSource(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id := uuid.New()
	if err := src.Register(id, 1, []byte("v1"), domain.ComponentMetadata{Version: 1}); err != nil {
		t.Fatal(err)
	}
	if err := src.Register(id, 2, []byte("v2"), domain.ComponentMetadata{Version: 2}); err != nil {
		t.Fatal(err)
	}

	code1, _, err := src.Get(context.Background(), id, 1)
	if err != nil {
		t.Fatal(err)
	}
	code2, _, err := src.Get(context.Background(), id, 2)
	if err != nil {
		t.Fatal(err)
	}
	if string(code1) != "v1" || string(code2) != "v2" {
		t.Fatalf("expected distinct bytes per version, got %q and %q", code1, code2)
	}
}

func TestContentHashIsDeterministicAndSensitiveToInput(t *testing.T) {
	hash1 := ContentHash([]byte("hello"))
	hash2 := ContentHash([]byte("hello"))
	hash3 := ContentHash([]byte("world"))

	if hash1 != hash2 {
		t.Fatal("same content should produce same hash")
	}
	if hash1 == hash3 {
		t.Fatal("different content should produce different hash")
	}
	if len(hash1) != 64 {
		t.Fatalf("expected 64 char hex hash, got %d", len(hash1))
	}
}
