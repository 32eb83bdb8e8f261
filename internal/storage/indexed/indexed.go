// Package indexed implements the indexed-storage contract (spec.md §6): an
// ordered map of (stream-key -> (u64 -> bytes)) with append-at-index,
// range-read, pattern scan, and replica-wait operations. The Oplog is built
// entirely on top of this contract; it never reinterprets the value bytes.
package indexed

import (
	"context"
	"errors"
	"time"
)

// Namespace partitions the key space. The oplog lives in NamespaceOpLog;
// cron-style scheduling (not otherwise specified by this system) and
// worker key-value state share the remaining two namespaces the contract
// reserves.
type Namespace string

const (
	NamespaceOpLog    Namespace = "oplog"
	NamespaceSchedule Namespace = "schedule"
	NamespaceKeyValue Namespace = "keyvalue"
)

// ErrNotFound is returned by Read/FirstIndex/LastIndex when the stream key
// does not exist.
var ErrNotFound = errors.New("indexed: stream not found")

// Storage is the indexed-storage contract implementers provide. Encoding of
// value is a self-describing binary record that Storage implementations
// MUST NOT reinterpret.
type Storage interface {
	// Append writes value at idx in the stream (ns, key). Callers pass the
	// next index for the stream (len+1 for a 1-based stream). The Redis
	// backend rejects an idx at or below the stream's last index; the
	// memory and Postgres backends store the value at idx as given,
	// replacing any entry already there.
	Append(ctx context.Context, ns Namespace, key string, idx uint64, value []byte) error

	// Read returns the values for indices in [from, to] (inclusive), in
	// order. Returns ErrNotFound if the stream does not exist.
	Read(ctx context.Context, ns Namespace, key string, from, to uint64) ([][]byte, error)

	// FirstIndex returns the lowest index still present, or 0 if empty.
	FirstIndex(ctx context.Context, ns Namespace, key string) (uint64, error)

	// LastIndex returns the highest committed index, or 0 if empty.
	LastIndex(ctx context.Context, ns Namespace, key string) (uint64, error)

	// Length returns the number of entries currently present.
	Length(ctx context.Context, ns Namespace, key string) (uint64, error)

	// Exists reports whether the stream has any entries.
	Exists(ctx context.Context, ns Namespace, key string) (bool, error)

	// Delete removes the entire stream.
	Delete(ctx context.Context, ns Namespace, key string) error

	// DropPrefix erases entries with index <= upTo. It does not delete the
	// stream itself even if the result is empty; callers (the Oplog) decide
	// whether to follow up with Delete.
	DropPrefix(ctx context.Context, ns Namespace, key string, upTo uint64) error

	// Scan pages through stream keys under ns matching pattern, a glob-style
	// prefix/substring pattern. A returned cursor of 0 signals completion.
	Scan(ctx context.Context, ns Namespace, pattern string, cursor uint64, count int) (nextCursor uint64, keys []string, err error)

	// WaitForReplicas blocks (up to timeout) until n replicas are observed
	// to hold the tail of (ns, key), returning the number actually observed.
	WaitForReplicas(ctx context.Context, ns Namespace, key string, n int, timeout time.Duration) (nObserved int, err error)

	// NumberOfReplicas returns the configured replication factor.
	NumberOfReplicas() int

	Close() error
}
