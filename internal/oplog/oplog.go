// Package oplog implements the per-worker append-only journal (spec.md
// §4.1): a buffered, replicated log with bounded in-memory staging,
// inline/external payload splitting, and a replica-wait fence used before
// publishing externally visible results.
//
// Staging and commit batching is grounded on
// internal/executor/invocation_log_batcher.go's buffer-then-flush shape,
// generalized from "batch invocation log rows to Postgres" to "batch oplog
// entries to IndexedStorage". Exact boundary semantics (when add triggers a
// commit, how wait_for_replicas clamps its argument, the upload_payload
// path format) are resolved from original_source's oplog/primary.rs rather
// than guessed, since spec.md §9 leaves them as open questions to verify.
package oplog

import (
	"context"
	"crypto/md5"
	"fmt"
	"sync"
	"time"

	"github.com/oriys/workerexec/internal/domain"
	"github.com/oriys/workerexec/internal/logging"
	"github.com/oriys/workerexec/internal/storage/blob"
	"github.com/oriys/workerexec/internal/storage/indexed"
)

// Config bounds the staging buffer and payload-externalization threshold.
type Config struct {
	MaxOperationsBeforeCommit uint64
	MaxPayloadSize            int
}

// DefaultConfig matches the teacher's batcher defaults in spirit: generous
// enough to amortize round trips, small enough to bound staged data loss
// on crash.
func DefaultConfig() Config {
	return Config{
		MaxOperationsBeforeCommit: 128,
		MaxPayloadSize:            1 << 20, // 1 MiB, matches spec.md's worked example
	}
}

// Oplog is a single worker's durable journal handle. It is shared between
// the worker instance, its recovery driver, and any replica-wait caller
// (spec.md §3 "Ownership"). Oplog has no Close of its own: holders go
// through oplogsvc.Handle, whose Close releases that holder's reference to
// the registry slot.
type Oplog struct {
	mu sync.Mutex

	key     string
	account domain.AccountId
	worker  domain.WorkerId
	storage indexed.Storage
	blobs   blob.Storage
	cfg     Config
	replicas int

	buffer          []domain.OplogEntry
	lastOplogIdx    domain.OplogIndex
	lastCommittedIdx domain.OplogIndex
}

// Key computes the indexed-storage stream key for a worker, matching the
// original's "worker:oplog:<component>:<name>" redis-key convention.
func Key(id domain.WorkerId) string {
	return fmt.Sprintf("worker:oplog:%s:%s", id.ComponentID, id.WorkerName)
}

// New constructs an Oplog handle over an already-created backing stream
// whose last committed index is lastCommittedIdx. Lifecycle (single-open-
// per-worker, scoped release on last drop) is managed by the caller; see
// internal/oplogsvc.
func New(storage indexed.Storage, blobs blob.Storage, account domain.AccountId, worker domain.WorkerId, lastCommittedIdx domain.OplogIndex, cfg Config) *Oplog {
	if cfg.MaxOperationsBeforeCommit == 0 || cfg.MaxPayloadSize == 0 {
		d := DefaultConfig()
		if cfg.MaxOperationsBeforeCommit == 0 {
			cfg.MaxOperationsBeforeCommit = d.MaxOperationsBeforeCommit
		}
		if cfg.MaxPayloadSize == 0 {
			cfg.MaxPayloadSize = d.MaxPayloadSize
		}
	}
	return &Oplog{
		key:              Key(worker),
		account:          account,
		worker:           worker,
		storage:          storage,
		blobs:            blobs,
		cfg:              cfg,
		replicas:         storage.NumberOfReplicas(),
		lastOplogIdx:     lastCommittedIdx,
		lastCommittedIdx: lastCommittedIdx,
	}
}

// WorkerId returns the identity this oplog belongs to.
func (o *Oplog) WorkerId() domain.WorkerId { return o.worker }

// Add stages entry in the in-memory buffer and advances the staged index
// unconditionally. A commit is triggered first when the post-append buffer
// length exceeds MaxOperationsBeforeCommit — matching the original's
// append-then-check-then-advance ordering exactly, so boundary tests at
// exactly max and max-1 behave identically.
func (o *Oplog) Add(ctx context.Context, entry domain.OplogEntry) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.buffer = append(o.buffer, entry)
	if uint64(len(o.buffer)) > o.cfg.MaxOperationsBeforeCommit {
		if err := o.commitLocked(ctx); err != nil {
			return err
		}
	}
	o.lastOplogIdx = o.lastOplogIdx.Next()
	return nil
}

// Commit flushes the staged buffer to the backing stream. Any backend error
// here is fatal to the worker (spec.md §4.1 "Fail fast"): the caller must
// tear the worker down rather than continue with a buffer that may be
// partially flushed.
func (o *Oplog) Commit(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.commitLocked(ctx)
}

func (o *Oplog) commitLocked(ctx context.Context) error {
	if len(o.buffer) == 0 {
		return nil
	}
	entries := o.buffer
	o.buffer = nil
	for _, entry := range entries {
		idx := o.lastCommittedIdx.Next()
		data, err := EncodeEntry(entry)
		if err != nil {
			return fmt.Errorf("oplog: encode entry for %s: %w", o.key, err)
		}
		if err := o.storage.Append(ctx, indexed.NamespaceOpLog, o.key, uint64(idx), data); err != nil {
			return fmt.Errorf("oplog: append entry for %s: %w", o.key, err)
		}
		o.lastCommittedIdx = idx
	}
	return nil
}

// CurrentIndex returns the staged view of the log's tail (last_oplog_idx),
// which may be ahead of the last committed index.
func (o *Oplog) CurrentIndex() domain.OplogIndex {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastOplogIdx
}

// Read returns the entry at idx from the backing stream. Only valid for
// idx <= last committed index; staged-but-uncommitted entries are not
// readable, matching spec.md §4.1.
func (o *Oplog) Read(ctx context.Context, idx domain.OplogIndex) (domain.OplogEntry, error) {
	raw, err := o.storage.Read(ctx, indexed.NamespaceOpLog, o.key, uint64(idx), uint64(idx))
	if err != nil {
		return domain.OplogEntry{}, fmt.Errorf("oplog: read %s@%d: %w", o.key, idx, err)
	}
	if len(raw) == 0 {
		return domain.OplogEntry{}, fmt.Errorf("oplog: no entry at %s@%d", o.key, idx)
	}
	return decodeEntry(raw[0])
}

// Length returns the number of entries currently present in the backing
// stream (committed entries only).
func (o *Oplog) Length(ctx context.Context) (uint64, error) {
	n, err := o.storage.Length(ctx, indexed.NamespaceOpLog, o.key)
	if err != nil {
		return 0, fmt.Errorf("oplog: length %s: %w", o.key, err)
	}
	return n, nil
}

// DropPrefix erases entries with index <= lastDropped. If the stream is
// left empty, it is deleted outright (spec.md §4.1, §8). Both add/commit
// and drop_prefix are serialized under the same mutex, resolving spec.md
// §9's open question about their interaction.
func (o *Oplog) DropPrefix(ctx context.Context, lastDropped domain.OplogIndex) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.storage.DropPrefix(ctx, indexed.NamespaceOpLog, o.key, uint64(lastDropped)); err != nil {
		return fmt.Errorf("oplog: drop_prefix %s: %w", o.key, err)
	}
	remaining, err := o.storage.Length(ctx, indexed.NamespaceOpLog, o.key)
	if err != nil {
		return fmt.Errorf("oplog: length after drop_prefix %s: %w", o.key, err)
	}
	if remaining == 0 {
		if err := o.storage.Delete(ctx, indexed.NamespaceOpLog, o.key); err != nil {
			return fmt.Errorf("oplog: delete empty stream %s: %w", o.key, err)
		}
	}
	return nil
}

// WaitForReplicas commits any staged entries, then asks the backend to
// confirm min(n, configuredReplicas) replicas hold the tail. The clamp
// means callers cannot distinguish "fewer replicas configured" from
// "degraded" (spec.md §9, resolved in DESIGN.md).
func (o *Oplog) WaitForReplicas(ctx context.Context, n int, timeout time.Duration) bool {
	o.mu.Lock()
	if err := o.commitLocked(ctx); err != nil {
		o.mu.Unlock()
		logging.Op().Error("oplog commit before wait_for_replicas failed", "worker", o.key, "error", err)
		return false
	}
	clamped := n
	if clamped > o.replicas {
		clamped = o.replicas
	}
	o.mu.Unlock()

	observed, err := o.storage.WaitForReplicas(ctx, indexed.NamespaceOpLog, o.key, clamped, timeout)
	if err != nil {
		logging.Op().Error("wait_for_replicas failed", "worker", o.key, "error", err)
		return false
	}
	return observed == clamped
}

// UploadPayload externalizes data to blob storage when it exceeds
// MaxPayloadSize, returning an External payload descriptor; otherwise it
// returns an Inline copy. Path format matches spec.md §6 exactly:
// <HEX_MD5>/<payload_uuid> under the worker's OplogPayload namespace.
func (o *Oplog) UploadPayload(ctx context.Context, data []byte) (domain.OplogPayload, error) {
	if len(data) <= o.cfg.MaxPayloadSize {
		return domain.NewInlinePayload(data), nil
	}

	id := domain.NewPayloadID()
	payload := domain.NewExternalPayload(data, id)
	ns := blob.NewOplogPayloadNamespace(o.account, o.worker.WorkerName)
	if err := o.blobs.PutRaw(ctx, ns, payload.BlobPath(), data); err != nil {
		return domain.OplogPayload{}, fmt.Errorf("oplog: upload_payload %s: %w", o.key, err)
	}
	return payload, nil
}

// DownloadPayload inverts UploadPayload. External payloads not found in
// blob storage return domain.ErrPayloadNotFoundSentinel-compatible errors.
func (o *Oplog) DownloadPayload(ctx context.Context, payload domain.OplogPayload) ([]byte, error) {
	if !payload.External {
		cp := make([]byte, len(payload.Inline))
		copy(cp, payload.Inline)
		return cp, nil
	}

	ns := blob.NewOplogPayloadNamespace(o.account, o.worker.WorkerName)
	data, found, err := o.blobs.GetRaw(ctx, ns, payload.BlobPath())
	if err != nil {
		return nil, fmt.Errorf("oplog: download_payload %s: %w", o.key, err)
	}
	if !found {
		return nil, domain.ErrPayloadNotFoundSentinel
	}
	if md5.Sum(data) != payload.MD5 {
		return nil, fmt.Errorf("oplog: download_payload %s: md5 mismatch", o.key)
	}
	return data, nil
}
