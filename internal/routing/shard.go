// Package routing implements the ShardManager and inter-executor routing
// table (spec.md §4.5): consistent-hash assignment of workers to
// executors, a generation-numbered routing table swapped atomically, and
// the call_worker_executor retry loop that resolves a Target to one or
// more ExecutorClients and retries on stale-shard/connection failures.
//
// The xxhash-based assignment function and the atomic-swap routing-table
// shape are grounded on internal/cluster/router.go's registry-sync pattern
// (mined before that package was deleted, see DESIGN.md) generalized from
// node-address sharding to domain.WorkerId shard assignment.
package routing

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/oriys/workerexec/internal/domain"
)

// ShardID identifies one bucket of the shard space [0, N).
type ShardID uint32

// ShardManager computes the shard a WorkerId belongs to under a fixed
// shard count (spec.md §4.5 "A worker's shard is hash(worker_id) mod N").
type ShardManager struct {
	count uint32
}

// NewShardManager constructs a manager over shardCount shards. A
// non-positive shardCount is clamped to 1.
func NewShardManager(shardCount int) *ShardManager {
	if shardCount <= 0 {
		shardCount = 1
	}
	return &ShardManager{count: uint32(shardCount)}
}

// ShardCount reports N.
func (m *ShardManager) ShardCount() int { return int(m.count) }

// AssignShard computes hash(worker_id) mod N.
func (m *ShardManager) AssignShard(id domain.WorkerId) ShardID {
	h := xxhash.Sum64String(id.String())
	return ShardID(h % uint64(m.count))
}

// Table maps each shard to the address of the executor currently owning
// it, tagged with a generation number that increases every time the
// assignment changes. A stale generation lets a caller detect that its
// cached copy needs refreshing without comparing the whole map.
type Table struct {
	Generation uint64
	Shards     map[ShardID]string // shard -> executor address
}

// Owner returns the executor address that owns shard, or "" if unassigned.
func (t *Table) Owner(shard ShardID) string {
	if t == nil {
		return ""
	}
	return t.Shards[shard]
}

// RoutingTable is the atomically-swappable holder for the current Table
// (spec.md §5 "Routing-table cache is atomically swappable").
type RoutingTable struct {
	current atomic.Pointer[Table]
}

// NewRoutingTable constructs an empty table at generation 0.
func NewRoutingTable() *RoutingTable {
	rt := &RoutingTable{}
	rt.current.Store(&Table{Shards: make(map[ShardID]string)})
	return rt
}

// Load returns the currently active Table. Never nil.
func (r *RoutingTable) Load() *Table {
	return r.current.Load()
}

// Swap atomically replaces the active Table with a freshly computed one
// carrying generation+1.
func (r *RoutingTable) Swap(shards map[ShardID]string) *Table {
	next := &Table{
		Generation: r.current.Load().Generation + 1,
		Shards:     shards,
	}
	r.current.Store(next)
	return next
}

// OwnerOf resolves a worker to the executor address owning its shard.
func (r *RoutingTable) OwnerOf(mgr *ShardManager, id domain.WorkerId) (ShardID, string) {
	shard := mgr.AssignShard(id)
	return shard, r.Load().Owner(shard)
}
