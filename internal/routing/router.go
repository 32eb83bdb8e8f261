package routing

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oriys/workerexec/internal/domain"
	"github.com/oriys/workerexec/internal/logging"
)

// Dialer resolves an executor address to a live ExecutorClient. Router
// never closes or caches the connections itself (spec.md §5: the routing
// cache holds only addresses) and calls the Dialer on every attempt; the
// Dialer implementation owns connection lifetime. internal/grpc.Dial opens
// a new connection each time it is called.
type Dialer func(address string) (ExecutorClient, error)

// Invalidator is notified when a response indicates the cached routing
// table is stale, so it can refresh before the next retry attempt. The
// Router itself has no opinion on how a fresh table is obtained (it may
// come from a control-plane RPC, a gossip protocol, or a static file) —
// that policy lives entirely in the Invalidator the caller supplies.
type Invalidator func(ctx context.Context)

// Config bounds the call_worker_executor retry loop (spec.md §4.5 step 2).
type Config struct {
	RetryBudget  int
	RetryBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{RetryBudget: 3, RetryBackoff: 50 * time.Millisecond}
}

// Router resolves a Target to one or more ExecutorClients against the
// current RoutingTable and drives the retry-on-stale-routing loop
// (spec.md §4.5).
type Router struct {
	shards     *ShardManager
	table      *RoutingTable
	dial       Dialer
	invalidate Invalidator
	cfg        Config
}

// New constructs a Router. invalidate may be nil, in which case a stale
// response is retried against the same table after backing off (useful in
// tests with a single static table).
func New(shards *ShardManager, table *RoutingTable, dial Dialer, invalidate Invalidator, cfg Config) *Router {
	return &Router{shards: shards, table: table, dial: dial, invalidate: invalidate, cfg: cfg}
}

// Table exposes the underlying RoutingTable for use by callers that need
// to inspect or update shard assignments directly.
func (r *Router) Table() *RoutingTable { return r.table }

// Shards exposes the ShardManager for assignment queries outside the
// retry loop.
func (r *Router) Shards() *ShardManager { return r.shards }

// resolveOne returns the single executor address a WorkerId/RandomExecutor
// Target selects against the current table.
func (r *Router) resolveOne(target Target) (string, error) {
	tbl := r.table.Load()
	switch target.Kind {
	case TargetWorkerID:
		shard := r.shards.AssignShard(target.WorkerId)
		addr := tbl.Owner(shard)
		if addr == "" {
			return "", fmt.Errorf("routing: no executor owns shard %d", shard)
		}
		return addr, nil
	case TargetRandomExecutor:
		addrs := distinctAddrs(tbl)
		if len(addrs) == 0 {
			return "", errors.New("routing: no executors known")
		}
		return addrs[rand.Intn(len(addrs))], nil
	default:
		return "", fmt.Errorf("routing: resolveOne called with fan-out target kind %d", target.Kind)
	}
}

func distinctAddrs(tbl *Table) []string {
	seen := make(map[string]struct{})
	var addrs []string
	for _, addr := range tbl.Shards {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		addrs = append(addrs, addr)
	}
	return addrs
}

// isStaleRoutingError reports whether err indicates the cached routing
// table needs refreshing before retrying (spec.md §4.5 step 2 "Invalid
// shard/Connection failure responses").
func isStaleRoutingError(gerr *GolemError, dialErr error) bool {
	if dialErr != nil {
		return true
	}
	return gerr != nil && gerr.Code == domain.ErrInvalidShardId
}

func (r *Router) backoff(ctx context.Context, attempt int) {
	if r.invalidate != nil {
		r.invalidate(ctx)
	}
	backoff := r.cfg.RetryBackoff * time.Duration(1<<uint(attempt))
	select {
	case <-ctx.Done():
	case <-time.After(backoff):
	}
}

// Call dispatches call against a WorkerId or RandomExecutor target,
// retrying up to the configured budget on stale-shard or
// connection-failure responses (spec.md §4.5 step 2). Callers targeting
// AllExecutors must use CallAll instead — Go's lack of partial generic
// type inference on closures makes a single entry point for both shapes
// more awkward than two small ones.
func Call[R any](ctx context.Context, r *Router, target Target, call func(ctx context.Context, client ExecutorClient) (R, *GolemError)) (R, error) {
	var zero R
	if target.Kind == TargetAllExecutors {
		return zero, errors.New("routing: Call does not support TargetAllExecutors, use CallAll")
	}

	for attempt := 0; attempt <= r.cfg.RetryBudget; attempt++ {
		addr, err := r.resolveOne(target)
		if err != nil {
			return zero, err
		}

		client, dialErr := r.dial(addr)
		if dialErr != nil {
			if attempt == r.cfg.RetryBudget {
				return zero, dialErr
			}
			logging.Op().Warn("routing: dial failed, retrying", "address", addr, "attempt", attempt, "error", dialErr)
			r.backoff(ctx, attempt)
			continue
		}

		resp, gerr := call(ctx, client)
		if gerr == nil {
			return resp, nil
		}
		if !isStaleRoutingError(gerr, nil) {
			return zero, gerr.AsError()
		}
		if attempt == r.cfg.RetryBudget {
			return zero, gerr.AsError()
		}
		logging.Op().Warn("routing: stale shard, retrying", "attempt", attempt, "shard_error", gerr.Code)
		r.backoff(ctx, attempt)
	}

	return zero, fmt.Errorf("routing: retry budget exhausted for target %v", target)
}

// CallAll fans call out to every distinct executor in the current table
// concurrently via errgroup, short-circuiting on the first failure from any
// executor (a stale-shard response included; fan-out calls are not
// retried), and folds successful responses with combine (spec.md §4.5 step 2 "aggregate per-response
// results and combine via map_response").
func CallAll[R any](ctx context.Context, r *Router, call func(ctx context.Context, client ExecutorClient) (R, *GolemError), combine func([]R) (R, error)) (R, error) {
	var zero R
	tbl := r.table.Load()
	addrs := distinctAddrs(tbl)
	if len(addrs) == 0 {
		return zero, errors.New("routing: no executors known")
	}

	results := make([]R, len(addrs))
	g, gctx := errgroup.WithContext(ctx)
	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			client, err := r.dial(addr)
			if err != nil {
				return fmt.Errorf("routing: dial %s: %w", addr, err)
			}
			resp, gerr := call(gctx, client)
			if gerr != nil {
				return gerr.AsError()
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return zero, err
	}
	return combine(results)
}
