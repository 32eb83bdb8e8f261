// Package ratelimit implements the ResourceLimiterAccount abstraction
// (spec.md §3 DATA MODEL supplement): a per-account fuel budget the
// epoch callback borrows against when a worker's local fuel is exhausted
// (spec.md §4.3 step 4 "borrows more from the account's budget").
//
// The token-bucket math (refill proportional to elapsed time, clamp to
// burst size) is the same shape as the teacher's Lua-scripted request-rate
// limiter, adapted from Redis-backed API request throttling to an
// in-memory fuel budget: every account in this runtime lives in the same
// process as the worker drawing on it, so there is no round trip to save.
package ratelimit

import (
	"sync"
	"time"

	"github.com/oriys/workerexec/internal/domain"
	"github.com/oriys/workerexec/internal/worker"
)

// TierConfig holds the fuel budget for one account tier: BurstSize is the
// maximum fuel an account can hold at once, RefillPerSecond is how much is
// added back per second up to that cap.
type TierConfig struct {
	BurstSize       uint64
	RefillPerSecond float64
}

// DefaultTier is used for any account without an explicit tier assignment.
func DefaultTier() TierConfig {
	return TierConfig{BurstSize: 1_000_000, RefillPerSecond: 100_000}
}

// Account is a single account's fuel-borrowing bucket. It satisfies the
// guest epoch callback's BorrowFuel/BorrowFuelSync contract referenced by
// internal/worker.
type Account struct {
	mu       sync.Mutex
	cfg      TierConfig
	tokens   float64
	lastFill time.Time
}

func newAccount(cfg TierConfig) *Account {
	return &Account{cfg: cfg, tokens: float64(cfg.BurstSize), lastFill: time.Now()}
}

func (a *Account) refillLocked(now time.Time) {
	elapsed := now.Sub(a.lastFill).Seconds()
	if elapsed <= 0 {
		return
	}
	a.tokens += elapsed * a.cfg.RefillPerSecond
	if a.tokens > float64(a.cfg.BurstSize) {
		a.tokens = float64(a.cfg.BurstSize)
	}
	a.lastFill = now
}

// BorrowFuel attempts to withdraw amount units of fuel from the account's
// budget without blocking, returning how much was actually granted (which
// may be less than amount, including zero, if the budget is exhausted).
func (a *Account) BorrowFuel(amount uint64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refillLocked(time.Now())

	if a.tokens <= 0 {
		return 0
	}
	granted := amount
	if float64(granted) > a.tokens {
		granted = uint64(a.tokens)
	}
	a.tokens -= float64(granted)
	return granted
}

// BorrowFuelSync is BorrowFuel with an upper-bound wait: it polls the
// budget at a fixed interval until amount can be fully granted or timeout
// elapses, returning whatever was available at that point. The worker
// lifecycle uses this only when a full grant is required to make forward
// progress (spec.md's epoch callback fuel-exhaustion branch).
func (a *Account) BorrowFuelSync(amount uint64, timeout time.Duration) uint64 {
	deadline := time.Now().Add(timeout)
	if granted := a.BorrowFuel(amount); granted == amount {
		return granted
	}
	const pollInterval = 5 * time.Millisecond
	for time.Now().Before(deadline) {
		time.Sleep(pollInterval)
		if granted := a.BorrowFuel(amount); granted == amount {
			return granted
		}
	}
	return a.BorrowFuel(amount)
}

// Registry holds one Account per domain.AccountId, seating a fresh account
// on first borrow (spec.md §4.3 step 5 "borrow an initial slice to seat
// the account in the limiter cache").
type Registry struct {
	mu       sync.Mutex
	accounts map[domain.AccountId]*Account
	tiers    map[domain.AccountId]TierConfig
}

// NewRegistry constructs an empty account registry.
func NewRegistry() *Registry {
	return &Registry{
		accounts: make(map[domain.AccountId]*Account),
		tiers:    make(map[domain.AccountId]TierConfig),
	}
}

// SetTier assigns a non-default fuel budget for account. Must be called
// before the account's first Account() lookup to take effect.
func (r *Registry) SetTier(account domain.AccountId, cfg TierConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiers[account] = cfg
}

// Account returns the shared Account for account, constructing one seeded
// at full budget on first access.
func (r *Registry) Account(account domain.AccountId) *Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	if acct, ok := r.accounts[account]; ok {
		return acct
	}
	cfg, ok := r.tiers[account]
	if !ok {
		cfg = DefaultTier()
	}
	acct := newAccount(cfg)
	r.accounts[account] = acct
	return acct
}

// WorkerAccounts adapts the Registry to worker.Accounts. *Account already
// implements worker.FuelAccount; Go interface satisfaction needs the
// declared return type to match exactly, so Account's concrete *Account
// return can't stand in for worker.Accounts on its own, hence this thin
// wrapper rather than changing Account's signature.
type WorkerAccounts struct {
	Registry *Registry
}

func (a WorkerAccounts) Account(id domain.AccountId) worker.FuelAccount {
	return a.Registry.Account(id)
}
