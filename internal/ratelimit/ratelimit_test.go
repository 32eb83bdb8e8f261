package ratelimit

import (
	"testing"
	"time"

	"github.com/oriys/workerexec/internal/domain"
)

func TestBorrowFuelGrantsUpToBurstSize(t *testing.T) {
	a := newAccount(TierConfig{BurstSize: 100, RefillPerSecond: 10})
	if got := a.BorrowFuel(40); got != 40 {
		t.Fatalf("expected full grant of 40, got %d", got)
	}
	if got := a.BorrowFuel(1000); got != 60 {
		t.Fatalf("expected partial grant of remaining 60, got %d", got)
	}
	if got := a.BorrowFuel(1); got != 0 {
		t.Fatalf("expected no fuel left to grant, got %d", got)
	}
}

func TestBorrowFuelRefillsOverTime(t *testing.T) {
	a := newAccount(TierConfig{BurstSize: 100, RefillPerSecond: 1000})
	a.BorrowFuel(100)
	if got := a.BorrowFuel(1); got != 0 {
		t.Fatalf("expected exhausted budget immediately, got %d", got)
	}
	time.Sleep(20 * time.Millisecond)
	if got := a.BorrowFuel(1); got == 0 {
		t.Fatal("expected some fuel to have refilled after a delay")
	}
}

func TestBorrowFuelSyncWaitsForFullGrant(t *testing.T) {
	a := newAccount(TierConfig{BurstSize: 10, RefillPerSecond: 1000})
	a.BorrowFuel(10)

	start := time.Now()
	got := a.BorrowFuelSync(5, 200*time.Millisecond)
	if got != 5 {
		t.Fatalf("expected a full grant of 5 once refilled, got %d", got)
	}
	if time.Since(start) >= 200*time.Millisecond {
		t.Fatal("expected the sync borrow to succeed well before the timeout")
	}
}

func TestBorrowFuelSyncReturnsPartialOnTimeout(t *testing.T) {
	a := newAccount(TierConfig{BurstSize: 10, RefillPerSecond: 0})
	a.BorrowFuel(10)

	got := a.BorrowFuelSync(5, 20*time.Millisecond)
	if got != 0 {
		t.Fatalf("expected no grant when the budget never refills, got %d", got)
	}
}

func TestRegistrySeatsAccountOnFirstAccess(t *testing.T) {
	r := NewRegistry()
	acctID := domain.AccountId("acct-1")
	a1 := r.Account(acctID)
	a2 := r.Account(acctID)
	if a1 != a2 {
		t.Fatal("expected the same Account instance across calls for the same account id")
	}
}

func TestRegistryHonorsConfiguredTier(t *testing.T) {
	r := NewRegistry()
	acctID := domain.AccountId("acct-tiered")
	r.SetTier(acctID, TierConfig{BurstSize: 5, RefillPerSecond: 0})

	a := r.Account(acctID)
	if got := a.BorrowFuel(100); got != 5 {
		t.Fatalf("expected the configured tier's burst size of 5 to cap the grant, got %d", got)
	}
}

func TestRegistryIsolatesDifferentAccounts(t *testing.T) {
	r := NewRegistry()
	a1 := r.Account(domain.AccountId("a1"))
	a2 := r.Account(domain.AccountId("a2"))

	a1.BorrowFuel(a1.cfg.BurstSize)
	if got := a2.BorrowFuel(1); got != 1 {
		t.Fatalf("expected account a2's budget to be unaffected by a1's borrow, got %d", got)
	}
}
