package partition

import (
	"testing"
)

func newTestPartition(t *testing.T) *Partition {
	t.Helper()
	return New(0, 0, []byte("test-library-wide-base-secret-32"), nil)
}

func TestPoolAllocFreeRoundTrip(t *testing.T) {
	p := newTestPartition(t)
	c := p.ConnectionPool.Alloc()
	c.Generation = 7
	p.ConnectionPool.Free(c)

	c2 := p.ConnectionPool.Alloc()
	// sync.Pool does not guarantee reuse, so we only assert the pool hands
	// back a usable object of the right type, not necessarily the same one.
	c2.Generation = 9
	if c2.Generation != 9 {
		t.Fatal("pool object not writable after alloc")
	}
}

func TestPerfCounterAddAndSum(t *testing.T) {
	p1 := newTestPartition(t)
	p2 := New(1, 1, []byte("test-library-wide-base-secret-32"), nil)

	p1.PerfCounterAdd(CounterKeyUpdates, 3)
	p2.PerfCounterAdd(CounterKeyUpdates, 4)

	if got := p1.PerfCounterGet(CounterKeyUpdates); got != 3 {
		t.Fatalf("p1 counter = %d, want 3", got)
	}
	if got := SumPerfCounters([]*Partition{p1, p2}, CounterKeyUpdates); got != 7 {
		t.Fatalf("sum = %d, want 7", got)
	}
}

func TestRetryKeyWindowValidity(t *testing.T) {
	p := newTestPartition(t)

	const windowIdx = 100
	issuedAt := windowIdx * RetryKeyWindowMs
	key := p.GetCurrentRetryKey(issuedAt)
	if len(key) == 0 {
		t.Fatal("expected non-empty retry key")
	}

	// Still valid at the same timestamp it was issued for.
	got, ok := p.GetRetryKeyForTimestamp(issuedAt)
	if !ok {
		t.Fatal("expected key to validate at issuance timestamp")
	}
	if string(got) != string(key) {
		t.Fatal("expected matching key bytes")
	}

	// Advance one window: rotate forward, the issuing key should still be
	// retrievable as the "previous" slot.
	nextWindowStart := (windowIdx + 1) * RetryKeyWindowMs
	p.GetCurrentRetryKey(nextWindowStart)
	if _, ok := p.GetRetryKeyForTimestamp(issuedAt); !ok {
		t.Fatal("expected original window's key to still validate one window later")
	}

	// Advance two windows: the issuing key's window has fallen out of both
	// slots and must be rejected (§8).
	thirdWindowStart := (windowIdx + 2) * RetryKeyWindowMs
	p.GetCurrentRetryKey(thirdWindowStart)
	if _, ok := p.GetRetryKeyForTimestamp(issuedAt); ok {
		t.Fatal("expected original window's key to be rejected two windows later")
	}
}

func TestUpdateStatelessResetKeyAndGenerate(t *testing.T) {
	p := newTestPartition(t)

	if _, err := p.GenerateResetToken([]byte{1, 2, 3, 4}); err == nil {
		t.Fatal("expected error before reset key installed")
	}

	if err := p.UpdateStatelessResetKey(HashBlake2s128, []byte("reset-key-material")); err != nil {
		t.Fatalf("UpdateStatelessResetKey: %v", err)
	}

	token1, err := p.GenerateResetToken([]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("GenerateResetToken: %v", err)
	}
	if len(token1) != 16 {
		t.Fatalf("expected 16-byte token, got %d", len(token1))
	}

	token2, err := p.GenerateResetToken([]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("GenerateResetToken: %v", err)
	}
	if string(token1) != string(token2) {
		t.Fatal("expected deterministic reset token for the same connection id")
	}

	token3, err := p.GenerateResetToken([]byte{5, 6, 7, 8})
	if err != nil {
		t.Fatalf("GenerateResetToken: %v", err)
	}
	if string(token1) == string(token3) {
		t.Fatal("expected different reset tokens for different connection ids")
	}
}
