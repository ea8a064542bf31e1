package partition

import "testing"

func TestRetryTokenRoundTrip(t *testing.T) {
	p := newTestPartition(t)

	const windowIdx = 7
	issuedAt := int64(windowIdx * RetryKeyWindowMs)
	odcid := []byte{0x83, 0x94, 0xc8, 0xf0, 0x3e, 0x51, 0x57, 0x08}

	token, err := p.GenerateRetryToken(issuedAt, odcid)
	if err != nil {
		t.Fatalf("GenerateRetryToken: %v", err)
	}

	got, ok := p.ValidateRetryToken(token)
	if !ok {
		t.Fatal("expected freshly issued token to validate")
	}
	if string(got) != string(odcid) {
		t.Fatalf("recovered odcid = %x, want %x", got, odcid)
	}
	if c := p.PerfCounterGet(CounterRetryTokenValidated); c != 1 {
		t.Fatalf("CounterRetryTokenValidated = %d, want 1", c)
	}
}

func TestRetryTokenRejectedAfterWindowExpiry(t *testing.T) {
	p := newTestPartition(t)

	const windowIdx = 20
	issuedAt := int64(windowIdx * RetryKeyWindowMs)
	odcid := []byte{1, 2, 3, 4}

	token, err := p.GenerateRetryToken(issuedAt, odcid)
	if err != nil {
		t.Fatalf("GenerateRetryToken: %v", err)
	}

	// Roll the partition two full windows forward so neither retry-key
	// slot still covers the issuing window.
	p.GetCurrentRetryKey(int64((windowIdx + 2) * RetryKeyWindowMs))

	if _, ok := p.ValidateRetryToken(token); ok {
		t.Fatal("expected stale token to be rejected")
	}
	if c := p.PerfCounterGet(CounterRetryTokenRejected); c != 1 {
		t.Fatalf("CounterRetryTokenRejected = %d, want 1", c)
	}
}

func TestRetryTokenRejectedOnTamper(t *testing.T) {
	p := newTestPartition(t)

	issuedAt := int64(3 * RetryKeyWindowMs)
	token, err := p.GenerateRetryToken(issuedAt, []byte{9, 9, 9})
	if err != nil {
		t.Fatalf("GenerateRetryToken: %v", err)
	}

	tampered := append([]byte(nil), token...)
	tampered[retryTokenHeaderSize] ^= 0xFF

	if _, ok := p.ValidateRetryToken(tampered); ok {
		t.Fatal("expected tampered token to be rejected")
	}
}
