package rdma

import "testing"

func TestSendRingBufferReserveReleaseRoundTrip(t *testing.T) {
	ring, err := NewSendRingBuffer(MinRingBufferSize)
	if err != nil {
		t.Fatalf("NewSendRingBuffer: %v", err)
	}

	offset, buf, err := ring.Reserve(4096)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(buf) != 4096 {
		t.Fatalf("reserved buf len = %d, want 4096", len(buf))
	}
	copy(buf, []byte("payload"))

	_, _, _, size := ring.snapshot()
	if size != 4096 {
		t.Fatalf("size after reserve = %d, want 4096", size)
	}

	ring.Release(offset, 4096)
	_, _, _, size = ring.snapshot()
	if size != 0 {
		t.Fatalf("size after release = %d, want 0 (net-zero reserve/release)", size)
	}
}

func TestSendRingBufferRejectsOversizedReservation(t *testing.T) {
	ring, _ := NewSendRingBuffer(MinRingBufferSize)
	if _, _, err := ring.Reserve(MinRingBufferSize + 1); err == nil {
		t.Fatal("expected error reserving more than capacity")
	}
}

func TestSendRingBufferWrapRequiresHeadBehindTail(t *testing.T) {
	// Reproduces the exact head/tail relationship datapath_rdma_ringbuffer.c
	// checks before allowing a wrap: reservation may wrap past capacity
	// only while head < tail; once head has caught up to or passed tail
	// (mod capacity), a reservation that needs to wrap is refused instead.
	const capacity = MinRingBufferSize
	sr, err := NewSendRingBuffer(capacity)
	if err != nil {
		t.Fatalf("NewSendRingBuffer: %v", err)
	}

	off0, _, err := sr.Reserve(48000)
	if err != nil {
		t.Fatalf("Reserve #1: %v", err)
	}
	sr.Release(off0, 48000) // head=48000, size=0

	if _, _, err := sr.Reserve(800); err != nil { // tail=48800, size=800
		t.Fatalf("Reserve #2: %v", err)
	}
	if _, _, err := sr.Reserve(56000); err != nil { // wraps tail to 39264, size=56800
		t.Fatalf("Reserve #3: %v", err)
	}

	_, head, tail, _ := sr.snapshot()
	if head < tail {
		t.Fatalf("expected head (%d) >= tail (%d) for this test's premise", head, tail)
	}

	// available = 65536-56800 = 8736 < 16000, forcing the wrap branch,
	// which must now be refused since head >= tail.
	if _, _, err := sr.Reserve(16000); err == nil {
		t.Fatal("expected reservation to be refused: head >= tail forbids wrap")
	}
}

func TestRemoteRingBufferAdvanceHeadFreesSpace(t *testing.T) {
	remote := NewRemoteRingBuffer(MinRingBufferSize, 0, 1, 0, 0)

	if _, err := remote.Reserve(MinRingBufferSize - 100); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if free := remote.FreeSpace(); free != 100 {
		t.Fatalf("free space = %d, want 100", free)
	}

	remote.AdvanceHead(4096)
	if free := remote.FreeSpace(); free != 100+4096 {
		t.Fatalf("free space after advance = %d, want %d", free, 100+4096)
	}
}

func TestRecvRingBufferRecordArrivalTracksGapOnWrap(t *testing.T) {
	recv, err := NewRecvRingBuffer(MinRingBufferSize, 0)
	if err != nil {
		t.Fatalf("NewRecvRingBuffer: %v", err)
	}
	recv.recordArrival(0, 100)
	if _, _, tail, size := recv.snapshot(); tail != 100 || size != 100 {
		t.Fatalf("after sequential arrival: tail=%d size=%d", tail, size)
	}

	// A later arrival at a higher offset than tail (wrap recovery) should
	// record the intervening region as a gap rather than corrupt tail math.
	recv.recordArrival(5000, 200)
	if _, _, tail, _ := recv.snapshot(); tail != 5200 {
		t.Fatalf("tail after gapped arrival = %d, want 5200", tail)
	}
	if got := recv.gaps[100]; got != 4900 {
		t.Fatalf("gap[100] = %d, want 4900", got)
	}
}
