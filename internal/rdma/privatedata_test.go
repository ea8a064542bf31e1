package rdma

import "testing"

func TestConnectPrivateDataRoundTrip(t *testing.T) {
	pd := PrivateData{
		RemoteRecvRingAddress:   0xdeadbeefcafef00d,
		RecvRingCapacity:        131072,
		RecvRingRemoteToken:     42,
		RemoteOffsetBufferAddr:  0x1234,
		RemoteOffsetBufferToken: 7,
	}
	buf := EncodeConnectPrivateData(pd)
	if len(buf) != ConnectPrivateDataSize {
		t.Fatalf("encoded connect blob len = %d, want %d", len(buf), ConnectPrivateDataSize)
	}
	got, err := DecodeConnectPrivateData(buf)
	if err != nil {
		t.Fatalf("DecodeConnectPrivateData: %v", err)
	}
	if got != pd {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, pd)
	}
}

func TestAcceptPrivateDataRoundTrip(t *testing.T) {
	pd := PrivateData{RemoteRecvRingAddress: 1, RecvRingCapacity: 2, RecvRingRemoteToken: 3}
	buf := EncodeAcceptPrivateData(pd)
	if len(buf) != AcceptPrivateDataSize {
		t.Fatalf("encoded accept blob len = %d, want %d", len(buf), AcceptPrivateDataSize)
	}
	got, err := DecodeAcceptPrivateData(buf)
	if err != nil {
		t.Fatalf("DecodeAcceptPrivateData: %v", err)
	}
	if got != pd {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, pd)
	}
}

func TestPrivateDataRejectsWrongSize(t *testing.T) {
	if _, err := DecodeConnectPrivateData(make([]byte, ConnectPrivateDataSize+1)); err == nil {
		t.Fatal("expected error for oversized connect blob")
	}
	if _, err := DecodeAcceptPrivateData(make([]byte, AcceptPrivateDataSize-1)); err == nil {
		t.Fatal("expected error for undersized accept blob")
	}
}
