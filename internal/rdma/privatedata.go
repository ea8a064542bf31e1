package rdma

import (
	"encoding/binary"
	"fmt"
)

// ConnectPrivateDataSize and AcceptPrivateDataSize are the two fixed sizes
// the no-memory-window token-exchange mode uses (§6 RDMA private-data blob
// layout): 56 bytes client-to-server, 196 bytes server-to-client (the
// larger blob adds the server's own MR tokens, symmetric to the client's).
const (
	ConnectPrivateDataSize = 56
	AcceptPrivateDataSize  = 196
)

// PrivateData is the decoded form of RDMA_DATAPATH_PRIVATE_DATA (§6):
// the remote recv-ring address/capacity/token, plus the optional offset
// buffer address/token (zero when offset mode is disabled).
type PrivateData struct {
	RemoteRecvRingAddress    uint64
	RecvRingCapacity         uint32
	RecvRingRemoteToken      uint32
	RemoteOffsetBufferAddr   uint64
	RemoteOffsetBufferToken  uint32
}

const privateDataCoreSize = 8 + 4 + 4 + 8 + 4 // 28 bytes per side's fields

// EncodeConnectPrivateData packs the client's token-exchange fields into
// the fixed 56-byte Connect-request blob (§6). The remaining bytes beyond
// the 28-byte core are reserved padding, zeroed.
func EncodeConnectPrivateData(pd PrivateData) []byte {
	buf := make([]byte, ConnectPrivateDataSize)
	encodePrivateDataCore(buf, pd)
	return buf
}

// EncodeAcceptPrivateData packs the server's token-exchange fields — its
// own recv-ring fields mirrored back to the client — into the fixed
// 196-byte Accept-response blob (§6: "the larger blob adds symmetric
// fields and reserved padding").
func EncodeAcceptPrivateData(pd PrivateData) []byte {
	buf := make([]byte, AcceptPrivateDataSize)
	encodePrivateDataCore(buf, pd)
	return buf
}

func encodePrivateDataCore(buf []byte, pd PrivateData) {
	binary.LittleEndian.PutUint64(buf[0:8], pd.RemoteRecvRingAddress)
	binary.LittleEndian.PutUint32(buf[8:12], pd.RecvRingCapacity)
	binary.LittleEndian.PutUint32(buf[12:16], pd.RecvRingRemoteToken)
	binary.LittleEndian.PutUint64(buf[16:24], pd.RemoteOffsetBufferAddr)
	binary.LittleEndian.PutUint32(buf[24:28], pd.RemoteOffsetBufferToken)
}

// DecodeConnectPrivateData parses a client Connect-request blob, rejecting
// any size other than ConnectPrivateDataSize (§6: "an implementation must
// reject any other size").
func DecodeConnectPrivateData(buf []byte) (PrivateData, error) {
	if len(buf) != ConnectPrivateDataSize {
		return PrivateData{}, fmt.Errorf("rdma: connect private data must be %d bytes, got %d", ConnectPrivateDataSize, len(buf))
	}
	return decodePrivateDataCore(buf), nil
}

// DecodeAcceptPrivateData parses a server Accept-response blob, rejecting
// any size other than AcceptPrivateDataSize.
func DecodeAcceptPrivateData(buf []byte) (PrivateData, error) {
	if len(buf) != AcceptPrivateDataSize {
		return PrivateData{}, fmt.Errorf("rdma: accept private data must be %d bytes, got %d", AcceptPrivateDataSize, len(buf))
	}
	return decodePrivateDataCore(buf), nil
}

func decodePrivateDataCore(buf []byte) PrivateData {
	return PrivateData{
		RemoteRecvRingAddress:   binary.LittleEndian.Uint64(buf[0:8]),
		RecvRingCapacity:        binary.LittleEndian.Uint32(buf[8:12]),
		RecvRingRemoteToken:     binary.LittleEndian.Uint32(buf[12:16]),
		RemoteOffsetBufferAddr:  binary.LittleEndian.Uint64(buf[16:24]),
		RemoteOffsetBufferToken: binary.LittleEndian.Uint32(buf[24:28]),
	}
}
