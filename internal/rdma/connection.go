// Realization note: in offset-buffer mode the real protocol has the peer
// read the advertised head via a one-sided RDMA read of the offset buffer
// (§4.5). This simulated transport has no separate fabric round trip to
// model, so the advertised head travels as a direct parameter on the
// simulated notification call instead of being re-read out of
// Connection.recvRing.OffsetBuffer; the buffer itself is still allocated
// and sized so callers inspecting its layout see the real shape.
package rdma

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"quicore/application"
	"quicore/internal/quicerr"
)

// ConnectionFlags mirrors the create-time flag set recognized by
// RdmaConnection (§4.5 Configuration options).
type ConnectionFlags uint32

const (
	FlagShareEndpoint ConnectionFlags = 1 << iota
	FlagShareCQ
	FlagNoMemoryWindow
)

func (f ConnectionFlags) has(bit ConnectionFlags) bool { return f&bit != 0 }

// Config is the create-time configuration of one RdmaConnection endpoint
// (§4.5 Configuration options).
type Config struct {
	SendRingBufferSize uint64
	RecvRingBufferSize uint64
	Flags              ConnectionFlags

	ProcessorGroup int
	Affinity       int

	CibirID          [6]byte
	CibirIDLength    uint8
	CibirIDOffsetSrc uint8
	CibirIDOffsetDst uint8

	PostReceiveCount int

	// ReceiveCallback is invoked from the recv-CQ poller goroutine with a
	// copy of each delivered payload (§4.5 steady-state receive: "dispatch
	// payload at base + recvOffset to app").
	ReceiveCallback func(payload []byte)

	Logger application.Logger
}

type pendingSend struct {
	reqID   uint64
	payload []byte
}

// Connection is one RDMA transport endpoint (§3 RdmaConnection).
type Connection struct {
	cfg Config

	sm *stateMachine

	region   *MemoryRegion
	sendRing *SendRingBuffer
	recvRing *RecvRingBuffer

	mu               sync.Mutex
	remoteRing       *RemoteRingBuffer
	memoryWindowUsed bool
	offsetBufferUsed bool
	pendingSends     []pendingSend

	sendCQ *simCompletionQueue
	recvCQ *simCompletionQueue
	qp     *simQueuePair

	peer *Connection // back-reference; validity guarded by rundown (§9)

	sendOutstanding map[uint64]struct{ offset, length uint64 }
	sendMu          sync.Mutex

	nextReqID atomic.Uint64
	closed    atomic.Bool

	group    *errgroup.Group
	cancel   context.CancelFunc
}

// NewConnection allocates ring buffers and a memory region for cfg and
// transitions to RingBufferRegistered (§4.5 state machine).
func NewConnection(cfg Config) (*Connection, error) {
	if cfg.SendRingBufferSize < MinRingBufferSize || cfg.RecvRingBufferSize < MinRingBufferSize {
		return nil, quicerr.New(quicerr.KindConnectionFatal, "rdma.NewConnection", errInvalidParameter)
	}

	sendRing, err := NewSendRingBuffer(cfg.SendRingBufferSize)
	if err != nil {
		return nil, err
	}

	var offsetBufSize uint64
	offsetUsed := cfg.RecvRingBufferSize > MaxImmediateRingBufferSize
	if offsetUsed {
		offsetBufSize = 8
	}
	recvRing, err := NewRecvRingBuffer(cfg.RecvRingBufferSize, offsetBufSize)
	if err != nil {
		return nil, err
	}

	region := RegisterMemoryRegion(recvRing.Buffer)

	c := &Connection{
		cfg:              cfg,
		sm:               newStateMachine(),
		region:           region,
		sendRing:         sendRing,
		recvRing:         recvRing,
		offsetBufferUsed: offsetUsed,
		memoryWindowUsed: !cfg.Flags.has(FlagNoMemoryWindow),
		sendCQ:           newSimCompletionQueue(256),
		recvCQ:           newSimCompletionQueue(256),
		sendOutstanding:  make(map[uint64]struct{ offset, length uint64 }),
	}
	if err := c.sm.advance(StateRingBufferRegistered); err != nil {
		return nil, err
	}
	return c, nil
}

// Dial performs the full client/server handshake in-process: both sides'
// ring buffers are registered, tokens are exchanged per clientCfg/serverCfg's
// MemoryWindowUsed mode, and both connections reach Ready (§4.5 state
// machine, Token exchange).
func Dial(clientCfg, serverCfg Config) (client *Connection, server *Connection, err error) {
	client, err = NewConnection(clientCfg)
	if err != nil {
		return nil, nil, err
	}
	server, err = NewConnection(serverCfg)
	if err != nil {
		return nil, nil, err
	}

	client.peer = server
	server.peer = client

	if err := client.sm.advance(StateConnecting); err != nil {
		return nil, nil, err
	}
	if err := server.sm.advance(StateWaitingForGetConnRequest); err != nil {
		return nil, nil, err
	}
	if err := client.sm.advance(StateCompleteConnect); err != nil {
		return nil, nil, err
	}
	if err := server.sm.advance(StateWaitingForAccept); err != nil {
		return nil, nil, err
	}
	if err := client.sm.advance(StateConnected); err != nil {
		return nil, nil, err
	}
	if err := server.sm.advance(StateConnected); err != nil {
		return nil, nil, err
	}

	if client.memoryWindowUsed {
		if err := client.sm.advance(StateTokenExchangeInitiated); err != nil {
			return nil, nil, err
		}
		if err := server.sm.advance(StateTokenExchangeInitiated); err != nil {
			return nil, nil, err
		}
		client.bindAndExchangeTokens(server)
		if err := client.sm.advance(StateTokenExchangeComplete); err != nil {
			return nil, nil, err
		}
		if err := server.sm.advance(StateTokenExchangeComplete); err != nil {
			return nil, nil, err
		}
	} else {
		if err := client.exchangeViaPrivateData(server); err != nil {
			return nil, nil, err
		}
	}

	client.wirePair(server)
	server.wirePair(client)

	ctx, cancel := context.WithCancel(context.Background())
	client.cancel = cancel
	server.cancel = cancel
	grp, gctx := errgroup.WithContext(ctx)
	client.group = grp
	server.group = grp
	client.startPollers(gctx)
	server.startPollers(gctx)

	if err := client.sm.advance(StateReady); err != nil {
		return nil, nil, err
	}
	if err := server.sm.advance(StateReady); err != nil {
		return nil, nil, err
	}
	client.logf("rdma connection ready (client, memoryWindowUsed=%v, offsetBufferUsed=%v)", client.memoryWindowUsed, client.offsetBufferUsed)
	server.logf("rdma connection ready (server, memoryWindowUsed=%v, offsetBufferUsed=%v)", server.memoryWindowUsed, server.offsetBufferUsed)
	return client, server, nil
}

func (c *Connection) logf(format string, v ...any) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Printf(format, v...)
	}
}

// bindAndExchangeTokens implements memory-window mode (§4.5 Token
// exchange, mode 1): each side binds a window over its recv ring (and
// offset buffer, if used) and the resulting tokens become the other's
// RemoteRingBuffer mirror.
func (c *Connection) bindAndExchangeTokens(peer *Connection) {
	cMW := c.region.Bind(0, uint64(len(c.recvRing.Buffer)))
	pMW := peer.region.Bind(0, uint64(len(peer.recvRing.Buffer)))

	var cOffsetToken, pOffsetToken uint32
	if c.offsetBufferUsed {
		offsetRegion := RegisterMemoryRegion(c.recvRing.OffsetBuffer)
		cOffsetToken = offsetRegion.Bind(0, uint64(len(c.recvRing.OffsetBuffer))).RemoteKey
	}
	if peer.offsetBufferUsed {
		offsetRegion := RegisterMemoryRegion(peer.recvRing.OffsetBuffer)
		pOffsetToken = offsetRegion.Bind(0, uint64(len(peer.recvRing.OffsetBuffer))).RemoteKey
	}

	c.remoteRing = NewRemoteRingBuffer(uint64(len(peer.recvRing.Buffer)), 0, pMW.RemoteKey, 0, pOffsetToken)
	peer.remoteRing = NewRemoteRingBuffer(uint64(len(c.recvRing.Buffer)), 0, cMW.RemoteKey, 0, cOffsetToken)
}

// exchangeViaPrivateData implements no-memory-window mode (§4.5 Token
// exchange, mode 2): tokens travel in the Connect/Accept private-data blobs
// instead of a runtime exchange.
func (c *Connection) exchangeViaPrivateData(peer *Connection) error {
	clientPD, err := DecodeConnectPrivateData(EncodeConnectPrivateData(PrivateData{
		RecvRingCapacity:    uint32(len(c.recvRing.Buffer)),
		RecvRingRemoteToken: c.region.RemoteKey,
	}))
	if err != nil {
		return fmt.Errorf("rdma: exchangeViaPrivateData: client blob: %w", err)
	}

	serverPD, err := DecodeAcceptPrivateData(EncodeAcceptPrivateData(PrivateData{
		RecvRingCapacity:    uint32(len(peer.recvRing.Buffer)),
		RecvRingRemoteToken: peer.region.RemoteKey,
	}))
	if err != nil {
		return fmt.Errorf("rdma: exchangeViaPrivateData: server blob: %w", err)
	}

	c.remoteRing = NewRemoteRingBuffer(uint64(serverPD.RecvRingCapacity), 0, serverPD.RecvRingRemoteToken, 0, 0)
	peer.remoteRing = NewRemoteRingBuffer(uint64(clientPD.RecvRingCapacity), 0, clientPD.RecvRingRemoteToken, 0, 0)
	return nil
}

func (c *Connection) wirePair(peer *Connection) {
	c.qp = &simQueuePair{
		sendCQ: c.sendCQ,
		peerRecv: func(payload []byte, remoteOffset uint64, immediate uint32) error {
			peer.handlePeerWrite(payload, remoteOffset, immediate)
			return nil
		},
	}
}

func (c *Connection) startPollers(ctx context.Context) {
	c.group.Go(func() error { return c.runSendCQPoller(ctx) })
	c.group.Go(func() error { return c.runRecvCQPoller(ctx) })
}

func (c *Connection) runSendCQPoller(ctx context.Context) error {
	for {
		wc, ok := c.sendCQ.Poll()
		if !ok {
			return nil
		}
		c.sendMu.Lock()
		reserved, found := c.sendOutstanding[wc.RequestID]
		delete(c.sendOutstanding, wc.RequestID)
		c.sendMu.Unlock()
		if found {
			c.sendRing.Release(reserved.offset, reserved.length)
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

func (c *Connection) runRecvCQPoller(ctx context.Context) error {
	for {
		wc, ok := c.recvCQ.Poll()
		if !ok {
			return nil
		}
		if c.cfg.ReceiveCallback != nil {
			c.cfg.ReceiveCallback(wc.payload)
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// handlePeerWrite applies an inbound one-sided write, the receive side of
// §4.5 steady-state send/receive.
func (c *Connection) handlePeerWrite(payload []byte, offset uint64, immediate uint32) {
	copy(c.recvRing.Buffer[offset:], payload)
	c.recvRing.recordArrival(offset, uint64(len(payload)))
	c.recvCQ.Push(WorkCompletion{Status: StatusSuccess, Opcode: OpcodeWriteWithImmediate, Immediate: immediate, Length: uint32(len(payload)), payload: append([]byte(nil), payload...)})
}

// Send stages payload for a one-sided write to the peer's recv ring
// (§4.5 steady-state send). If the remote ring lacks room, the send is
// queued in FIFO order and a transient BufferTooSmall error (§7 band 1)
// is returned.
func (c *Connection) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sm.Current() != StateReady {
		return quicerr.New(quicerr.KindConnectionFatal, "rdma.Connection.Send", errInvalidState)
	}
	return c.trySendLocked(payload)
}

func (c *Connection) trySendLocked(payload []byte) error {
	length := uint64(len(payload))
	if length == 0 {
		return quicerr.New(quicerr.KindPacketLocal, "rdma.Connection.Send", errInvalidParameter)
	}

	if len(c.pendingSends) > 0 {
		c.pendingSends = append(c.pendingSends, pendingSend{reqID: c.nextReqID.Add(1), payload: append([]byte(nil), payload...)})
		return quicerr.New(quicerr.KindTransient, "rdma.Connection.Send", errBufferTooSmall)
	}

	remoteOffset, err := c.remoteRing.Reserve(length)
	if err != nil {
		c.pendingSends = append(c.pendingSends, pendingSend{reqID: c.nextReqID.Add(1), payload: append([]byte(nil), payload...)})
		return err
	}

	localOffset, buf, err := c.sendRing.Reserve(length)
	if err != nil {
		// Roll the remote reservation back is not modeled (matches the
		// source: SendRingBuffer and RemoteRingBuffer reservations are
		// independent resources); surface as process-fatal since this
		// indicates SendRingBufferSize was undersized relative to the
		// remote window, a configuration error rather than backpressure.
		return quicerr.New(quicerr.KindProcessFatal, "rdma.Connection.Send", err)
	}
	copy(buf, payload)

	var immediate uint32
	if c.offsetBufferUsed {
		immediate = uint32(length)
	} else {
		immediate = uint32((remoteOffset&0xFFFF)<<16) | uint32(length&0xFFFF)
	}

	reqID := c.nextReqID.Add(1)
	c.sendMu.Lock()
	c.sendOutstanding[reqID] = struct{ offset, length uint64 }{localOffset, length}
	c.sendMu.Unlock()

	return c.qp.PostSend(reqID, buf, remoteOffset, c.remoteRing.RemoteToken, immediate)
}

// drainPendingLocked retries queued sends in FIFO order, stopping at the
// first one that still doesn't fit (§4.5: "RdmaSocketPendingSend drains
// the queue when the remote head advances").
func (c *Connection) drainPendingLocked() {
	for len(c.pendingSends) > 0 {
		next := c.pendingSends[0]
		remaining := c.pendingSends[1:]
		c.pendingSends = nil
		if err := c.trySendLocked(next.payload); err != nil {
			c.pendingSends = append([]pendingSend{{reqID: next.reqID, payload: next.payload}}, remaining...)
			return
		}
		c.pendingSends = remaining
	}
}

// PendingSendCount reports the current FIFO depth, for tests asserting
// back-pressure ordering (§8 scenario 6).
func (c *Connection) PendingSendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pendingSends)
}

// ReleaseReceived returns a received region to the recv ring and advertises
// the new head to the peer (§4.5 Buffer release). Per the resolved
// polling-cadence Open Question (§9), the advertisement is sent
// immediately and unconditionally — there is no timer-driven batching.
func (c *Connection) ReleaseReceived(offset, length uint64) {
	head := c.recvRing.Release(offset, length)
	c.mu.Lock()
	peer := c.peer
	c.mu.Unlock()
	if peer == nil {
		return
	}
	peer.applyPeerHeadAdvance(head)
}

func (c *Connection) applyPeerHeadAdvance(head uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remoteRing == nil {
		return
	}
	c.remoteRing.AdvanceHead(head)
	c.drainPendingLocked()
}

// Disconnect moves the connection through ReceivedDisconnect/Closing to
// Closed and tears down its pollers (§4.5 Disconnect).
func (c *Connection) Disconnect() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	_ = c.sm.advance(StateReceivedDisconnect)
	_ = c.sm.advance(StateClosing)
	c.sendCQ.Close()
	c.recvCQ.Close()
	if c.cancel != nil {
		c.cancel()
	}
	c.sm.reset()
	c.logf("rdma connection closed")
}

// State reports the current lifecycle state.
func (c *Connection) State() State { return c.sm.Current() }
