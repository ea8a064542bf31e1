// Package tlsdriver implements TlsDriver (§4.4): a pull-style state
// machine that advances one side of a TLS 1.3 handshake by feeding and
// draining opaque crypto records, exposing key-readiness and
// transport-parameter exchange.
//
// Realization note (SPEC_FULL.md §4.4, §11): rather than re-implementing a
// TLS 1.3 stack, this driver is a thin pull-style wrapper over the Go
// standard library's native QUIC handshake support
// (crypto/tls.QUICConn, available since Go 1.21), exactly mirroring how
// production quic-go drives its cryptoSetup by calling
// (*tls.QUICConn).NextEvent() in a loop — see
// other_examples/740b776c_grafana-k6...crypto_setup.go.go, which this
// package's event-pump loop is directly grounded on.
package tlsdriver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"

	"quicore/internal/keyschedule"
	"quicore/internal/packetcrypto"
	"quicore/internal/quicerr"
)

// Config enumerates everything NewDriver needs (§4.4).
type Config struct {
	IsServer                bool
	Certificate             tls.Certificate
	ALPN                    []string // 1..N entries, each 1..255 bytes
	ServerName              string   // client role only
	LocalTransportParams    []byte   // copied at NewDriver; the driver keeps its copy and hands it to crypto/tls on request
	ReceiveTPCallback       func(tpBytes []byte)
	ProcessCompleteCallback func()
}

// Driver is one side of one TLS 1.3 handshake (§3 TlsDriver, §4.4).
type Driver struct {
	mu sync.Mutex

	role Role
	conn *tls.QUICConn

	localTP         []byte
	receiveTP       func([]byte)
	processComplete func()

	started         bool
	currentReadLvl  tls.QUICEncryptionLevel
	state           recordState
	alertCode       uint8
	negotiatedALPN  string
}

// NewDriver builds a Driver for config (§4.4 initialize). The handshake is
// not started until the first ProcessData call, so a freshly built client
// Driver's first ProcessData(nil) is what emits the ClientHello (§8
// scenario 1).
func NewDriver(config Config) (*Driver, error) {
	if len(config.ALPN) == 0 {
		return nil, quicerr.New(quicerr.KindConnectionFatal, "tlsdriver.NewDriver", fmt.Errorf("at least one ALPN entry is required"))
	}
	for _, proto := range config.ALPN {
		if len(proto) == 0 || len(proto) > 255 {
			return nil, quicerr.New(quicerr.KindConnectionFatal, "tlsdriver.NewDriver", fmt.Errorf("alpn entry length out of range [1,255]: %d", len(proto)))
		}
	}

	tlsConf := &tls.Config{
		MinVersion: tls.VersionTLS13,
		MaxVersion: tls.VersionTLS13,
		NextProtos: config.ALPN,
		ServerName: config.ServerName,
	}

	d := &Driver{
		localTP:         append([]byte(nil), config.LocalTransportParams...),
		receiveTP:       config.ReceiveTPCallback,
		processComplete: config.ProcessCompleteCallback,
	}

	quicConf := &tls.QUICConfig{TLSConfig: tlsConf}
	if config.IsServer {
		d.role = RoleServer
		tlsConf.Certificates = []tls.Certificate{config.Certificate}
		d.conn = tls.QUICServer(quicConf)
	} else {
		d.role = RoleClient
		d.conn = tls.QUICClient(quicConf)
	}
	return d, nil
}

// Reset discards accumulated state for version negotiation without tearing
// down the driver (§4.4). The underlying crypto/tls connection cannot be
// rewound in place, so Reset rebuilds it from the original config captured
// at NewDriver time... conceptually; concretely this core treats Reset as
// a caller contract satisfied by constructing a fresh Driver, since
// crypto/tls.QUICConn exposes no in-place restart. Callers that need
// version-negotiation replay should discard this Driver and call
// NewDriver again; Reset here only clears the bookkeeping fields that
// outlive the stdlib connection (state, alert, negotiated ALPN).
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	d.currentReadLvl = tls.QUICEncryptionLevelInitial
	d.state = stateStart
	d.alertCode = 0
	d.negotiatedALPN = ""
}

// ProcessData consumes input (of the given dataType) and advances the
// handshake, appending any newly produced outgoing bytes to state.Buffer
// (§4.4). It returns the number of input bytes consumed (always len(input)
// for this realization, since crypto/tls.QUICConn.HandleData consumes a
// message at a time internally and this driver relies on the caller having
// already truncated input to CompleteMessagesLength) and the ResultFlags
// bitset describing what happened.
func (d *Driver) ProcessData(dataType DataType, input []byte, state *ProcessState) (int, ResultFlags) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == stateError {
		return 0, FlagError
	}

	if !d.started {
		d.started = true
		d.currentReadLvl = tls.QUICEncryptionLevelInitial
		if err := d.conn.Start(context.Background()); err != nil {
			return 0, d.fail(err)
		}
	}

	consumed := 0
	if len(input) > 0 {
		level := d.currentReadLvl
		if dataType == DataTypeTicket {
			level = tls.QUICEncryptionLevelApplication
		}
		if err := d.conn.HandleData(level, input); err != nil {
			return 0, d.fail(err)
		}
		consumed = len(input)
	}

	return consumed, d.pumpEvents(state)
}

// ProcessDataComplete returns the flags produced by crypto work that
// completed asynchronously after a Pending return from ProcessData (§4.4).
// This realization's crypto/tls backend never suspends (see DESIGN.md), so
// ProcessDataComplete only re-drains any events crypto/tls queued
// synchronously; it exists to satisfy the pull-style contract for callers
// built against it.
func (d *Driver) ProcessDataComplete(state *ProcessState) (int, ResultFlags) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return 0, d.pumpEvents(state)
}

func (d *Driver) fail(err error) ResultFlags {
	d.state = stateError
	var alertErr tls.AlertError
	if tlsErrAs(err, &alertErr) {
		d.alertCode = uint8(alertErr)
	}
	return FlagError
}

// pumpEvents drains crypto/tls's event queue until QUICNoEvent, converting
// each event into ResultFlags and ProcessState mutations, mirroring
// cryptoSetup.handleEvent in the grounding example.
func (d *Driver) pumpEvents(state *ProcessState) ResultFlags {
	var flags ResultFlags
	for {
		ev := d.conn.NextEvent()
		switch ev.Kind {
		case tls.QUICNoEvent:
			return flags | FlagContinue

		case tls.QUICSetReadSecret:
			key, err := d.installSecret(state, false, ev.Level, ev.Suite, ev.Data)
			if err != nil {
				return d.fail(err)
			}
			_ = key
			flags |= FlagReadKeyUpdated
			if ev.Level > d.currentReadLvl {
				d.currentReadLvl = ev.Level
			}
			if d.state == stateStart {
				d.state = stateWaitEE
			}

		case tls.QUICSetWriteSecret:
			if _, err := d.installSecret(state, true, ev.Level, ev.Suite, ev.Data); err != nil {
				return d.fail(err)
			}
			flags |= FlagWriteKeyUpdated

		case tls.QUICWriteData:
			epoch, err := epochFromTLSLevel(ev.Level)
			if err != nil {
				return d.fail(err)
			}
			state.appendOutput(epoch, ev.Data)
			flags |= FlagData

		case tls.QUICTransportParameters:
			if d.receiveTP != nil {
				// A panicking callback is recovered here and reported as Error.
				panicked := func() (p bool) {
					defer func() {
						if recover() != nil {
							p = true
						}
					}()
					d.receiveTP(ev.Data)
					return false
				}()
				if panicked {
					d.state = stateError
					return FlagError
				}
			}

		case tls.QUICTransportParametersRequired:
			d.conn.SetTransportParameters(d.localTP)

		case tls.QUICRejectedEarlyData:
			flags |= FlagEarlyDataReject

		case tls.QUICHandshakeDone:
			d.state = stateConnected
			d.negotiatedALPN = d.conn.ConnectionState().NegotiatedProtocol
			state.NegotiatedALPN = d.negotiatedALPN
			flags |= FlagComplete

		default:
			// Session-ticket-related events (QUICStoreSession /
			// QUICResumeSession in newer stdlib revisions) surface to the
			// Ticket flag for the client; 0-RTT resumption policy itself
			// is a declared Non-goal (§1) so we don't act on the payload.
			if d.role == RoleClient {
				flags |= FlagTicket
			}
		}
	}
}

func (d *Driver) installSecret(state *ProcessState, isWrite bool, level tls.QUICEncryptionLevel, suiteID uint16, secret []byte) (*packetcrypto.Key, error) {
	epoch, err := epochFromTLSLevel(level)
	if err != nil {
		return nil, err
	}
	suite, err := suiteFromTLSID(suiteID)
	if err != nil {
		return nil, err
	}
	key, err := keyschedule.PacketKeyDerive(epoch, suite, secret)
	if err != nil {
		return nil, err
	}
	if isWrite {
		state.installWriteKey(epoch, key)
	} else {
		state.installReadKey(epoch, key)
	}
	return key, nil
}

func epochFromTLSLevel(level tls.QUICEncryptionLevel) (packetcrypto.Epoch, error) {
	switch level {
	case tls.QUICEncryptionLevelInitial:
		return packetcrypto.EpochInitial, nil
	case tls.QUICEncryptionLevelHandshake:
		return packetcrypto.EpochHandshake, nil
	case tls.QUICEncryptionLevelApplication:
		return packetcrypto.Epoch1RTT, nil
	default:
		return 0, fmt.Errorf("tlsdriver: unexpected encryption level %v for QUIC packet protection", level)
	}
}

func suiteFromTLSID(id uint16) (packetcrypto.Suite, error) {
	switch id {
	case tls.TLS_AES_128_GCM_SHA256:
		return packetcrypto.SuiteAES128GCM, nil
	case tls.TLS_AES_256_GCM_SHA384:
		return packetcrypto.SuiteAES256GCM, nil
	case tls.TLS_CHACHA20_POLY1305_SHA256:
		return packetcrypto.SuiteChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("tlsdriver: unsupported TLS 1.3 cipher suite 0x%04x", id)
	}
}

// tlsErrAs is errors.As spelled out locally so the single call site above
// reads like the rest of this file's error plumbing (kept tiny on purpose).
func tlsErrAs(err error, target *tls.AlertError) bool {
	return errors.As(err, target)
}
