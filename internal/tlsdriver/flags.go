package tlsdriver

// ResultFlags is the bitset returned by ProcessData/ProcessDataComplete
// (§4.4).
type ResultFlags uint32

const (
	FlagContinue ResultFlags = 1 << iota
	FlagPending
	FlagData
	FlagReadKeyUpdated
	FlagWriteKeyUpdated
	FlagEarlyDataAccept
	FlagEarlyDataReject
	FlagComplete
	FlagTicket
	FlagError
)

func (f ResultFlags) Has(bit ResultFlags) bool { return f&bit != 0 }

// DataType distinguishes the two kinds of input ProcessData accepts (§4.4).
type DataType int

const (
	DataTypeCrypto DataType = iota
	DataTypeTicket
)

// Role is which side of the handshake a Driver plays.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// recordState mirrors the TLS record-level state machine from §4.4. It is
// bookkeeping only: the actual handshake is driven by crypto/tls's
// QUICConn; this enum lets Reset/tests observe where the driver is without
// reaching into the stdlib connection's private state.
type recordState int

const (
	stateStart recordState = iota
	stateWaitEE
	stateWaitCert
	stateWaitFinished
	stateConnected
	stateError
)
