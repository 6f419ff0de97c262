package protocol

// Mode is the input-report mode negotiated via subcommand 0x03.
type Mode byte

const (
	ModeUnset     Mode = 0x00
	ModeStandard  Mode = 0x30
	ModeNFCIR     Mode = 0x31
	ModeSimpleHID Mode = 0x3F
)

// handshakeState tracks the pairing state machine: waitingFirstByte ->
// handshake -> paired -> operational, with a back-edge to reconnectAttempt
// on peer closure (driven by the Server, not here).
type handshakeState int

const (
	stateWaitingFirstByte handshakeState = iota
	stateHandshake
	statePaired
	stateOperational
)
