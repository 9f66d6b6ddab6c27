package nettcp

import "fmt"

// ReturnCode is a sentinel error type mirroring the negative integer
// return codes used throughout tcp.cc (Socket::kError*/kReturn*). Every
// value here implements error, so callers compare with errors.Is
// instead of switching on a raw int.
type ReturnCode int

const (
	// ErrUnknown covers a fallthrough where a function reached a
	// branch it should never reach for the current state.
	ErrUnknown ReturnCode = -0x1
	// ErrOutOfBuffer means no transmit buffer could be reserved. This
	// layer allocates on demand instead of from a fixed pool, so it
	// surfaces only as documentation of the original's meaning, never
	// returned by this implementation.
	ErrOutOfBuffer ReturnCode = -0x103
	// ErrNoAck means the segment received while awaiting an ACK did not
	// acknowledge the data just sent (a missing segment is ErrNoRxPacket).
	ErrNoAck ReturnCode = -0x1000
	// ErrUnexpected marks a state/branch combination the state machine
	// asserts can't happen.
	ErrUnexpected ReturnCode = -0x10000
	// ErrAckFailure means a received segment's sequence or
	// acknowledgement number didn't match what the handshake expected.
	ErrAckFailure ReturnCode = -0x1001
	// ErrNoRxPacket means ReceivePacket had nothing queued.
	ErrNoRxPacket ReturnCode = -0x1002
	// ErrTxFailure means the underlying netstack.Layer rejected a
	// TransmitPacket call (e.g. peer queue full or link closed).
	ErrTxFailure ReturnCode = -0x1003
	// AlreadyEstablished is returned by Listen/Connect when called
	// again on a connection that has moved past the handshake states.
	AlreadyEstablished ReturnCode = 0x1
	// ConnectionClosed is returned by ReceiveSub once the peer's
	// close sequence has completed.
	ConnectionClosed ReturnCode = 0x2
)

func (r ReturnCode) Error() string {
	switch r {
	case ErrUnknown:
		return "nettcp: unknown error"
	case ErrOutOfBuffer:
		return "nettcp: out of buffer"
	case ErrNoAck:
		return "nettcp: no ack received"
	case ErrUnexpected:
		return "nettcp: unexpected state"
	case ErrAckFailure:
		return "nettcp: ack/seq mismatch"
	case ErrNoRxPacket:
		return "nettcp: no packet available"
	case ErrTxFailure:
		return "nettcp: transmit failed"
	case AlreadyEstablished:
		return "nettcp: connection already established"
	case ConnectionClosed:
		return "nettcp: connection closed"
	default:
		return fmt.Sprintf("nettcp: return code %d", int(r))
	}
}
