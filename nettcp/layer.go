package nettcp

import (
	"math/rand/v2"
	"sync"

	"github.com/Raphine/Raph-Library/netstack"
)

// PortAny tells FilterPacket to accept a segment from any source port,
// used by a listening Layer before a peer's port is known.
const PortAny uint16 = 0xffff

// State is a TCP connection state, extended per RFC 793 p.26 with
// AckWait: an extra state TransmitSub/ReceiveSub pass through while a
// single in-flight data segment awaits its acknowledgement.
type State int

const (
	StateClosed State = iota
	StateListen
	StateSynSent
	// StateSynReceived exists for naming parity with the RFC state
	// diagram; Listen's handshake never assigns it (matching the
	// original, which declares but never reaches this state either).
	StateSynReceived
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateCloseWait
	// StateClosing is unreached: this layer's close sequence is always
	// driven by Shutup on one side and the FIN branch of ReceiveSub on
	// the other, never simultaneous close.
	StateClosing
	StateLastAck
	// StateTimeWait is unreached: Shutup/ReceiveSub retire a closed
	// connection to StateClosed immediately rather than lingering.
	StateTimeWait
	StateAckWait
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateListen:
		return "listen"
	case StateSynSent:
		return "syn-sent"
	case StateSynReceived:
		return "syn-received"
	case StateEstablished:
		return "established"
	case StateFinWait1:
		return "fin-wait-1"
	case StateFinWait2:
		return "fin-wait-2"
	case StateCloseWait:
		return "close-wait"
	case StateClosing:
		return "closing"
	case StateLastAck:
		return "last-ack"
	case StateTimeWait:
		return "time-wait"
	case StateAckWait:
		return "ack-wait"
	default:
		return "unknown"
	}
}

// Layer is a TCP connection endpoint sitting on top of a netstack.Layer
// (standing in for Ethernet/IPv4). Its handshake and close sequences
// (Listen/Connect/Shutup/CloseAck) and its data-transfer wrappers
// (TransmitSub/ReceiveSub) are grounded on tcp.cc's TcpLayer of the
// same names.
type Layer struct {
	prev netstack.Layer

	localAddr, peerAddr uint32
	localPort, peerPort uint16

	mu          sync.Mutex
	state       State
	sessionType Flag
	seq, ack    uint32
	packetLen   int
}

// NewLayer returns a Layer in StateClosed, ready for SetAddress/
// SetPort configuration followed by Setup.
func NewLayer() *Layer {
	return &Layer{sessionType: FlagRST}
}

func (l *Layer) SetAddress(addr uint32)     { l.localAddr = addr }
func (l *Layer) SetPeerAddress(addr uint32) { l.peerAddr = addr }
func (l *Layer) SetPort(port uint16)        { l.localPort = port }
func (l *Layer) SetPeerPort(port uint16)    { l.peerPort = port }

// State reports the current connection state.
func (l *Layer) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Setup attaches this layer atop prev, the lower layer that supplies
// raw segment transport (an IP layer in a full stack, netstack's
// LoopbackLayer in tests and the demo).
func (l *Layer) Setup(prev netstack.Layer) bool {
	l.prev = prev
	return true
}

// Destroy releases the lower layer reference.
func (l *Layer) Destroy() {
	l.prev = nil
}

// filterPacket reports whether h belongs to this connection, mirroring
// TcpLayer::FilterPacket: source port (unless PortAny), destination
// port, and session type (FIN is always accepted regardless of the
// currently expected session type, since a peer's FIN can arrive
// whenever it likes).
func (l *Layer) filterPacket(h Header) bool {
	if l.peerPort != PortAny && h.SourcePort != l.peerPort {
		return false
	}
	if h.DestPort != l.localPort {
		return false
	}
	sess := h.Flags & (FlagFIN | FlagSYN | FlagRST | FlagACK)
	if sess&FlagFIN == 0 && sess != l.sessionType {
		return false
	}
	return true
}

// preparePacket builds the header for an outgoing segment of the
// current sessionType/seq/ack, mirroring TcpLayer::PreparePacket.
func (l *Layer) preparePacket(payload []byte) ([]byte, bool) {
	if l.peerPort == PortAny {
		return nil, false
	}
	h := Header{
		SourcePort:    l.localPort,
		DestPort:      l.peerPort,
		SeqNumber:     l.seq,
		AckNumber:     l.ack,
		DataOffset:    HeaderLen / 4,
		Flags:         l.sessionType,
		WindowSize:    0xffff,
		UrgentPointer: 0,
	}
	buf := append(h.Marshal(), payload...)
	h.Checksum = Ipv4Checksum(buf, l.localAddr, l.peerAddr)
	// patch the checksum field in place rather than re-marshalling
	buf[16] = byte(h.Checksum >> 8)
	buf[17] = byte(h.Checksum)
	return buf, true
}

// transmitPrepared prepares and sends a segment carrying payload (nil
// for a bare control segment).
func (l *Layer) transmitPrepared(payload []byte) bool {
	buf, ok := l.preparePacket(payload)
	if !ok || l.prev == nil {
		return false
	}
	return l.prev.TransmitPacket(buf)
}

// receiveFiltered takes whatever segment the lower layer has queued
// and returns it only if filterPacket accepts it. Unlike the
// original's blocking wait loop, this layer's lower layer is
// non-blocking (netstack.Layer.ReceivePacket), so a rejected or absent
// segment simply reports !ok rather than retrying: callers (Listen,
// Connect, Shutup, ...) surface that as ErrNoRxPacket, and a retrying
// caller (e.g. a Functional bound to this layer) drives the retry loop
// instead.
func (l *Layer) receiveFiltered() (Header, bool) {
	h, _, ok := l.receiveFilteredPayload()
	return h, ok
}

func (l *Layer) receiveFilteredPayload() (Header, []byte, bool) {
	if l.prev == nil {
		return Header{}, nil, false
	}
	raw, ok := l.prev.ReceivePacket()
	if !ok {
		return Header{}, nil, false
	}
	h, ok := ParseHeader(raw)
	if !ok || !l.filterPacket(h) {
		return Header{}, nil, false
	}
	return h, raw[HeaderLen:], true
}

// randSeq picks an initial sequence number, standing in for tcp.cc's
// rand() call.
func randSeq() uint32 {
	return rand.Uint32()
}

// Listen drives the server side of the 3-way handshake: wait for SYN,
// send SYN+ACK, wait for the final ACK. Call it repeatedly (e.g. from
// a poll loop) until it returns nil or a non-ErrNoRxPacket error.
func (l *Layer) Listen() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateClosed && l.state != StateListen &&
		l.state != StateSynReceived && l.state != StateSynSent {
		return AlreadyEstablished
	}

	if l.state == StateClosed {
		l.sessionType = FlagSYN
		h, ok := l.receiveFiltered()
		if !ok {
			return ErrNoRxPacket
		}
		l.ack = h.SeqNumber + 1
		if l.peerPort == PortAny {
			l.peerPort = h.SourcePort
		}
		l.state = StateListen
	}

	if l.state == StateListen {
		l.sessionType = FlagSYN | FlagACK
		if l.seq == 0 {
			l.seq = randSeq()
		}
		if !l.transmitPrepared(nil) {
			return ErrTxFailure
		}
		l.state = StateSynSent
	}

	if l.state == StateSynSent {
		l.sessionType = FlagACK
		h, ok := l.receiveFiltered()
		if !ok {
			return ErrNoRxPacket
		}
		if h.SeqNumber != l.ack {
			return ErrAckFailure
		}
		if h.AckNumber != l.seq+1 {
			return ErrAckFailure
		}
		l.seq = h.AckNumber
		l.ack = h.SeqNumber
		l.state = StateEstablished
		return nil
	}

	return ErrUnknown
}

// Connect drives the client side of the 3-way handshake: send SYN,
// wait for SYN+ACK, send the final ACK.
func (l *Layer) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateClosed && l.state != StateListen &&
		l.state != StateSynReceived && l.state != StateSynSent {
		return AlreadyEstablished
	}

	if l.state == StateClosed {
		l.sessionType = FlagSYN
		l.seq = randSeq()
		l.ack = 0
		if !l.transmitPrepared(nil) {
			return ErrTxFailure
		}
		l.state = StateSynSent
	}

	if l.state == StateSynSent {
		l.sessionType = FlagSYN | FlagACK
		h, ok := l.receiveFiltered()
		if !ok {
			return ErrNoRxPacket
		}
		if h.AckNumber != l.seq+1 {
			return ErrAckFailure
		}

		l.sessionType = FlagACK
		l.seq = l.seq + 1
		l.ack = h.SeqNumber + 1
		if !l.transmitPrepared(nil) {
			return ErrTxFailure
		}
		l.state = StateEstablished
		return nil
	}

	return ErrUnknown
}

// Shutup drives an active close: FIN+ACK, wait for ACK, wait for the
// peer's FIN+ACK, send the final ACK.
func (l *Layer) Shutup() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateSynSent || l.state == StateListen {
		l.state = StateClosed
		return nil
	}

	if l.state == StateEstablished {
		l.sessionType = FlagFIN | FlagACK
		if !l.transmitPrepared(nil) {
			return ErrTxFailure
		}
		l.state = StateFinWait1
	}

	if l.state == StateFinWait1 {
		l.sessionType = FlagACK
		h, ok := l.receiveFiltered()
		if !ok {
			return ErrNoRxPacket
		}
		if h.SeqNumber != l.ack || h.AckNumber != l.seq+1 {
			return ErrAckFailure
		}
		l.state = StateFinWait2
	}

	if l.state == StateFinWait2 {
		l.sessionType = FlagFIN | FlagACK
		h, ok := l.receiveFiltered()
		if !ok {
			return ErrNoRxPacket
		}
		if h.SeqNumber != l.ack || h.AckNumber != l.seq+1 {
			return ErrAckFailure
		}

		l.sessionType = FlagACK
		l.seq = l.seq + 1
		l.ack = l.ack + 1
		if !l.transmitPrepared(nil) {
			return ErrTxFailure
		}
		l.state = StateClosed
		l.seq, l.ack = 0, 0
		return nil
	}

	return ErrUnknown
}

// closeAck answers a peer-initiated FIN with this side's own
// FIN+ACK, then waits for the peer's final ACK, mirroring
// TcpLayer::CloseAck (the passive-close counterpart to Shutup).
// Callers must hold l.mu.
func (l *Layer) closeAck() error {
	if l.state == StateEstablished {
		l.sessionType = FlagACK
		if !l.transmitPrepared(nil) {
			return ErrTxFailure
		}
		l.state = StateCloseWait
	}

	if l.state == StateCloseWait {
		l.sessionType = FlagFIN | FlagACK
		if !l.transmitPrepared(nil) {
			return ErrTxFailure
		}
		l.state = StateLastAck
	}

	if l.state == StateLastAck {
		l.sessionType = FlagACK
		h, ok := l.receiveFiltered()
		if !ok {
			return ErrNoRxPacket
		}
		if h.SeqNumber != l.ack || h.AckNumber != l.seq+1 {
			return ErrAckFailure
		}
		l.state = StateClosed
		l.seq, l.ack = 0, 0
		return nil
	}

	return ErrUnknown
}

// ReceiveSub is TransmitSub's receive-side counterpart: it filters
// incoming data segments, acknowledges them, and drives the passive
// close sequence (via closeAck) when the peer sends FIN. It returns
// ConnectionClosed (not an application error) once the close sequence
// completes.
//
// original_source's ReceiveSub calls TransmitPacket where context
// makes clear it meant to receive the corresponding data segment; that
// reads as a transcription slip in tcp.cc rather than intended
// behavior, so this port calls receiveFilteredPayload there instead.
func (l *Layer) ReceiveSub() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateCloseWait || l.state == StateLastAck {
		if err := l.closeAck(); err != nil {
			return nil, err
		}
		return nil, ConnectionClosed
	}

	if l.state == StateEstablished {
		if l.sessionType&FlagACK == 0 {
			// Established always leaves sessionType carrying FlagACK by
			// construction (Listen/Connect's last step sets it); this
			// mirrors tcp.cc's else branch, which just falls back to an
			// unfiltered receive rather than treating it as an error.
			if l.prev == nil {
				return nil, ErrUnexpected
			}
			payload, ok := l.prev.ReceivePacket()
			if !ok {
				return nil, ErrNoRxPacket
			}
			if len(payload) < HeaderLen {
				return nil, ErrUnknown
			}
			return payload[HeaderLen:], nil
		}

		h, payload, ok := l.receiveFilteredPayload()
		if !ok {
			return nil, ErrNoRxPacket
		}

		switch {
		case h.Has(FlagFIN):
			l.seq = h.AckNumber
			l.ack = h.SeqNumber + 1
			if err := l.closeAck(); err != nil {
				return nil, err
			}
			return nil, ConnectionClosed

		case l.ack == h.SeqNumber || (l.seq == h.SeqNumber && l.ack == h.AckNumber):
			l.seq = h.AckNumber
			l.ack = h.SeqNumber + uint32(len(payload))

			if !l.transmitPrepared(nil) {
				return nil, ErrTxFailure
			}
			return payload, nil

		default:
			return nil, ErrAckFailure
		}
	}

	return nil, ErrUnknown
}

// TransmitSub sends payload and blocks the connection in StateAckWait
// until the peer's ACK arrives (stop-and-wait: at most one segment is
// ever in flight). Call it repeatedly until it returns a length or a
// non-ErrNoRxPacket error.
func (l *Layer) TransmitSub(payload []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateAckWait {
		if !l.transmitPrepared(payload) {
			return 0, ErrTxFailure
		}
		if l.sessionType&FlagACK != 0 && l.state != StateClosed {
			l.packetLen = len(payload)
			l.state = StateAckWait
		} else {
			return 0, ErrUnexpected
		}
	}

	if l.state == StateAckWait {
		h, ok := l.receiveFiltered()
		if !ok {
			return 0, ErrNoRxPacket
		}
		if h.Has(FlagACK) && h.SeqNumber == l.ack && h.AckNumber == l.seq+uint32(l.packetLen) {
			l.seq = l.seq + uint32(l.packetLen)
			l.state = StateEstablished
			return l.packetLen, nil
		}
		return 0, ErrNoAck
	}

	return 0, ErrUnexpected
}
