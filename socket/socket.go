// Package socket provides TCPSocket, a user-facing façade over
// netstack and nettcp mirroring original_source/rlib/net/socket.h's
// Socket base class and tcp.h's TcpSocket: Open/Close/Read/Write plus
// the handshake/close passthroughs (Listen/Connect/Shutup).
package socket

import (
	"errors"
	"sync"

	"github.com/Raphine/Raph-Library/nettcp"
	"github.com/Raphine/Raph-Library/netstack"
)

// ErrNotOpen is returned by any operation attempted before Open or
// after Close.
var ErrNotOpen = errors.New("socket: not open")

// TCPSocket is a single TCP connection endpoint. A server socket calls
// Listen after Open; a client socket calls Connect. A peer port of
// nettcp.PortAny accepts a peer on any source port.
type TCPSocket struct {
	localAddr, peerAddr uint32
	localPort, peerPort uint16

	mu     sync.Mutex
	layer  *nettcp.Layer
	transp netstack.Layer
	open   bool
}

// NewTCPSocket returns an unopened socket bound to the given local
// address/port and (optional) peer address/port. Pass nettcp.PortAny
// for peerPort on a listening socket that hasn't yet seen a client.
func NewTCPSocket(localAddr uint32, localPort uint16, peerAddr uint32, peerPort uint16) *TCPSocket {
	return &TCPSocket{
		localAddr: localAddr,
		localPort: localPort,
		peerAddr:  peerAddr,
		peerPort:  peerPort,
	}
}

// Open constructs the protocol stack (transp > nettcp.Layer > this
// socket) on top of transp, mirroring TcpSocket::Open's
// BaseLayer>EthernetLayer>Ipv4Layer>TcpLayer>TcpSocket construction —
// collapsed to a single caller-supplied transport layer, since
// Ethernet/IPv4 framing is out of scope here (see netstack's doc
// comment).
func (s *TCPSocket) Open(transp netstack.Layer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	layer := nettcp.NewLayer()
	layer.SetAddress(s.localAddr)
	layer.SetPeerAddress(s.peerAddr)
	layer.SetPort(s.localPort)
	layer.SetPeerPort(s.peerPort)
	if !layer.Setup(transp) {
		return nettcp.ErrUnknown
	}

	s.layer = layer
	s.transp = transp
	s.open = true
	return nil
}

// Close tears the stack down. It tolerates being called more than
// once, matching TcpSocket::Close's documented double-call tolerance.
func (s *TCPSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}
	s.layer.Destroy()
	s.open = false
	return nil
}

// Listen drives the server side of the handshake. Call it repeatedly
// (it returns ErrNoRxPacket while waiting on the next segment) until
// it returns nil or a terminal error.
func (s *TCPSocket) Listen() error {
	s.mu.Lock()
	layer := s.layer
	open := s.open
	s.mu.Unlock()
	if !open {
		return ErrNotOpen
	}
	return layer.Listen()
}

// Connect drives the client side of the handshake.
func (s *TCPSocket) Connect() error {
	s.mu.Lock()
	layer := s.layer
	open := s.open
	s.mu.Unlock()
	if !open {
		return ErrNotOpen
	}
	return layer.Connect()
}

// Shutup drives an active graceful close.
func (s *TCPSocket) Shutup() error {
	s.mu.Lock()
	layer := s.layer
	open := s.open
	s.mu.Unlock()
	if !open {
		return ErrNotOpen
	}
	return layer.Shutup()
}

// Read receives at most len(buf) bytes of one segment's payload into
// buf, mirroring TcpSocket::Read, and reports the number of bytes
// copied. A passive close observed mid-read surfaces as
// nettcp.ConnectionClosed, not an error the caller need treat as fatal.
func (s *TCPSocket) Read(buf []byte) (int, error) {
	s.mu.Lock()
	layer := s.layer
	open := s.open
	s.mu.Unlock()
	if !open {
		return 0, ErrNotOpen
	}

	payload, err := layer.ReceiveSub()
	if err != nil {
		return 0, err
	}
	n := copy(buf, payload)
	return n, nil
}

// Write transmits buf as a single TCP segment and blocks (via repeated
// calls returning nettcp.ErrNoRxPacket) until it's acknowledged.
func (s *TCPSocket) Write(buf []byte) (int, error) {
	s.mu.Lock()
	layer := s.layer
	open := s.open
	s.mu.Unlock()
	if !open {
		return 0, ErrNotOpen
	}
	return layer.TransmitSub(buf)
}

// State reports the underlying nettcp.Layer's connection state.
func (s *TCPSocket) State() nettcp.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nettcp.StateClosed
	}
	return s.layer.State()
}
