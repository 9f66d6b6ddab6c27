// Package netstack supplies a minimal protocol-stack scaffolding.
// spec.md §2/§4.7 treats packet buffers and the Ethernet/IP layers as
// external collaborators referenced only by contract; this package
// gives that contract a concrete, in-process shape — Setup/Destroy/
// ReceivePacket/TransmitPacket, matching the call shape visible in
// original_source/rlib/net/socket.h's and tcp.h's use of
// ProtocolStackLayer — so nettcp and socket have something real to run
// against without hardware. It supplements spec.md's explicit scoping
// rather than contradicting it: Ethernet/IP framing themselves are
// still out of scope, and LoopbackLayer stands in for them.
package netstack

import "errors"

// ErrClosed names the error of an operation on a layer after Destroy.
// Layer's methods report failure as a bool, so no layer in this package
// returns it.
var ErrClosed = errors.New("netstack: layer is closed")

// Layer is the minimal protocol-stack contract every layer in the
// stack implements, mirroring ProtocolStackLayer's Setup/Destroy/
// ReceivePacket/TransmitPacket quartet.
type Layer interface {
	// Setup attaches this layer on top of prev ("prev" may be nil for
	// the bottom-most layer).
	Setup(prev Layer) bool
	// Destroy tears the layer down; must tolerate being called more
	// than once.
	Destroy()
	// ReceivePacket is non-blocking: it returns ok=false immediately if
	// no packet is queued. Callers that need to wait poll it, standing
	// in for spec.md's external polling-socket shim.
	ReceivePacket() (packet []byte, ok bool)
	// TransmitPacket hands packet to the layer below.
	TransmitPacket(packet []byte) bool
}

// BaseLayer is the bottom of any stack built on this package: it has no
// layer beneath it and exists purely so upper layers have a uniform
// Setup(prev) target, mirroring ProtocolStackBaseLayer.
type BaseLayer struct {
	destroyed bool
}

// NewBaseLayer returns a ready BaseLayer.
func NewBaseLayer() *BaseLayer { return &BaseLayer{} }

func (b *BaseLayer) Setup(prev Layer) bool {
	return prev == nil
}

func (b *BaseLayer) Destroy() {
	b.destroyed = true
}

func (b *BaseLayer) ReceivePacket() ([]byte, bool) {
	return nil, false
}

func (b *BaseLayer) TransmitPacket([]byte) bool {
	return false
}
