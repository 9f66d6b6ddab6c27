// Package nettcp implements a minimal TCP layer: wire header encoding,
// the connection state machine (3-way handshake, graceful close,
// single-segment stop-and-wait data transfer) and its checksum, all
// grounded on original_source/rlib/net/tcp.h/tcp.cc. It runs on top of
// a netstack.Layer rather than a real NIC/IP stack, so segments carry
// no real IP fragmentation or routing, matching spec.md's choice to
// treat IP/Ethernet as external collaborators.
package nettcp

import "encoding/binary"

// Flag is a single bit of the TCP flags byte.
type Flag uint8

const (
	FlagFIN Flag = 1 << 0
	FlagSYN Flag = 1 << 1
	FlagRST Flag = 1 << 2
	FlagPSH Flag = 1 << 3
	FlagACK Flag = 1 << 4
	FlagURG Flag = 1 << 5
	FlagECE Flag = 1 << 6
	FlagCWR Flag = 1 << 7
)

// HeaderLen is the fixed size in bytes of a Header once marshalled.
// original_source's packed struct also carries a redundant "flag: 6"
// byte alongside the individual session bits; that redundancy doesn't
// survive translation to a real byte-for-byte wire format, so Header
// keeps a single flags byte, matching RFC 793's actual layout.
const HeaderLen = 20

// Header is a TCP segment header in host-accessible form.
type Header struct {
	SourcePort    uint16
	DestPort      uint16
	SeqNumber     uint32
	AckNumber     uint32
	DataOffset    uint8 // header length in 32-bit words
	Flags         Flag
	WindowSize    uint16
	Checksum      uint16
	UrgentPointer uint16
}

// Has reports whether every bit set in want is also set in h.Flags.
func (h *Header) Has(want Flag) bool {
	return h.Flags&want == want
}

// Marshal encodes h as a HeaderLen-byte segment (with no options or
// payload).
func (h *Header) Marshal() []byte {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], h.SourcePort)
	binary.BigEndian.PutUint16(buf[2:4], h.DestPort)
	binary.BigEndian.PutUint32(buf[4:8], h.SeqNumber)
	binary.BigEndian.PutUint32(buf[8:12], h.AckNumber)
	buf[12] = h.DataOffset << 4
	buf[13] = uint8(h.Flags)
	binary.BigEndian.PutUint16(buf[14:16], h.WindowSize)
	binary.BigEndian.PutUint16(buf[16:18], h.Checksum)
	binary.BigEndian.PutUint16(buf[18:20], h.UrgentPointer)
	return buf
}

// ParseHeader decodes the leading HeaderLen bytes of buf into a Header.
func ParseHeader(buf []byte) (Header, bool) {
	if len(buf) < HeaderLen {
		return Header{}, false
	}
	return Header{
		SourcePort:    binary.BigEndian.Uint16(buf[0:2]),
		DestPort:      binary.BigEndian.Uint16(buf[2:4]),
		SeqNumber:     binary.BigEndian.Uint32(buf[4:8]),
		AckNumber:     binary.BigEndian.Uint32(buf[8:12]),
		DataOffset:    buf[12] >> 4,
		Flags:         Flag(buf[13]),
		WindowSize:    binary.BigEndian.Uint16(buf[14:16]),
		Checksum:      binary.BigEndian.Uint16(buf[16:18]),
		UrgentPointer: binary.BigEndian.Uint16(buf[18:20]),
	}, true
}

// Ipv4Checksum computes the TCP checksum over buf (header, options and
// body) using the IPv4 pseudo-header formed from saddr/daddr, per
// tcp.cc's TcpLayer::Ipv4Checksum (one's-complement sum-and-fold).
func Ipv4Checksum(buf []byte, saddr, daddr uint32) uint16 {
	var sum uint32

	add := func(v uint16) {
		sum += uint32(v)
		for sum&0xffff0000 != 0 {
			sum = (sum & 0xffff) + (sum >> 16)
		}
	}

	add(uint16(saddr >> 16))
	add(uint16(saddr))
	add(uint16(daddr >> 16))
	add(uint16(daddr))
	add(uint16(protocolTCP))
	add(uint16(len(buf)))

	i := 0
	for ; i+1 < len(buf); i += 2 {
		add(uint16(buf[i])<<8 | uint16(buf[i+1]))
	}
	if i < len(buf) {
		add(uint16(buf[i]) << 8)
	}

	return ^uint16(sum)
}

// protocolTCP is IPv4's protocol number for TCP, used only as an input
// to the pseudo-header checksum.
const protocolTCP = 6
