// Package ipv4 rebuilds and dissects IPv4 datagrams from raw capture bytes.
//
// A Packet owns a private copy of the datagram, clamped to the length the IP
// header declares. Reset either fully succeeds or leaves the packet cleared;
// no partial state is ever observable. All multi-byte fields are big endian
// on the wire.
package ipv4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

const (
	// HeaderMinSize is the minimum IPv4 header size (IHL = 5).
	HeaderMinSize = 20

	// UDPHeaderSize is the fixed UDP header size.
	UDPHeaderSize = 8

	// TCPMinHeaderSize is the minimum TCP header size (data offset = 5).
	TCPMinHeaderSize = 20

	// Protocol numbers.
	ProtoTCP = 6
	ProtoUDP = 17
)

var (
	ErrTooShort      = errors.New("ipv4: datagram too short")
	ErrNotIPv4       = errors.New("ipv4: not an IPv4 datagram")
	ErrHeaderSize    = errors.New("ipv4: invalid header size")
	ErrChecksum      = errors.New("ipv4: header checksum mismatch")
	ErrTotalLength   = errors.New("ipv4: invalid total length")
	ErrProtoTooShort = errors.New("ipv4: truncated protocol header")
)

// Packet is a validated IPv4 datagram. The zero value is an invalid packet;
// call Reset to load one.
type Packet struct {
	valid     bool
	proto     uint8
	ipHdrSize int
	protoSize int
	srcPort   uint16
	dstPort   uint16
	data      []byte
}

// Reset re-derives the packet from raw bytes. On any validation failure the
// packet is cleared and an error is returned.
func (p *Packet) Reset(data []byte) error {
	hdrSize := HeaderSize(data)
	if hdrSize == 0 {
		p.Clear()
		if len(data) == 0 || len(data) < HeaderMinSize {
			return ErrTooShort
		}
		if data[0]>>4 != 4 {
			return ErrNotIPv4
		}
		return ErrHeaderSize
	}
	if !VerifyChecksum(data) {
		p.Clear()
		return ErrChecksum
	}

	// Never trust the capture length beyond what the IP header declares.
	size := len(data)
	if total := int(binary.BigEndian.Uint16(data[2:4])); total < hdrSize || total > size {
		p.Clear()
		return ErrTotalLength
	} else {
		size = total
	}

	proto := data[9]
	protoSize := 0
	var srcPort, dstPort uint16

	switch proto {
	case ProtoTCP:
		if hdrSize+TCPMinHeaderSize > size {
			p.Clear()
			return ErrProtoTooShort
		}
		protoSize = 4 * int(data[hdrSize+12]>>4)
		if protoSize < TCPMinHeaderSize || hdrSize+protoSize > size {
			p.Clear()
			return fmt.Errorf("%w: TCP data offset %d", ErrProtoTooShort, protoSize)
		}
		srcPort = binary.BigEndian.Uint16(data[hdrSize : hdrSize+2])
		dstPort = binary.BigEndian.Uint16(data[hdrSize+2 : hdrSize+4])
	case ProtoUDP:
		if hdrSize+UDPHeaderSize > size {
			p.Clear()
			return ErrProtoTooShort
		}
		protoSize = UDPHeaderSize
		// The UDP length field covers header plus data. It may legitimately
		// be smaller than the captured bytes (Ethernet padding), never larger.
		udpLen := int(binary.BigEndian.Uint16(data[hdrSize+4 : hdrSize+6]))
		if udpLen < UDPHeaderSize || hdrSize+udpLen > size {
			p.Clear()
			return fmt.Errorf("%w: UDP length %d", ErrProtoTooShort, udpLen)
		}
		size = hdrSize + udpLen
		srcPort = binary.BigEndian.Uint16(data[hdrSize : hdrSize+2])
		dstPort = binary.BigEndian.Uint16(data[hdrSize+2 : hdrSize+4])
	default:
		// Still a valid IPv4 datagram, just not dissected any further.
	}

	p.valid = true
	p.proto = proto
	p.ipHdrSize = hdrSize
	p.protoSize = protoSize
	p.srcPort = srcPort
	p.dstPort = dstPort
	p.data = append(p.data[:0], data[:size]...)
	return nil
}

// Clear resets the packet to the invalid state.
func (p *Packet) Clear() {
	p.valid = false
	p.proto = 0
	p.ipHdrSize = 0
	p.protoSize = 0
	p.srcPort = 0
	p.dstPort = 0
	p.data = p.data[:0]
}

// Valid reports whether the last Reset succeeded.
func (p *Packet) Valid() bool { return p.valid }

// Protocol returns the IP protocol number (6 for TCP, 17 for UDP, 0 when
// the packet is invalid).
func (p *Packet) Protocol() uint8 {
	if !p.valid {
		return 0
	}
	return p.proto
}

// IsTCP reports whether the datagram carries TCP.
func (p *Packet) IsTCP() bool { return p.valid && p.proto == ProtoTCP }

// IsUDP reports whether the datagram carries UDP.
func (p *Packet) IsUDP() bool { return p.valid && p.proto == ProtoUDP }

// Data returns the full datagram, truncated to the declared IP total length.
// The returned slice is owned by the packet.
func (p *Packet) Data() []byte { return p.data }

// Size returns the clamped datagram size.
func (p *Packet) Size() int { return len(p.data) }

// IPHeaderSize returns the IPv4 header size in bytes.
func (p *Packet) IPHeaderSize() int {
	if !p.valid {
		return 0
	}
	return p.ipHdrSize
}

// ProtocolHeaderSize returns the TCP or UDP header size, zero for other
// protocols.
func (p *Packet) ProtocolHeaderSize() int {
	if !p.valid {
		return 0
	}
	return p.protoSize
}

// ProtocolData returns the transport payload (after the TCP/UDP header).
func (p *Packet) ProtocolData() []byte {
	if !p.valid {
		return nil
	}
	return p.data[p.ipHdrSize+p.protoSize:]
}

// SourcePort returns the TCP/UDP source port, zero otherwise.
func (p *Packet) SourcePort() uint16 { return p.srcPort }

// DestinationPort returns the TCP/UDP destination port, zero otherwise.
func (p *Packet) DestinationPort() uint16 { return p.dstPort }

// SourceAddress returns the IPv4 source address.
func (p *Packet) SourceAddress() netip.Addr {
	if !p.valid {
		return netip.Addr{}
	}
	return netip.AddrFrom4([4]byte(p.data[12:16]))
}

// DestinationAddress returns the IPv4 destination address.
func (p *Packet) DestinationAddress() netip.Addr {
	if !p.valid {
		return netip.Addr{}
	}
	return netip.AddrFrom4([4]byte(p.data[16:20]))
}

// Fragmented reports whether the datagram is one fragment of a larger one:
// either the "more fragments" flag is set or the fragment offset is nonzero.
func (p *Packet) Fragmented() bool {
	if !p.valid {
		return false
	}
	flagsOffset := binary.BigEndian.Uint16(p.data[6:8])
	return flagsOffset&0x2000 != 0 || flagsOffset&0x1FFF != 0
}

// TCPSequenceNumber returns the TCP sequence number, zero for non-TCP.
func (p *Packet) TCPSequenceNumber() uint32 {
	if !p.IsTCP() {
		return 0
	}
	return binary.BigEndian.Uint32(p.data[p.ipHdrSize+4 : p.ipHdrSize+8])
}

func (p *Packet) tcpFlag(mask uint8) bool {
	return p.IsTCP() && p.data[p.ipHdrSize+13]&mask != 0
}

// TCPSYN reports the TCP SYN flag, false for non-TCP.
func (p *Packet) TCPSYN() bool { return p.tcpFlag(0x02) }

// TCPACK reports the TCP ACK flag, false for non-TCP.
func (p *Packet) TCPACK() bool { return p.tcpFlag(0x10) }

// TCPRST reports the TCP RST flag, false for non-TCP.
func (p *Packet) TCPRST() bool { return p.tcpFlag(0x04) }

// TCPFIN reports the TCP FIN flag, false for non-TCP.
func (p *Packet) TCPFIN() bool { return p.tcpFlag(0x01) }
