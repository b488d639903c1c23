// Package ts implements MPEG transport-stream packet handling and the
// single-PID packet encapsulation protocol (plain pointer-field framing or
// PES/KLVA envelope) in both directions.
package ts

// PID is a 13-bit packet identifier.
type PID uint16

const (
	// PacketSize is the fixed size of a transport-stream packet.
	PacketSize = 188

	// SyncByte starts every transport-stream packet.
	SyncByte = 0x47

	// PIDNull is the stuffing PID.
	PIDNull PID = 0x1FFF

	// PIDMax is one past the highest valid PID.
	PIDMax PID = 0x2000

	ccMask = 0x0F
)

// Packet is a raw 188-byte transport-stream packet.
type Packet [PacketSize]byte

// Null returns a stuffing packet: null PID, payload of 0xFF.
func Null() Packet {
	var p Packet
	p[0] = SyncByte
	p[1] = 0x1F
	p[2] = 0xFF
	p[3] = 0x10
	for i := 4; i < PacketSize; i++ {
		p[i] = 0xFF
	}
	return p
}

// Init makes p a packet on the given PID with an empty payload of stuffing
// bytes and the given continuity counter.
func (p *Packet) Init(pid PID, cc uint8) {
	p[0] = SyncByte
	p[1] = byte(pid>>8) & 0x1F
	p[2] = byte(pid)
	p[3] = 0x10 | cc&ccMask
	for i := 4; i < PacketSize; i++ {
		p[i] = 0xFF
	}
}

// HasValidSync reports whether the packet starts with the sync byte.
func (p *Packet) HasValidSync() bool { return p[0] == SyncByte }

// PID returns the packet identifier.
func (p *Packet) PID() PID { return PID(p[1]&0x1F)<<8 | PID(p[2]) }

// SetPID overwrites the packet identifier.
func (p *Packet) SetPID(pid PID) {
	p[1] = p[1]&0xE0 | byte(pid>>8)&0x1F
	p[2] = byte(pid)
}

// TransportError reports the transport error indicator.
func (p *Packet) TransportError() bool { return p[1]&0x80 != 0 }

// PUSI reports the payload unit start indicator.
func (p *Packet) PUSI() bool { return p[1]&0x40 != 0 }

// SetPUSI sets the payload unit start indicator.
func (p *Packet) SetPUSI() { p[1] |= 0x40 }

// ClearPUSI clears the payload unit start indicator.
func (p *Packet) ClearPUSI() { p[1] &^= 0x40 }

// IsScrambled reports whether the transport scrambling control is nonzero.
func (p *Packet) IsScrambled() bool { return p[3]&0xC0 != 0 }

// CC returns the 4-bit continuity counter.
func (p *Packet) CC() uint8 { return p[3] & ccMask }

// SetCC overwrites the continuity counter.
func (p *Packet) SetCC(cc uint8) { p[3] = p[3]&^ccMask | cc&ccMask }

// HasAdaptationField reports the adaptation field control bit.
func (p *Packet) HasAdaptationField() bool { return p[3]&0x20 != 0 }

// HasPayload reports the payload control bit.
func (p *Packet) HasPayload() bool { return p[3]&0x10 != 0 }

// adaptationFieldTotal returns the total adaptation field size including
// its length byte, clamped to the packet.
func (p *Packet) adaptationFieldTotal() int {
	if !p.HasAdaptationField() {
		return 0
	}
	total := 1 + int(p[4])
	if total > PacketSize-4 {
		total = PacketSize - 4
	}
	return total
}

// HeaderSize returns the size of the TS header including any adaptation
// field, i.e. the offset of the payload.
func (p *Packet) HeaderSize() int {
	return 4 + p.adaptationFieldTotal()
}

// PayloadSize returns the number of payload bytes.
func (p *Packet) PayloadSize() int {
	if !p.HasPayload() {
		return 0
	}
	return PacketSize - p.HeaderSize()
}

// Payload returns the payload bytes, nil when the packet carries none.
func (p *Packet) Payload() []byte {
	if !p.HasPayload() {
		return nil
	}
	return p[p.HeaderSize():]
}

// SetPayloadSize shrinks the payload to n bytes by growing the adaptation
// field with stuffing. Growing the payload back is not supported. Returns
// false when n is larger than the current payload.
func (p *Packet) SetPayloadSize(n int) bool {
	cur := PacketSize - p.HeaderSize()
	if n < 0 || n > cur {
		return false
	}
	if n == cur {
		return true
	}
	grow := cur - n
	if !p.HasAdaptationField() {
		p[3] |= 0x20
		p[4] = byte(grow - 1)
		if grow > 1 {
			p[5] = 0x00 // adaptation field flags
			for i := 6; i < 4+grow; i++ {
				p[i] = 0xFF
			}
		}
		return true
	}
	afLen := int(p[4])
	p[4] = byte(afLen + grow)
	start := 5 + afLen
	if afLen == 0 {
		p[start] = 0x00
		start++
		grow--
	}
	for i := 0; i < grow; i++ {
		p[start+i] = 0xFF
	}
	return true
}
