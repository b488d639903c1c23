package ts

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/tscap/internal/log"
)

// DecapResult tells the caller what Process left in the packet slot.
type DecapResult int

const (
	// ResultPassthrough: the packet was not on the carrier PID and is
	// untouched.
	ResultPassthrough DecapResult = iota

	// ResultFiller: the packet was consumed; its slot now holds a null
	// packet.
	ResultFiller

	// ResultPacket: the slot now holds a fully reconstructed packet.
	ResultPacket
)

// klvaKey is the 16-byte UL key of the PES/KLVA envelope. The last byte is
// checked separately: its bit 0x10 carries the inner payload-start flag.
var klvaKey = [15]byte{
	0x06, 0x0E, 0x2B, 0x34,
	0x01, 0x01, 0x01, 0x01,
	0x0F, 0x01, 0x08, 0x00,
	0x0F, 0x0F, 0x0F,
}

// Decapsulator extracts the stream of logical 188-byte packets multiplexed
// inside a single carrier PID. One instance serves exactly one carrier PID
// and must not be shared across goroutines.
type Decapsulator struct {
	pid          PID
	synchronized bool
	cc           uint8
	ccValid      bool
	next         Packet // partial output packet, next[0] is the sync byte
	index        int    // fill cursor in next, always in [1, 188]
	lastError    error
	log          log.Logger
}

// NewDecapsulator creates a decapsulator for the given carrier PID.
func NewDecapsulator(pid PID, logger log.Logger) *Decapsulator {
	if logger == nil {
		logger = log.Nop()
	}
	d := &Decapsulator{log: logger}
	d.Reset(pid)
	return d
}

// Reset drops all state and reconfigures the carrier PID. Must not run
// concurrently with Process.
func (d *Decapsulator) Reset(pid PID) {
	d.pid = pid
	d.synchronized = false
	d.cc = 0
	d.ccValid = false
	d.next = Packet{}
	d.next[0] = SyncByte
	d.index = 1
	d.lastError = nil
}

// LastError returns the diagnostic recorded by the last framing violation,
// nil if none since the last ClearLastError.
func (d *Decapsulator) LastError() error { return d.lastError }

// ClearLastError marks the stored diagnostic as read.
func (d *Decapsulator) ClearLastError() { d.lastError = nil }

// Synchronized reports whether the decapsulator currently holds a byte
// offset anchor into the tunneled stream.
func (d *Decapsulator) Synchronized() bool { return d.synchronized }

// lostSync records a framing violation, replaces the packet with a filler
// and drops synchronization.
func (d *Decapsulator) lostSync(pkt *Packet, format string, args ...interface{}) (DecapResult, error) {
	d.synchronized = false
	d.index = 1
	d.lastError = fmt.Errorf("ts: decapsulation error: "+format, args...)
	*pkt = Null()
	return ResultFiller, d.lastError
}

// Process consumes one carrier packet and rewrites it in place: either the
// next reconstructed logical packet, a filler, or (on framing errors) a
// filler plus a non-nil error. Packets on other PIDs pass through.
//
// A continuity discontinuity is not an error: it silently drops
// synchronization, which the next start-marked packet can restore.
func (d *Decapsulator) Process(pkt *Packet) (DecapResult, error) {
	if pkt.PID() != d.pid {
		return ResultPassthrough, nil
	}

	// Framing needs clear, payload-bearing packets.
	if pkt.TransportError() {
		return d.lostSync(pkt, "transport error indicator set")
	}
	if pkt.IsScrambled() {
		return d.lostSync(pkt, "carrier packet is encrypted")
	}
	if !pkt.HasPayload() {
		return d.lostSync(pkt, "carrier packet has no payload")
	}

	startFlag := pkt.PUSI()
	offset := pkt.HeaderSize()

	// PES/KLVA envelope detection: payload starts with 00 00 01.
	if startFlag && PacketSize-offset > 3 &&
		pkt[offset] == 0x00 && pkt[offset+1] == 0x00 && pkt[offset+2] == 0x01 {
		var err error
		startFlag, offset, _, err = d.openEnvelope(pkt, offset+3)
		if err != nil {
			return d.lostSync(pkt, "%s", err)
		}
	}

	// Pointer field: one length byte pointing at the start of the next
	// logical packet within this carrier packet.
	pointer := 0
	if startFlag {
		if offset >= PacketSize {
			return d.lostSync(pkt, "missing pointer field")
		}
		pointer = int(pkt[offset])
		offset++
		if offset+pointer > PacketSize {
			return d.lostSync(pkt, "invalid pointer field %d at offset %d", pointer, offset)
		}
	}

	// Continuity check. A discontinuity forces resynchronization but is
	// not a framing error; the observed counter becomes the new baseline
	// either way.
	cc := pkt.CC()
	if d.ccValid && d.synchronized && cc != (d.cc+1)&ccMask {
		d.log.Debugf("discontinuity on carrier PID 0x%04X (cc %d after %d), resynchronizing", uint16(d.pid), cc, d.cc)
		d.synchronized = false
		d.index = 1
	}
	d.cc = cc
	d.ccValid = true

	if !d.synchronized {
		if !startFlag {
			// Expected transient state, not a fault.
			*pkt = Null()
			return ResultFiller, nil
		}
		// Skip the tail of a logical packet we never saw the head of.
		offset += pointer
		d.synchronized = true
		d.index = 1
	}

	// Transfer payload into the pending output packet.
	n := min(PacketSize-offset, PacketSize-d.index)
	copy(d.next[d.index:d.index+n], pkt[offset:offset+n])
	d.index += n
	offset += n

	if d.index == PacketSize {
		// Output complete. Any leftover input bytes open the next logical
		// packet, right after its implied sync byte.
		out := d.next
		d.next = Packet{}
		d.next[0] = SyncByte
		d.index = 1
		if offset < PacketSize {
			n = min(PacketSize-offset, PacketSize-1)
			copy(d.next[1:1+n], pkt[offset:offset+n])
			d.index = 1 + n
		}
		*pkt = out
		return ResultPacket, nil
	}

	// Output not complete yet: the carrier packet is fully consumed.
	*pkt = Null()
	return ResultFiller, nil
}

// openEnvelope validates and skips a PES/KLVA envelope starting right
// after the 00 00 01 start-code prefix at off. It returns the inner
// payload-start flag, the offset of the inner framing data and whether the
// envelope was in synchronous sub-mode.
func (d *Decapsulator) openEnvelope(pkt *Packet, off int) (startFlag bool, offset int, syncMode bool, err error) {
	// Stream id selects the sub-mode.
	if off >= PacketSize {
		return false, 0, false, fmt.Errorf("truncated PES envelope")
	}
	switch pkt[off] {
	case 0xBD: // private stream 1, asynchronous
		syncMode = false
	case 0xFC: // metadata stream, synchronous
		syncMode = true
	default:
		return false, 0, false, fmt.Errorf("PES stream type differs (0x%02X)", pkt[off])
	}
	off++

	// PES packet length, plausible range only.
	if off+2 > PacketSize {
		return false, 0, false, fmt.Errorf("truncated PES envelope")
	}
	size := int(binary.BigEndian.Uint16(pkt[off : off+2]))
	off += 2
	if size < 18 || size > 255 {
		return false, 0, false, fmt.Errorf("PES size out of range (%d)", size)
	}

	// Header flag bytes, only the encapsulation's own patterns pass.
	if off+2 > PacketSize {
		return false, 0, false, fmt.Errorf("truncated PES envelope")
	}
	flags1, flags2 := pkt[off], pkt[off+1]
	off += 2
	if syncMode {
		if flags1 != 0x80 || flags2 != 0x80 {
			return false, 0, false, fmt.Errorf("PES header flags differ (0x%02X 0x%02X)", flags1, flags2)
		}
	} else {
		if (flags1 != 0x84 && flags1 != 0x80) || flags2 != 0x00 {
			return false, 0, false, fmt.Errorf("PES header flags differ (0x%02X 0x%02X)", flags1, flags2)
		}
	}

	// Optional header data, skipped by declared length.
	if off >= PacketSize {
		return false, 0, false, fmt.Errorf("truncated PES envelope")
	}
	off += 1 + int(pkt[off])
	if off >= PacketSize {
		return false, 0, false, fmt.Errorf("truncated PES optional header")
	}

	if syncMode {
		// Metadata AU header: service id, sequence, flags, cell size.
		if off+5 > PacketSize {
			return false, 0, false, fmt.Errorf("truncated metadata AU header")
		}
		cell := int(binary.BigEndian.Uint16(pkt[off+3 : off+5]))
		if pkt[off] != 0x00 || pkt[off+2] != 0xDF || cell > PacketSize {
			return false, 0, false, fmt.Errorf("metadata AU header differs")
		}
		off += 5
	}

	// 16-byte UL key signature; any differing byte is a mismatch.
	if off+16 > PacketSize {
		return false, 0, false, fmt.Errorf("truncated KLVA key")
	}
	for i, k := range klvaKey {
		if pkt[off+i] != k {
			return false, 0, false, fmt.Errorf("KLVA UL key differs at byte %d", i)
		}
	}
	last := pkt[off+15]
	if last != 0x0F && last != 0x1F {
		return false, 0, false, fmt.Errorf("KLVA UL key differs at byte 15")
	}
	startFlag = last&0x10 != 0
	off += 16

	// BER-like length: short form up to 127, 0x81 introduces one more
	// length byte, anything else is excessive.
	if off >= PacketSize {
		return false, 0, false, fmt.Errorf("truncated KLVA length")
	}
	length := int(pkt[off])
	off++
	if length > 127 {
		if length != 0x81 || off >= PacketSize {
			return false, 0, false, fmt.Errorf("invalid KLVA BER length")
		}
		length = int(pkt[off])
		off++
	}
	if length > PacketSize {
		return false, 0, false, fmt.Errorf("KLVA length too large (%d)", length)
	}

	return startFlag, off, syncMode, nil
}
