package ts

import (
	"errors"
	"fmt"
)

// PESMode selects the optional PES envelope around the encapsulated stream.
type PESMode int

const (
	// PESDisabled uses plain pointer-field framing.
	PESDisabled PESMode = iota

	// PESFixed wraps every carrier packet in a PES envelope with a
	// short-form KLVA length (payload capped accordingly).
	PESFixed

	// PESVariable wraps every carrier packet in a PES envelope, using the
	// long-form KLVA length when the payload requires it.
	PESVariable
)

const (
	// pesFixedMaxPayload is the largest payload expressible with a
	// short-form BER length in asynchronous PES mode.
	pesFixedMaxPayload = 153

	// defaultMaxBuffered bounds the late-packet queue.
	defaultMaxBuffered = 128
)

var (
	ErrPIDConflict    = errors.New("ts: output PID present on input but not encapsulated")
	ErrBufferOverflow = errors.New("ts: buffered packets overflow, insufficient null packets in input stream")
)

// Encapsulator packs the packets of a set of input PIDs into the payload
// of a single carrier PID, replacing input and null packets 1:1. The
// reverse operation is Decapsulator.
type Encapsulator struct {
	pidOutput  PID
	pidInput   map[PID]bool
	pesMode    PESMode
	packing    bool
	packDist   int
	ccOutput   uint8
	lateIndex  int // read cursor in the first queued packet, 1..187
	lateDist   int
	lateMax    int
	late       []*Packet
	lastError  error
}

// NewEncapsulator creates an encapsulator tunneling the given input PIDs
// into pidOutput. The null PID can never be encapsulated.
func NewEncapsulator(pidOutput PID, pidInput []PID) *Encapsulator {
	e := &Encapsulator{lateMax: defaultMaxBuffered}
	e.Reset(pidOutput, pidInput)
	return e
}

// Reset drops all state and reconfigures the encapsulation.
func (e *Encapsulator) Reset(pidOutput PID, pidInput []PID) {
	e.pidOutput = pidOutput
	e.pidInput = make(map[PID]bool, len(pidInput))
	for _, pid := range pidInput {
		if pid < PIDNull {
			e.pidInput[pid] = true
		}
	}
	e.pesMode = PESDisabled
	e.packing = false
	e.packDist = 0
	e.ccOutput = 0
	e.lateIndex = 0
	e.lateDist = 0
	e.late = nil
	e.lastError = nil
}

// SetPESMode selects the envelope mode for subsequent output packets.
func (e *Encapsulator) SetPESMode(mode PESMode) { e.pesMode = mode }

// SetPacking defers output until a full payload is available. A nonzero
// distance bounds how long a partial payload may wait.
func (e *Encapsulator) SetPacking(on bool, distance int) {
	e.packing = on
	e.packDist = distance
}

// SetMaxBufferedPackets bounds the late-packet queue. A minimum margin is
// always kept.
func (e *Encapsulator) SetMaxBufferedPackets(n int) {
	e.lateMax = max(8, n)
}

// LastError returns the diagnostic of the last failed Process call.
func (e *Encapsulator) LastError() error { return e.lastError }

// Process consumes one stream packet and rewrites it in place. Input-set
// packets are queued and their slot replaced (by an output packet when one
// is due, a null packet otherwise); null packets are replaced by output
// packets when data is pending; everything else passes through.
func (e *Encapsulator) Process(pkt *Packet) error {
	pid := pkt.PID()

	// Conflict: the output PID already carries foreign traffic.
	if pid == e.pidOutput && !e.pidInput[pid] {
		e.lastError = fmt.Errorf("%w: 0x%04X", ErrPIDConflict, uint16(pid))
		return e.lastError
	}

	e.lateDist++
	if e.lateIndex < 1 {
		e.lateIndex = 1
	}

	replaceable := pid == PIDNull
	if e.pidInput[pid] && e.pidOutput != PIDNull {
		if len(e.late) > e.lateMax {
			e.lastError = ErrBufferOverflow
			return e.lastError
		}
		queued := *pkt
		e.late = append(e.late, &queued)
		if len(e.late) == 1 {
			e.lateIndex = 1 // skip the sync byte of the queued packet
			e.lateDist = 1
		}
		// The input packet slot itself becomes replaceable.
		replaceable = true
	}

	if !replaceable {
		return nil
	}
	if len(e.late) == 0 {
		*pkt = Null()
		return nil
	}

	// Bytes pending in the queue (at least).
	addBytes := (PacketSize - e.lateIndex)
	if len(e.late) > 1 {
		addBytes += PacketSize
	}

	// With packing enabled, wait for a full payload unless the oldest
	// queued data has been waiting longer than the packing distance.
	packout := !e.packing
	if e.packing && e.packDist > 0 && e.lateDist > e.packDist {
		packout = true
	}
	if !packout && addBytes < PacketSize-4-1 {
		*pkt = Null()
		return nil
	}

	e.buildOutput(pkt)
	return nil
}

// buildOutput assembles one carrier packet from the late queue into pkt.
func (e *Encapsulator) buildOutput(pkt *Packet) {
	pkt.Init(e.pidOutput, e.ccOutput)
	e.ccOutput = (e.ccOutput + 1) & ccMask

	// Fixed PES mode caps the payload so the KLVA length stays short-form.
	if e.pesMode == PESFixed && pkt.PayloadSize() > pesFixedMaxPayload {
		pkt.SetPayloadSize(pesFixedMaxPayload)
	}

	// Envelope size: 9-byte PES header + 16-byte key + 1 or 2 length
	// bytes, zero when PES mode is off.
	addBytes := (PacketSize - e.lateIndex)
	if len(e.late) > 1 {
		addBytes += PacketSize
	}
	pesHeader := 0
	if e.pesMode != PESDisabled {
		if addBytes <= 127 || pkt.PayloadSize() <= pesFixedMaxPayload {
			pesHeader = 26
		} else {
			pesHeader = 27
		}
	}

	// If the single queued packet has fewer remaining bytes than the
	// output payload, shrink the payload with adaptation-field stuffing.
	// So few bytes cannot start a packet, hence no pointer field then.
	if len(e.late) == 1 && e.lateIndex > pesHeader+pkt.HeaderSize() {
		pkt.SetPayloadSize(PacketSize - e.lateIndex + pesHeader)
	}

	idx := pkt.HeaderSize()
	pesPointer := 0
	if pesHeader > 0 {
		pesPointer = e.writeEnvelope(pkt, &idx)
	}

	// Insert the start flag and pointer field when a logical packet
	// boundary lands in this payload.
	if e.lateIndex == 1 {
		// The payload begins directly on a packet boundary.
		e.setStartFlag(pkt, pesPointer)
		pkt[idx] = 0
		idx++
	} else if e.lateIndex > idx+1 && len(e.late) > 1 {
		// The tail of the first queued packet ends inside this payload.
		e.setStartFlag(pkt, pesPointer)
		pkt[idx] = byte(PacketSize - e.lateIndex)
		idx++
	}

	// Fill from the first queued packet, then from the next one.
	e.fill(pkt, &idx)
	if idx < PacketSize {
		e.fill(pkt, &idx)
	}
}

// setStartFlag marks the start of a logical packet: the native PUSI in
// plain mode, bit 0x10 of the KLVA key's last byte in PES mode.
func (e *Encapsulator) setStartFlag(pkt *Packet, pesPointer int) {
	if e.pesMode != PESDisabled {
		pkt[pesPointer+18] |= 0x10
	} else {
		pkt.SetPUSI()
	}
}

// writeEnvelope emits the asynchronous PES/KLVA envelope at *idx and
// advances it past the envelope. It returns the index of the first flag
// byte, used later to patch the start flag and the PES length.
func (e *Encapsulator) writeEnvelope(pkt *Packet, idx *int) int {
	i := *idx

	// PES header: start code, private stream 1, length patched below.
	pkt[i] = 0x00
	pkt[i+1] = 0x00
	pkt[i+2] = 0x01
	pkt[i+3] = 0xBD
	pkt[i+4] = 0x00
	pkt[i+5] = 0x00
	i += 6
	pesPointer := i

	pkt[i] = 0x84   // header flags: data alignment
	pkt[i+1] = 0x00 // header flags
	pkt[i+2] = 0x00 // no optional fields
	i += 3

	// KLVA UL key; bit 0x10 of the last byte doubles as the start flag.
	copy(pkt[i:i+15], klvaKey[:])
	pkt[i+15] = 0x0F
	i += 16

	// BER length of the value part.
	payload := PacketSize - i - 1
	if payload > 127 {
		pkt[i] = 0x81 // long form, one length byte
		i++
		payload--
	}
	pkt[i] = byte(payload)
	i++

	// Every PES-wrapped carrier packet is a complete PES packet.
	pkt.SetPUSI()
	pkt[pesPointer-1] = byte(PacketSize - pesPointer)

	*idx = i
	return pesPointer
}

// fill copies payload bytes from the first queued packet, skipping its
// sync byte, and pops it once fully consumed.
func (e *Encapsulator) fill(pkt *Packet, idx *int) {
	if len(e.late) == 0 {
		return
	}
	n := min(PacketSize-*idx, PacketSize-e.lateIndex)
	copy(pkt[*idx:*idx+n], e.late[0][e.lateIndex:e.lateIndex+n])
	*idx += n
	e.lateIndex += n

	if e.lateIndex >= PacketSize {
		e.late = e.late[1:]
		e.lateIndex = 1
	}
}
