package ts

import "testing"

func TestNullPacket(t *testing.T) {
	p := Null()
	if !p.HasValidSync() {
		t.Error("Expected sync byte")
	}
	if p.PID() != PIDNull {
		t.Errorf("Expected null PID, got 0x%04X", uint16(p.PID()))
	}
	if !p.HasPayload() || p.HasAdaptationField() {
		t.Error("Null packet must carry a plain payload")
	}
	if p.PayloadSize() != PacketSize-4 {
		t.Errorf("Expected 184 payload bytes, got %d", p.PayloadSize())
	}
}

func TestInitAndAccessors(t *testing.T) {
	var p Packet
	p.Init(0x1ABC, 7)
	if p.PID() != 0x1ABC {
		t.Errorf("Expected PID 0x1ABC, got 0x%04X", uint16(p.PID()))
	}
	if p.CC() != 7 {
		t.Errorf("Expected CC 7, got %d", p.CC())
	}
	if p.TransportError() || p.PUSI() || p.IsScrambled() {
		t.Error("Unexpected flags on fresh packet")
	}

	p.SetPID(0x0042)
	if p.PID() != 0x0042 {
		t.Errorf("SetPID failed, got 0x%04X", uint16(p.PID()))
	}
	p.SetCC(15)
	if p.CC() != 15 {
		t.Errorf("SetCC failed, got %d", p.CC())
	}
	p.SetPUSI()
	if !p.PUSI() {
		t.Error("SetPUSI failed")
	}
	p.ClearPUSI()
	if p.PUSI() {
		t.Error("ClearPUSI failed")
	}
}

func TestHeaderSizeWithAdaptationField(t *testing.T) {
	var p Packet
	p.Init(100, 0)
	if p.HeaderSize() != 4 {
		t.Errorf("Expected header size 4, got %d", p.HeaderSize())
	}

	p[3] |= 0x20 // adaptation field present
	p[4] = 10
	if p.HeaderSize() != 15 {
		t.Errorf("Expected header size 15, got %d", p.HeaderSize())
	}
	if p.PayloadSize() != PacketSize-15 {
		t.Errorf("Expected payload size %d, got %d", PacketSize-15, p.PayloadSize())
	}

	// Oversized adaptation length is clamped to the packet.
	p[4] = 200
	if p.HeaderSize() != PacketSize {
		t.Errorf("Expected clamped header size 188, got %d", p.HeaderSize())
	}
}

func TestSetPayloadSize(t *testing.T) {
	var p Packet
	p.Init(100, 0)

	if !p.SetPayloadSize(100) {
		t.Fatal("SetPayloadSize(100) failed")
	}
	if p.PayloadSize() != 100 {
		t.Fatalf("Expected payload size 100, got %d", p.PayloadSize())
	}
	if !p.HasAdaptationField() {
		t.Error("Expected adaptation field after shrink")
	}

	// Shrinking further extends the existing adaptation field.
	if !p.SetPayloadSize(40) {
		t.Fatal("SetPayloadSize(40) failed")
	}
	if p.PayloadSize() != 40 {
		t.Errorf("Expected payload size 40, got %d", p.PayloadSize())
	}

	// Growing back is not supported.
	if p.SetPayloadSize(100) {
		t.Error("Growing the payload must fail")
	}
}

func TestSetPayloadSizeByOne(t *testing.T) {
	var p Packet
	p.Init(100, 0)
	if !p.SetPayloadSize(PacketSize - 4 - 1) {
		t.Fatal("SetPayloadSize failed")
	}
	// A one-byte adaptation field is just the length byte set to zero.
	if !p.HasAdaptationField() || p[4] != 0 {
		t.Error("Expected one-byte adaptation field")
	}
	if p.PayloadSize() != PacketSize-5 {
		t.Errorf("Expected payload size %d, got %d", PacketSize-5, p.PayloadSize())
	}
}
