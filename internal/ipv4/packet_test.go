package ipv4

import (
	"bytes"
	"encoding/binary"
	"net/netip"
	"testing"
)

// buildUDP assembles a valid IPv4/UDP datagram with a correct header
// checksum and the declared UDP length.
func buildUDP(sport, dport uint16, payload []byte) []byte {
	data := make([]byte, HeaderMinSize+UDPHeaderSize+len(payload))
	data[0] = 0x45
	binary.BigEndian.PutUint16(data[2:4], uint16(len(data)))
	data[8] = 64
	data[9] = ProtoUDP
	copy(data[12:16], []byte{192, 168, 1, 1})
	copy(data[16:20], []byte{239, 0, 0, 1})
	binary.BigEndian.PutUint16(data[20:22], sport)
	binary.BigEndian.PutUint16(data[22:24], dport)
	binary.BigEndian.PutUint16(data[24:26], uint16(UDPHeaderSize+len(payload)))
	copy(data[28:], payload)
	UpdateChecksum(data)
	return data
}

// buildTCP assembles a valid IPv4/TCP segment with the given header
// length, flags and sequence number.
func buildTCP(sport, dport uint16, seq uint32, flags byte, tcpHdrSize int, payload []byte) []byte {
	data := make([]byte, HeaderMinSize+tcpHdrSize+len(payload))
	data[0] = 0x45
	binary.BigEndian.PutUint16(data[2:4], uint16(len(data)))
	data[8] = 64
	data[9] = ProtoTCP
	copy(data[12:16], []byte{10, 0, 0, 1})
	copy(data[16:20], []byte{10, 0, 0, 2})
	tcp := data[HeaderMinSize:]
	binary.BigEndian.PutUint16(tcp[0:2], sport)
	binary.BigEndian.PutUint16(tcp[2:4], dport)
	binary.BigEndian.PutUint32(tcp[4:8], seq)
	tcp[12] = byte(tcpHdrSize/4) << 4
	tcp[13] = flags
	copy(tcp[tcpHdrSize:], payload)
	UpdateChecksum(data)
	return data
}

func TestResetUDPBasic(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	data := buildUDP(5004, 1234, payload)

	var p Packet
	if err := p.Reset(data); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if !p.Valid() {
		t.Fatal("Expected valid packet")
	}
	if !p.IsUDP() || p.IsTCP() {
		t.Errorf("Expected UDP, got protocol %d", p.Protocol())
	}
	if p.SourcePort() != 5004 || p.DestinationPort() != 1234 {
		t.Errorf("Expected ports 5004/1234, got %d/%d", p.SourcePort(), p.DestinationPort())
	}
	if p.SourceAddress() != netip.MustParseAddr("192.168.1.1") {
		t.Errorf("Unexpected source address %v", p.SourceAddress())
	}
	if p.DestinationAddress() != netip.MustParseAddr("239.0.0.1") {
		t.Errorf("Unexpected destination address %v", p.DestinationAddress())
	}
	if p.IPHeaderSize() != HeaderMinSize {
		t.Errorf("Expected IP header size 20, got %d", p.IPHeaderSize())
	}
	if p.ProtocolHeaderSize() != UDPHeaderSize {
		t.Errorf("Expected UDP header size 8, got %d", p.ProtocolHeaderSize())
	}
	if !bytes.Equal(p.ProtocolData(), payload) {
		t.Errorf("Expected payload %x, got %x", payload, p.ProtocolData())
	}
	if p.Fragmented() {
		t.Error("Unexpected fragmented flag")
	}
}

func TestResetRejectsMalformed(t *testing.T) {
	good := buildUDP(1000, 2000, []byte{1, 2, 3})

	cases := []struct {
		name   string
		mangle func([]byte) []byte
	}{
		{"too short", func(d []byte) []byte { return d[:10] }},
		{"not IPv4", func(d []byte) []byte { d[0] = 0x65; return d }},
		{"bad IHL", func(d []byte) []byte { d[0] = 0x44; return d }},
		{"bad checksum", func(d []byte) []byte { d[10] ^= 0x01; return d }},
		{"total length short", func(d []byte) []byte {
			binary.BigEndian.PutUint16(d[2:4], 10)
			UpdateChecksum(d)
			return d
		}},
		{"total length beyond data", func(d []byte) []byte {
			binary.BigEndian.PutUint16(d[2:4], uint16(len(d)+4))
			UpdateChecksum(d)
			return d
		}},
		{"UDP length beyond data", func(d []byte) []byte {
			binary.BigEndian.PutUint16(d[24:26], uint16(len(d)))
			return d
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := tc.mangle(append([]byte(nil), good...))
			var p Packet
			if err := p.Reset(data); err == nil {
				t.Fatal("Expected error")
			}
			if p.Valid() {
				t.Error("Packet must be invalid after failed Reset")
			}
			if len(p.Data()) != 0 {
				t.Error("Data must be empty after failed Reset")
			}
		})
	}
}

func TestResetClampsTrailingBytes(t *testing.T) {
	data := buildUDP(1000, 2000, []byte{1, 2, 3, 4})
	padded := append(append([]byte(nil), data...), 0xFF, 0xFF, 0xFF)

	var p Packet
	if err := p.Reset(padded); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if p.Size() != len(data) {
		t.Errorf("Expected size %d after clamp, got %d", len(data), p.Size())
	}
}

func TestResetClampsUDPLength(t *testing.T) {
	// Declared UDP length shorter than the captured payload: trailing
	// bytes do not belong to the datagram.
	data := buildUDP(1000, 2000, []byte{1, 2, 3, 4, 5, 6})
	binary.BigEndian.PutUint16(data[24:26], UDPHeaderSize+2)

	var p Packet
	if err := p.Reset(data); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if got := p.ProtocolData(); len(got) != 2 {
		t.Errorf("Expected 2 payload bytes, got %d", len(got))
	}
}

func TestResetTCP(t *testing.T) {
	seq := uint32(0xCAFEBABE)
	data := buildTCP(40000, 80, seq, 0x12, 32, []byte{0xAA})

	var p Packet
	if err := p.Reset(data); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if !p.IsTCP() {
		t.Fatal("Expected TCP")
	}
	if p.ProtocolHeaderSize() != 32 {
		t.Errorf("Expected TCP header size 32, got %d", p.ProtocolHeaderSize())
	}
	if p.TCPSequenceNumber() != seq {
		t.Errorf("Expected seq 0x%08X, got 0x%08X", seq, p.TCPSequenceNumber())
	}
	if !p.TCPSYN() || !p.TCPACK() {
		t.Error("Expected SYN and ACK set")
	}
	if p.TCPRST() || p.TCPFIN() {
		t.Error("Unexpected RST or FIN")
	}
	if len(p.ProtocolData()) != 1 || p.ProtocolData()[0] != 0xAA {
		t.Errorf("Unexpected TCP payload %x", p.ProtocolData())
	}
}

func TestResetTCPHeaderTooShort(t *testing.T) {
	data := buildTCP(1, 2, 0, 0, 20, nil)
	// Data offset below the minimum header size.
	data[HeaderMinSize+12] = 4 << 4

	var p Packet
	if err := p.Reset(data); err == nil {
		t.Fatal("Expected error for TCP data offset below 20 bytes")
	}
}

func TestResetOtherProtocolAccepted(t *testing.T) {
	data := buildUDP(1, 2, []byte{9, 9})
	data[9] = 47 // GRE
	UpdateChecksum(data)

	var p Packet
	if err := p.Reset(data); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if p.IsUDP() || p.IsTCP() {
		t.Error("Expected neither UDP nor TCP")
	}
	if p.ProtocolHeaderSize() != 0 || p.SourcePort() != 0 || p.DestinationPort() != 0 {
		t.Error("Expected zero transport header and ports")
	}
}

func TestResetReplacesPreviousState(t *testing.T) {
	var p Packet
	if err := p.Reset(buildUDP(1000, 2000, []byte{1, 2, 3})); err != nil {
		t.Fatalf("first Reset failed: %v", err)
	}
	if err := p.Reset([]byte{0x45}); err == nil {
		t.Fatal("Expected error")
	}
	if p.Valid() || p.SourcePort() != 0 {
		t.Error("Failed Reset must clear previous state")
	}

	// Valid again after another good datagram.
	if err := p.Reset(buildUDP(7, 8, nil)); err != nil {
		t.Fatalf("third Reset failed: %v", err)
	}
	if !p.Valid() || p.SourcePort() != 7 {
		t.Error("Expected packet state from the latest Reset")
	}
}

func TestResetOwnsData(t *testing.T) {
	data := buildUDP(1000, 2000, []byte{1, 2, 3})
	var p Packet
	if err := p.Reset(data); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	data[28] = 0xFF
	if p.ProtocolData()[0] != 1 {
		t.Error("Packet must keep its own copy of the data")
	}
}

func TestFragmented(t *testing.T) {
	data := buildUDP(1000, 2000, []byte{1, 2, 3})
	data[6] = 0x20 // more fragments
	UpdateChecksum(data)

	var p Packet
	if err := p.Reset(data); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if !p.Fragmented() {
		t.Error("Expected fragmented flag")
	}
}
