// Package pcap implements a reader for pcap and pcap-ng capture files,
// extracting embedded IPv4 datagrams.
//
// The reader is format and endianness agnostic: classic pcap (microsecond
// or nanosecond variants, either byte order) and pcap-ng (per-section byte
// order, multiple interfaces, multiple sections) are handled behind a
// single ReadIPv4 call.
package pcap

// First four bytes of a capture file, read as big endian.
const (
	magicPcapBE   = 0xA1B2C3D4 // classic pcap, big endian, microseconds
	magicPcapLE   = 0xD4C3B2A1 // classic pcap, little endian, microseconds
	magicPcapNSBE = 0xA1B23C4D // classic pcap, big endian, nanoseconds
	magicPcapNSLE = 0x4D3CB2A1 // classic pcap, little endian, nanoseconds
	magicPcapNG   = 0x0A0D0D0A // pcap-ng, endian neutral

	// "Byte-order magic" at the start of a pcap-ng section header body.
	ngOrderBE = 0x1A2B3C4D
	ngOrderLE = 0x4D3C2B1A
)

// Pcap-ng block types consumed by the reader. Anything else is skipped
// opaquely.
const (
	ngBlockSectionHeader  = magicPcapNG
	ngBlockInterfaceDesc  = 0x00000001
	ngBlockObsoletePacket = 0x00000002
	ngBlockSimplePacket   = 0x00000003
	ngBlockEnhancedPacket = 0x00000006
)

// Pcap-ng interface description option codes.
const (
	ngOptEndOfOpt = 0
	ngOptTSResol  = 9
	ngOptFCSLen   = 13
	ngOptTSOffset = 14
)

// Link types, per http://www.tcpdump.org/linktypes.html. Only the types the
// IPv4 extraction understands are named; everything else is reported
// verbatim in InterfaceDesc.LinkType.
const (
	LinkTypeNull     = 0   // BSD loopback encapsulation
	LinkTypeEthernet = 1   // IEEE 802.3 Ethernet
	LinkTypeRaw      = 101 // raw IP, no link-layer header
	LinkTypeLoop     = 108 // OpenBSD loopback encapsulation
)

// Ethernet II framing.
const (
	etherHeaderSize = 14
	etherTypeOffset = 12
	etherTypeIPv4   = 0x0800
)

const (
	microPerSec = 1_000_000
	nanoPerSec  = 1_000_000_000
)
