package pcap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"firestige.xyz/tscap/internal/ipv4"
	"firestige.xyz/tscap/internal/log"
)

var (
	ErrFormat = errors.New("pcap: invalid capture file format")
	ErrClosed = errors.New("pcap: reader is closed")
)

// State of a Reader. Once a reader enters StateError every subsequent read
// fails immediately without touching the underlying stream.
type State int

const (
	StateOpen State = iota
	StateError
	StateClosed
)

// InterfaceDesc describes one capture interface. Classic pcap files always
// have exactly one; pcap-ng files declare them in dedicated blocks, indexed
// by order of appearance.
type InterfaceDesc struct {
	LinkType   uint16
	FCSSize    int    // trailing frame-check-sequence bytes to strip
	TimeUnits  uint64 // timestamp units per second
	TimeOffset int64  // microseconds added to every timestamp
}

// Reader reads IPv4 datagrams out of a pcap or pcap-ng stream.
// It is not safe for concurrent use.
type Reader struct {
	in    io.Reader
	file  *os.File // non-nil when opened via Open
	name  string
	log   log.Logger
	state State
	err   error // sticky, set with StateError

	bigEndian bool
	ng        bool
	major     uint16
	minor     uint16
	ifaces    []InterfaceDesc

	fileSize    uint64
	packetCount uint64
	packetsSize uint64
	ipv4Count   uint64
	ipv4Size    uint64
	firstTS     int64
	lastTS      int64
}

// NewReader parses the capture file header from r and returns a ready
// Reader. The name is used in diagnostics only.
func NewReader(r io.Reader, name string, logger log.Logger) (*Reader, error) {
	if logger == nil {
		logger = log.Nop()
	}
	rd := &Reader{
		in:      r,
		name:    name,
		log:     logger,
		firstTS: -1,
		lastTS:  -1,
	}
	var magic [4]byte
	if err := rd.readExact(magic[:]); err != nil {
		return nil, rd.fail(fmt.Errorf("%w: %s: cannot read magic number", ErrFormat, name))
	}
	if err := rd.readHeader(binary.BigEndian.Uint32(magic[:])); err != nil {
		return nil, err
	}
	logger.Debugf("opened %s, %s format version %d.%d, big endian: %v",
		name, rd.FormatName(), rd.major, rd.minor, rd.bigEndian)
	return rd, nil
}

// Open opens a capture file for reading. An empty path or "-" selects
// standard input.
func Open(path string, logger log.Logger) (*Reader, error) {
	if path == "" || path == "-" {
		return NewReader(os.Stdin, "standard input", logger)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pcap: %w", err)
	}
	rd, err := NewReader(f, path, logger)
	if err != nil {
		f.Close()
		return nil, err
	}
	rd.file = f
	return rd, nil
}

// Close releases the underlying stream. Counters remain readable.
func (r *Reader) Close() error {
	r.state = StateClosed
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

// fail switches to the sticky error state.
func (r *Reader) fail(err error) error {
	r.state = StateError
	r.err = err
	return err
}

// readFull reads len(b) bytes. A clean end-of-stream on the first byte is
// reported as io.EOF without entering the error state; everything else is
// sticky.
func (r *Reader) readFull(b []byte) error {
	n, err := io.ReadFull(r.in, b)
	r.fileSize += uint64(n)
	switch {
	case err == nil:
		return nil
	case err == io.EOF:
		return io.EOF
	case err == io.ErrUnexpectedEOF:
		return r.fail(fmt.Errorf("%w: %s: truncated file", ErrFormat, r.name))
	default:
		return r.fail(fmt.Errorf("pcap: error reading %s: %w", r.name, err))
	}
}

// readExact is readFull for positions where end-of-stream is never clean.
func (r *Reader) readExact(b []byte) error {
	err := r.readFull(b)
	if err == io.EOF {
		return r.fail(fmt.Errorf("%w: %s: truncated file", ErrFormat, r.name))
	}
	return err
}

// Endianness-aware accessors for the current file or section.

func (r *Reader) get16(b []byte) uint16 {
	if r.bigEndian {
		return binary.BigEndian.Uint16(b)
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) get32(b []byte) uint32 {
	if r.bigEndian {
		return binary.BigEndian.Uint32(b)
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) get64(b []byte) uint64 {
	if r.bigEndian {
		return binary.BigEndian.Uint64(b)
	}
	return binary.LittleEndian.Uint64(b)
}

// readHeader parses a file or section header. The magic has already been
// read as big endian.
func (r *Reader) readHeader(magic uint32) error {
	switch magic {
	case magicPcapBE, magicPcapLE, magicPcapNSBE, magicPcapNSLE:
		// Classic pcap: 20 more bytes after the magic.
		var hdr [20]byte
		if err := r.readExact(hdr[:]); err != nil {
			return err
		}
		r.ng = false
		r.bigEndian = magic == magicPcapBE || magic == magicPcapNSBE
		r.major = r.get16(hdr[0:2])
		r.minor = r.get16(hdr[2:4])
		units := uint64(microPerSec)
		if magic == magicPcapNSBE || magic == magicPcapNSLE {
			units = nanoPerSec
		}
		fcs := 0
		if hdr[16]&0x10 != 0 {
			fcs = 2 * int((hdr[16]>>5)&0x07)
		}
		// Classic pcap files have exactly one synthetic interface.
		r.ifaces = []InterfaceDesc{{
			LinkType:  r.get16(hdr[18:20]),
			FCSSize:   fcs,
			TimeUnits: units,
		}}
		return nil

	case magicPcapNG:
		// The section header body carries the byte-order magic which
		// retroactively fixes endianness for the whole section.
		r.ng = true
		body, err := r.readBlockBody(magicPcapNG)
		if err != nil {
			return err
		}
		if len(body) < 16 {
			return r.fail(fmt.Errorf("%w: %s: truncated section header", ErrFormat, r.name))
		}
		r.major = r.get16(body[4:6])
		r.minor = r.get16(body[6:8])
		// Interfaces arrive in dedicated blocks within the new section.
		r.ifaces = nil
		return nil

	default:
		return r.fail(fmt.Errorf("%w: %s: unknown magic number 0x%08X", ErrFormat, r.name, magic))
	}
}

// readBlockBody reads one pcap-ng block, the 32-bit block type having
// already been consumed, and returns its body (framing stripped). The
// trailing repeated length is cross-checked against the leading one.
func (r *Reader) readBlockBody(blockType uint32) ([]byte, error) {
	var lenField [4]byte
	if err := r.readExact(lenField[:]); err != nil {
		return nil, err
	}

	// A section header self-describes its endianness in its first 4 body
	// bytes; the total-length field read above is interpreted afterwards.
	var head []byte
	if blockType == ngBlockSectionHeader {
		var order [4]byte
		if err := r.readExact(order[:]); err != nil {
			return nil, err
		}
		switch binary.BigEndian.Uint32(order[:]) {
		case ngOrderBE:
			r.bigEndian = true
		case ngOrderLE:
			r.bigEndian = false
		default:
			return nil, r.fail(fmt.Errorf("%w: %s: unknown byte-order magic 0x%08X",
				ErrFormat, r.name, binary.BigEndian.Uint32(order[:])))
		}
		head = order[:]
	}

	// Total length includes the 12 framing bytes (type + both lengths).
	size := int(r.get32(lenField[:]))
	if size%4 != 0 || size < 12+len(head) {
		return nil, r.fail(fmt.Errorf("%w: %s: invalid block length %d", ErrFormat, r.name, size))
	}
	body := make([]byte, size-12)
	copy(body, head)
	if err := r.readExact(body[len(head):]); err != nil {
		return nil, err
	}

	if err := r.readExact(lenField[:]); err != nil {
		return nil, err
	}
	if last := int(r.get32(lenField[:])); last != size {
		return nil, r.fail(fmt.Errorf("%w: %s: inconsistent block length, leading %d, trailing %d",
			ErrFormat, r.name, size, last))
	}
	return body, nil
}

// analyzeInterface parses a pcap-ng interface description block body and
// appends the interface to the list. Its index is its appearance order.
func (r *Reader) analyzeInterface(body []byte) error {
	if len(body) < 8 {
		return r.fail(fmt.Errorf("%w: %s: invalid interface description, %d bytes", ErrFormat, r.name, len(body)))
	}
	ifd := InterfaceDesc{
		LinkType:  r.get16(body[0:2]),
		TimeUnits: microPerSec,
	}

	// Option list: 16-bit tag, 16-bit length, value padded to 4 bytes.
	for off := 8; off+4 <= len(body); {
		tag := r.get16(body[off : off+2])
		olen := int(r.get16(body[off+2 : off+4]))
		off += 4
		if off+olen > len(body) {
			return r.fail(fmt.Errorf("%w: %s: corrupted option list in interface description", ErrFormat, r.name))
		}
		switch {
		case tag == ngOptFCSLen && olen == 1:
			ifd.FCSSize = int(body[off])
		case tag == ngOptTSOffset && olen == 8:
			ifd.TimeOffset = int64(r.get64(body[off:off+8])) * microPerSec
		case tag == ngOptTSResol && olen == 1:
			if body[off]&0x80 == 0 {
				ifd.TimeUnits = pow10(body[off])
			} else {
				ifd.TimeUnits = 1 << (body[off] & 0x7F)
			}
		}
		// Unrecognized options are skipped via their declared length.
		off += (olen + 3) &^ 3
	}

	r.log.Debugf("pcap-ng interface#%d: link type %d, time units/second %d, time offset %d us, FCS %d bytes",
		len(r.ifaces), ifd.LinkType, ifd.TimeUnits, ifd.TimeOffset, ifd.FCSSize)
	r.ifaces = append(r.ifaces, ifd)
	return nil
}

func pow10(e uint8) uint64 {
	v := uint64(1)
	for ; e > 0; e-- {
		v *= 10
	}
	return v
}

// scaleToMicro converts a timestamp expressed in units-per-second to
// microseconds. When the integer multiplication would overflow 64 bits
// (seen with nanosecond epochs close to the int64 maximum), a float64
// fallback trades bounded precision for correctness.
func scaleToMicro(t int64, units uint64) int64 {
	u := int64(units)
	switch {
	case u == microPerSec:
		return t
	case u > microPerSec && u%microPerSec == 0:
		return t / (u / microPerSec)
	case u < microPerSec && microPerSec%u == 0:
		return t * (microPerSec / u)
	case t > math.MaxInt64/microPerSec:
		return int64((float64(t) * float64(microPerSec)) / float64(u))
	default:
		return t * microPerSec / u
	}
}

// ReadIPv4 reads blocks until the next valid IPv4 datagram and loads it
// into pkt. The returned timestamp is in microseconds since the epoch, or
// -1 when the capture carries none. io.EOF signals a clean end of stream.
func (r *Reader) ReadIPv4(pkt *ipv4.Packet) (int64, error) {
	pkt.Clear()
	switch r.state {
	case StateClosed:
		return -1, ErrClosed
	case StateError:
		return -1, r.err
	}

	for {
		var buffer []byte
		capStart := 0
		capSize := 0
		origSize := 0
		ifIndex := 0
		timestamp := int64(-1)

		if r.ng {
			var tf [4]byte
			if err := r.readFull(tf[:]); err != nil {
				return -1, err
			}
			blockType := r.get32(tf[:])
			if blockType == ngBlockSectionHeader {
				// New section: endianness and interfaces start over.
				if err := r.readHeader(magicPcapNG); err != nil {
					return -1, err
				}
				continue
			}
			body, err := r.readBlockBody(blockType)
			if err != nil {
				return -1, err
			}
			switch {
			case blockType == ngBlockInterfaceDesc:
				if err := r.analyzeInterface(body); err != nil {
					return -1, err
				}
				continue
			case (blockType == ngBlockEnhancedPacket || blockType == ngBlockObsoletePacket) && len(body) >= 20:
				r.packetCount++
				capStart = 20
				capSize = min(int(r.get32(body[12:16])), len(body)-20)
				origSize = int(r.get32(body[16:20]))
				if blockType == ngBlockObsoletePacket {
					ifIndex = int(r.get16(body[0:2]))
				} else {
					ifIndex = int(r.get32(body[0:4]))
				}
				if ifIndex < len(r.ifaces) && r.ifaces[ifIndex].TimeUnits != 0 {
					t := int64(uint64(r.get32(body[4:8]))<<32 | uint64(r.get32(body[8:12])))
					timestamp = scaleToMicro(t, r.ifaces[ifIndex].TimeUnits)
				}
			case blockType == ngBlockSimplePacket && len(body) >= 4:
				r.packetCount++
				capStart = 4
				origSize = int(r.get32(body[0:4]))
				capSize = min(origSize, len(body)-4)
			default:
				// Not a captured packet, skip the block.
				continue
			}
			buffer = body
		} else {
			// Classic pcap: fixed 16-byte record header.
			var hdr [16]byte
			if err := r.readFull(hdr[:]); err != nil {
				return -1, err
			}
			r.packetCount++
			sec := r.get32(hdr[0:4])
			sub := r.get32(hdr[4:8])
			capSize = int(r.get32(hdr[8:12]))
			origSize = int(r.get32(hdr[12:16]))

			// Time units are never zero in classic pcap.
			timestamp = int64(sec)*microPerSec + int64(sub)*microPerSec/int64(r.ifaces[0].TimeUnits)

			buffer = make([]byte, capSize)
			if err := r.readExact(buffer); err != nil {
				return -1, err
			}
		}

		r.packetsSize += uint64(capSize)
		if origSize > capSize {
			r.log.Debugf("truncated captured packet ignored (%d bytes, captured %d)", origSize, capSize)
			continue
		}

		var ifd InterfaceDesc
		if ifIndex < len(r.ifaces) {
			ifd = r.ifaces[ifIndex]
		}
		if timestamp >= 0 {
			timestamp += ifd.TimeOffset
			if r.firstTS < 0 {
				r.firstTS = timestamp
			}
			r.lastTS = timestamp
		}

		// Locate an embedded IPv4 datagram behind the link layer.
		switch {
		case ifd.LinkType == LinkTypeNull && capSize > 4 && r.get32(buffer[capStart:capStart+4]) == 2:
			// BSD loopback: 4-byte host-order family, 2 means IPv4.
			capStart += 4
			capSize -= 4
		case ifd.LinkType == LinkTypeLoop && capSize > 4 && binary.BigEndian.Uint32(buffer[capStart:capStart+4]) == 2:
			// OpenBSD loopback: same header in network byte order.
			capStart += 4
			capSize -= 4
		case (ifd.LinkType == LinkTypeEthernet || ifd.LinkType == LinkTypeNull || ifd.LinkType == LinkTypeLoop) &&
			capSize > etherHeaderSize+ifd.FCSSize &&
			binary.BigEndian.Uint16(buffer[capStart+etherTypeOffset:capStart+etherTypeOffset+2]) == etherTypeIPv4:
			// Ethernet II frame. Some capture tools emit raw Ethernet frames
			// under the loopback link types, so tolerate those as well.
			capStart += etherHeaderSize
			capSize -= etherHeaderSize + ifd.FCSSize
		case ifd.LinkType == LinkTypeRaw && capSize >= ipv4.HeaderMinSize && buffer[capStart]>>4 == 4:
			// Raw IP, no link-layer header.
		default:
			// Not recognized as IPv4.
			capSize = 0
		}

		if capSize > 0 {
			if err := pkt.Reset(buffer[capStart : capStart+capSize]); err == nil {
				r.ipv4Count++
				r.ipv4Size += uint64(capSize)
				return timestamp, nil
			} else {
				r.log.WithError(err).Warnf("invalid IPv4 datagram in %s, %d bytes (original %d), link type %d",
					r.name, capSize, origSize, ifd.LinkType)
			}
		}
	}
}

// Accessors.

// State returns the reader state.
func (r *Reader) State() State { return r.state }

// IsNextGen reports whether the file is pcap-ng.
func (r *Reader) IsNextGen() bool { return r.ng }

// BigEndian reports the byte order of the current file or section.
func (r *Reader) BigEndian() bool { return r.bigEndian }

// FormatName returns "pcap" or "pcap-ng".
func (r *Reader) FormatName() string {
	if r.ng {
		return "pcap-ng"
	}
	return "pcap"
}

// Version returns the declared format version of the current section.
func (r *Reader) Version() (major, minor uint16) { return r.major, r.minor }

// Interfaces returns the capture interfaces of the current section.
func (r *Reader) Interfaces() []InterfaceDesc { return r.ifaces }

// FileSize returns the number of bytes read so far.
func (r *Reader) FileSize() uint64 { return r.fileSize }

// PacketCount returns the number of captured packets seen.
func (r *Reader) PacketCount() uint64 { return r.packetCount }

// PacketsSize returns the cumulated size of captured packets.
func (r *Reader) PacketsSize() uint64 { return r.packetsSize }

// IPv4PacketCount returns the number of valid IPv4 datagrams extracted.
func (r *Reader) IPv4PacketCount() uint64 { return r.ipv4Count }

// IPv4PacketsSize returns the cumulated size of extracted IPv4 datagrams.
func (r *Reader) IPv4PacketsSize() uint64 { return r.ipv4Size }

// FirstTimestamp returns the first packet timestamp in microseconds, -1 if
// none was seen.
func (r *Reader) FirstTimestamp() int64 { return r.firstTS }

// LastTimestamp returns the last packet timestamp in microseconds, -1 if
// none was seen.
func (r *Reader) LastTimestamp() int64 { return r.lastTS }
