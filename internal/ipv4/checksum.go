package ipv4

import "encoding/binary"

// Static header utilities. They operate on raw buffers, independent of any
// Packet instance, so encoders can use them as well as decoders.

// HeaderSize returns the size in bytes of the IPv4 header starting at b,
// or 0 if b does not start with a valid IPv4 header.
func HeaderSize(b []byte) int {
	if len(b) < HeaderMinSize || b[0]>>4 != 4 {
		return 0
	}
	size := 4 * int(b[0]&0x0F)
	if size < HeaderMinSize || size > len(b) {
		return 0
	}
	return size
}

// Checksum computes the Internet checksum of the IPv4 header starting at b.
// The checksum field itself is excluded from the sum. Returns 0 if b does
// not start with a valid IPv4 header.
func Checksum(b []byte) uint16 {
	size := HeaderSize(b)
	if size == 0 {
		return 0
	}
	var sum uint32
	for i := 0; i < size; i += 2 {
		if i == 10 {
			continue // checksum field
		}
		sum += uint32(binary.BigEndian.Uint16(b[i : i+2]))
	}
	// Fold carries until none remain.
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// VerifyChecksum reports whether the stored IPv4 header checksum matches a
// recomputed one.
func VerifyChecksum(b []byte) bool {
	return HeaderSize(b) != 0 && binary.BigEndian.Uint16(b[10:12]) == Checksum(b)
}

// UpdateChecksum recomputes and stores the IPv4 header checksum in place.
// Returns false if b does not start with a valid IPv4 header.
func UpdateChecksum(b []byte) bool {
	if HeaderSize(b) == 0 {
		return false
	}
	binary.BigEndian.PutUint16(b[10:12], Checksum(b))
	return true
}
