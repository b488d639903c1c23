package ipv4

// TCP sequence numbers live in a 32-bit modular space. Plain integer
// comparison breaks when a session wraps around 0xFFFFFFFF, so ordering is
// decided relative to a threshold placed one maximum TCP payload below the
// wrap point.

const (
	// ipMaxPacketSize is the largest possible IP packet (16-bit total length).
	ipMaxPacketSize = 0x10000

	// tcpMaxPayloadSize is the largest possible TCP payload.
	tcpMaxPayloadSize = ipMaxPacketSize - HeaderMinSize - TCPMinHeaderSize

	seqWrapThreshold = 0xFFFFFFFF - uint32(tcpMaxPayloadSize)
)

// SequenceOrdered reports whether TCP sequence number seq1 precedes seq2,
// with wraparound awareness.
func SequenceOrdered(seq1, seq2 uint32) bool {
	if seq1 < seqWrapThreshold {
		return seq1 < seq2
	}
	// seq1 is in the wraparound margin: seq2 is either numerically after
	// seq1, or already wrapped to the bottom of the range.
	return seq1 < seq2 || seq1-seq2 > seqWrapThreshold
}

// SequenceDiff returns the forward distance seq2 - seq1 in sequence space,
// i.e. (seq2 - seq1) mod 2^32.
func SequenceDiff(seq1, seq2 uint32) uint32 {
	return seq2 - seq1
}
