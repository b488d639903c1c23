package ipv4

import "testing"

// Known-good header with checksum 0xB861 (the classic worked example).
func knownHeader() []byte {
	return []byte{
		0x45, 0x00, 0x00, 0x73,
		0x00, 0x00, 0x40, 0x00,
		0x40, 0x11, 0xB8, 0x61,
		0xC0, 0xA8, 0x00, 0x01,
		0xC0, 0xA8, 0x00, 0xC7,
	}
}

func TestChecksumKnownValue(t *testing.T) {
	hdr := knownHeader()
	if got := Checksum(hdr); got != 0xB861 {
		t.Errorf("Expected checksum 0xB861, got 0x%04X", got)
	}
	if !VerifyChecksum(hdr) {
		t.Error("Expected valid checksum")
	}
}

func TestVerifyChecksumDetectsCorruption(t *testing.T) {
	for bit := 0; bit < 8; bit++ {
		hdr := knownHeader()
		hdr[8] ^= 1 << bit
		if VerifyChecksum(hdr) {
			t.Errorf("Corrupted bit %d not detected", bit)
		}
	}
}

func TestUpdateChecksum(t *testing.T) {
	hdr := knownHeader()
	hdr[10], hdr[11] = 0, 0
	if VerifyChecksum(hdr) {
		t.Fatal("Zeroed checksum must not verify")
	}
	if !UpdateChecksum(hdr) {
		t.Fatal("UpdateChecksum failed")
	}
	if hdr[10] != 0xB8 || hdr[11] != 0x61 {
		t.Errorf("Expected stored checksum B8 61, got %02X %02X", hdr[10], hdr[11])
	}
	if !VerifyChecksum(hdr) {
		t.Error("Expected valid checksum after update")
	}
}

func TestHeaderSizeValidation(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want int
	}{
		{"nil", nil, 0},
		{"short", []byte{0x45, 0x00}, 0},
		{"IPv6", append([]byte{0x65}, make([]byte, 39)...), 0},
		{"IHL below 5", append([]byte{0x44}, make([]byte, 19)...), 0},
		{"minimal", knownHeader(), 20},
		{"with options", append([]byte{0x46}, make([]byte, 23)...), 24},
		{"options truncated", append([]byte{0x4F}, make([]byte, 19)...), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HeaderSize(tc.data); got != tc.want {
				t.Errorf("HeaderSize = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestChecksumOnInvalidHeader(t *testing.T) {
	if Checksum([]byte{0x45}) != 0 {
		t.Error("Expected zero checksum for invalid header")
	}
	if VerifyChecksum(nil) {
		t.Error("Expected invalid")
	}
	if UpdateChecksum([]byte{0x45, 0x00}) {
		t.Error("Expected update failure")
	}
}
