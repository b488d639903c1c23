package ipv4

import "testing"

func TestSequenceOrdered(t *testing.T) {
	cases := []struct {
		name string
		s1   uint32
		s2   uint32
		want bool
	}{
		{"simple ascending", 100, 200, true},
		{"simple descending", 200, 100, false},
		{"equal", 500, 500, false},
		{"wrap: end before start", 0xFFFFFF00, 0x00000010, true},
		{"wrap window: descending", 0xFFFFFF10, 0xFFFFFF00, false},
		{"near threshold ascending", 0xFFFFFFF0, 0xFFFFFFFE, true},
		{"zero against max", 0, 0xFFFFFFFF, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SequenceOrdered(tc.s1, tc.s2); got != tc.want {
				t.Errorf("SequenceOrdered(0x%08X, 0x%08X) = %v, want %v", tc.s1, tc.s2, got, tc.want)
			}
		})
	}
}

func TestSequenceDiff(t *testing.T) {
	cases := []struct {
		s1   uint32
		s2   uint32
		want uint32
	}{
		{100, 250, 150},
		{0xFFFFFFF0, 0x00000010, 0x20},
		{42, 42, 0},
	}
	for _, tc := range cases {
		if got := SequenceDiff(tc.s1, tc.s2); got != tc.want {
			t.Errorf("SequenceDiff(0x%08X, 0x%08X) = %d, want %d", tc.s1, tc.s2, got, tc.want)
		}
	}
}
