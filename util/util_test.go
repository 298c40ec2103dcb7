package util

import "testing"

func TestRoundUp(t *testing.T) {
	cases := []struct {
		value, multiple, want int
	}{
		{4, 3, 6},
		{6, 3, 6},
		{1, 128, 128},
		{11008, 128, 11008},
		{11000, 128, 11008},
		{0, 4, 0},
		{5, 1, 5},
	}

	for _, tt := range cases {
		if got := RoundUp(tt.value, tt.multiple); got != tt.want {
			t.Errorf("RoundUp(%d, %d) = %d, want %d", tt.value, tt.multiple, got, tt.want)
		}
	}
}

func TestAligned(t *testing.T) {
	if !Aligned(48, 6) {
		t.Error("48 should be aligned to 6")
	}

	if Aligned(32, 3) {
		t.Error("32 should not be aligned to 3")
	}
}
