package cacheline_test

import (
	"testing"

	"github.com/calvinalkan/pmat/internal/cacheline"
)

func TestTrimAndOffset(t *testing.T) {
	const line = 64

	cases := []struct {
		addr       uint64
		wantTrim   uint64
		wantOffset uint64
	}{
		{0, 0, 0},
		{63, 0, 63},
		{64, 64, 0},
		{65, 64, 1},
		{128 + 10, 128, 10},
	}

	for _, tc := range cases {
		if got := cacheline.Trim(tc.addr, line); got != tc.wantTrim {
			t.Errorf("Trim(%d) = %d, want %d", tc.addr, got, tc.wantTrim)
		}

		if got := cacheline.Offset(tc.addr, line); got != tc.wantOffset {
			t.Errorf("Offset(%d) = %d, want %d", tc.addr, got, tc.wantOffset)
		}
	}
}

func TestAligned(t *testing.T) {
	const line = 64

	if !cacheline.Aligned(128, line) {
		t.Error("128 should be aligned to 64")
	}

	if cacheline.Aligned(129, line) {
		t.Error("129 should not be aligned to 64")
	}
}

func TestDetectFallsBackToDefault(t *testing.T) {
	// On a machine without the expected sysfs layout (or in a sandboxed
	// test environment where it's unreadable), Detect must still return a
	// usable power-of-two line size.
	size := cacheline.Detect()
	if size == 0 || size&(size-1) != 0 {
		t.Fatalf("Detect() = %d, want a nonzero power of two", size)
	}
}
