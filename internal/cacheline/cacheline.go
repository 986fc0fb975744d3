// Package cacheline provides the address arithmetic shared by the
// registered-region table and the cache/write-buffer simulator: cache-line
// alignment, trimming, and offset computation.
package cacheline

import (
	"os"
	"strconv"
	"strings"
)

// DefaultSize is used when the target CPU's cache-line size cannot be
// detected.
const DefaultSize = 64

// sysfsCoherencyLinePath is where Linux exposes the L1 data cache's
// coherency line size (the unit clflush/clwb operate on).
const sysfsCoherencyLinePath = "/sys/devices/system/cpu/cpu0/cache/index0/coherency_line_size"

// Detect returns the host CPU's cache-line size, detected at startup from
// the target CPU's clflush line size, falling back to [DefaultSize] if it
// cannot be determined.
func Detect() uint64 {
	raw, err := os.ReadFile(sysfsCoherencyLinePath)
	if err != nil {
		return DefaultSize
	}

	n, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil || n == 0 || n&(n-1) != 0 {
		return DefaultSize
	}

	return n
}

// Trim returns the L-byte-aligned cache-line address containing addr, where
// L is lineSize (a power of two).
func Trim(addr, lineSize uint64) uint64 {
	return addr &^ (lineSize - 1)
}

// Offset returns the byte offset of addr within its cache line.
func Offset(addr, lineSize uint64) uint64 {
	return addr & (lineSize - 1)
}

// Aligned reports whether addr is lineSize-aligned.
func Aligned(addr, lineSize uint64) bool {
	return Offset(addr, lineSize) == 0
}
