// Package stacktrace interns captured stack traces into small comparable
// handles.
//
// Stores happen far more often than reports are printed, so the hot path
// (recording a cache/write-buffer entry's origin) must not carry the cost of
// repeated stack-trace comparison or storage: a trace captured at the same
// call site thousands of times should collapse to a single handle. The
// interner is a load-or-create table keyed by the canonicalized trace,
// guarded by a mutex; handles are never released.
package stacktrace

import (
	"strings"
	"sync"

	"github.com/calvinalkan/pmat/internal/hostabi"
)

// Handle identifies one interned, canonicalized stack trace. The zero Handle
// never corresponds to a real trace.
type Handle uint32

// memcpyMemsetMarkers are the substrings that make a frame's symbol count as
// a copy helper for the equality skip rule.
var memcpyMemsetMarkers = []string{"memcpy", "memset"}

// isCopyHelper reports whether symbol names a memcpy/memset-like function.
func isCopyHelper(symbol string) bool {
	for _, marker := range memcpyMemsetMarkers {
		if strings.Contains(symbol, marker) {
			return true
		}
	}

	return false
}

// canonicalize drops the innermost frame when it is a copy helper, per the
// stack-trace equality rule: two traces that agree everywhere except an
// innermost memcpy/memset frame are the same bug site.
func canonicalize(frames []hostabi.Frame) []hostabi.Frame {
	if len(frames) > 0 && isCopyHelper(frames[0].Symbol) {
		return frames[1:]
	}

	return frames
}

// key renders a canonicalized frame slice as a comparable map key: frames of
// different depth are never equal, so the length is folded into the key
// implicitly by including every PC.
func key(frames []hostabi.Frame) string {
	var b strings.Builder

	for _, f := range frames {
		b.WriteByte(0) // NUL separator; PCs never contain it once formatted as fixed-width hex
		writeHex16(&b, f.PC)
	}

	return b.String()
}

const hexDigits = "0123456789abcdef"

func writeHex16(b *strings.Builder, v uint64) {
	var buf [16]byte

	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}

	b.Write(buf[:])
}

// Interner is the process-wide stack-trace handle table. The zero value is
// ready to use.
type Interner struct {
	mu     sync.Mutex
	byKey  map[string]Handle
	frames [][]hostabi.Frame // indexed by Handle-1
}

// Intern canonicalizes trace and returns its handle, creating a new handle
// the first time a given canonical trace is seen.
func (in *Interner) Intern(trace hostabi.StackTrace) Handle {
	var frames []hostabi.Frame
	if trace != nil {
		frames = canonicalize(trace.Frames())
	}

	k := key(frames)

	in.mu.Lock()
	defer in.mu.Unlock()

	if in.byKey == nil {
		in.byKey = make(map[string]Handle)
	}

	if h, ok := in.byKey[k]; ok {
		return h
	}

	in.frames = append(in.frames, frames)
	h := Handle(len(in.frames))
	in.byKey[k] = h

	return h
}

// Frames returns the canonicalized frames recorded for h, or nil if h is not
// a handle this Interner produced.
func (in *Interner) Frames(h Handle) []hostabi.Frame {
	if h == 0 {
		return nil
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	idx := int(h) - 1
	if idx < 0 || idx >= len(in.frames) {
		return nil
	}

	return in.frames[idx]
}

// Len returns the number of distinct traces interned so far.
func (in *Interner) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()

	return len(in.frames)
}
