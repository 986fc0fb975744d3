package durability

import "github.com/calvinalkan/pmat/internal/stacktrace"

// lineEntry is one cache-line-sized shadow of guest memory: either a DIRTY
// cache entry or, once flushed, the payload of a FLUSHED write-buffer entry.
// Its presence in the cache map vs. the write-buffer map IS the durability
// state — there is no separate state enum to keep in sync.
type lineEntry struct {
	addr   uint64 // line-aligned
	data   []byte // lineSize bytes
	dirty  []bool // lineSize flags; dirty[i] set iff data[i] holds an un-persisted store
	origin stacktrace.Handle
}

func newLineEntry(addr, lineSize uint64) *lineEntry {
	return &lineEntry{
		addr:  addr,
		data:  make([]byte, lineSize),
		dirty: make([]bool, lineSize),
	}
}

// store copies value into data[off:off+len(value)] and marks those bytes
// dirty. Callers are responsible for ensuring off+len(value) <= len(data).
func (e *lineEntry) store(off int, value []byte) {
	copy(e.data[off:], value)

	for i := off; i < off+len(value); i++ {
		e.dirty[i] = true
	}
}

// wbEntry is a write-buffer entry: a flushed lineEntry tagged with the
// thread that flushed it, so a fence can drain only its own thread's
// pending entries.
type wbEntry struct {
	entry *lineEntry
	tid   uint64
}
