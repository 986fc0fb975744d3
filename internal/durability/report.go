package durability

import "github.com/calvinalkan/pmat/internal/stacktrace"

// LineState distinguishes the two ways a line can still be outstanding at
// process exit.
type LineState int

const (
	// LineDirty means the line is present in the cache: stored to but never
	// flushed.
	LineDirty LineState = iota

	// LineFlushed means the line is present in the write buffer: flushed but
	// never fenced (or evicted) on its owning thread.
	LineFlushed
)

// LineReport describes one outstanding line for end-of-run reporting.
type LineReport struct {
	State  LineState
	Region string
	Addr   uint64
	Origin stacktrace.Handle
}

// Outstanding returns every line still present in the cache or write buffer,
// i.e. every line that did not make it to PERSISTED before exit. Order is
// unspecified; internal/report groups and sorts these for display.
func (e *Engine) Outstanding() []LineReport {
	out := make([]LineReport, 0, len(e.cache)+len(e.wb))

	for addr, entry := range e.cache {
		out = append(out, LineReport{
			State:  LineDirty,
			Region: e.regionNameOf(addr),
			Addr:   addr,
			Origin: entry.origin,
		})
	}

	for addr, w := range e.wb {
		out = append(out, LineReport{
			State:  LineFlushed,
			Region: e.regionNameOf(addr),
			Addr:   addr,
			Origin: w.entry.origin,
		})
	}

	return out
}

func (e *Engine) regionNameOf(addr uint64) string {
	if r, ok := e.regions.Lookup(addr); ok {
		return r.Name
	}

	return ""
}

// DirtyCount and FlushedCount are the two numbers internal/report prints
// first, before the grouped-by-origin detail.
func (e *Engine) DirtyCount() int { return len(e.cache) }

func (e *Engine) FlushedCount() int { return len(e.wb) }

// Interner exposes the stacktrace interner so internal/report can resolve
// Origin handles back to frames for the fenced stacktrace dump.
func (e *Engine) Interner() *stacktrace.Interner { return e.interner }
