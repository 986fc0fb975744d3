// Package durability shadows every instrumented store, flush, and fence
// against a cache-line-sized model of CPU cache and write-buffer state, and
// merges dirty bytes into a region's backing file when a line is evicted or
// fenced.
//
// The host framework serializes guest execution — only one guest thread
// runs at a time — so Engine carries no internal locking; the running
// thread id is the only concurrency-visible state, threaded through
// explicitly rather than read from goroutine-local storage.
package durability

import (
	"fmt"
	"math/rand/v2"

	"github.com/calvinalkan/pmat/internal/cacheline"
	"github.com/calvinalkan/pmat/internal/hostabi"
	"github.com/calvinalkan/pmat/internal/region"
	"github.com/calvinalkan/pmat/internal/stacktrace"
	"github.com/calvinalkan/pmat/pkg/fs"
)

// defaultEvictCacheProbability and defaultEvictWbProbability are the
// per-entry eviction odds used once a table exceeds its capacity, absent an
// override in Config: a coin flip for the cache, a one-in-ten draw for the
// write buffer.
const (
	defaultEvictCacheProbability = 0.5
	defaultEvictWbProbability    = 0.1
)

// CrashChecker is consulted after store-buffer state transitions that the
// crash simulator cares about. It is satisfied by *crashsim.Simulator; tests
// can supply a no-op or counting fake.
type CrashChecker interface {
	MaybeCrash()
}

// Config bundles Engine's tunables. CacheEvictProbability and
// WbEvictProbability fall back to the package defaults when zero; the other
// fields have no implicit default (internal/config owns user-facing
// defaulting for those).
type Config struct {
	LineSize              uint64
	CacheMax              int
	WbMax                 int
	Seed                  uint64
	CacheEvictProbability float64
	WbEvictProbability    float64
}

// Engine is the cache + write-buffer simulator and durability state
// machine. Construct with [NewEngine].
type Engine struct {
	regions   *region.Table
	transient *region.TransientTable
	interner  *stacktrace.Interner
	walker    hostabi.StackWalker
	logger    hostabi.Logger
	crash     CrashChecker

	lineSize uint64
	cacheMax int
	wbMax    int
	rng      *rand.Rand

	evictCacheProbability float64
	evictWbProbability    float64

	cache map[uint64]*lineEntry // keyed by line-aligned address; DIRTY lines
	wb    map[uint64]*wbEntry   // keyed by line-aligned address; FLUSHED lines
}

// NewEngine wires an Engine against the shared region/transient tables and
// stacktrace interner. walker and logger may be nil in tests that don't
// exercise stack capture or warnings; crash may be nil to disable crash
// checks entirely (e.g. while unit-testing cache behavior in isolation).
func NewEngine(
	regions *region.Table,
	transient *region.TransientTable,
	interner *stacktrace.Interner,
	walker hostabi.StackWalker,
	logger hostabi.Logger,
	crash CrashChecker,
	cfg Config,
) *Engine {
	lineSize := cfg.LineSize
	if lineSize == 0 {
		lineSize = cacheline.DefaultSize
	}

	evictCacheProbability := cfg.CacheEvictProbability
	if evictCacheProbability == 0 {
		evictCacheProbability = defaultEvictCacheProbability
	}

	evictWbProbability := cfg.WbEvictProbability
	if evictWbProbability == 0 {
		evictWbProbability = defaultEvictWbProbability
	}

	return &Engine{
		regions:               regions,
		transient:             transient,
		interner:              interner,
		walker:                walker,
		logger:                logger,
		crash:                 crash,
		lineSize:              lineSize,
		cacheMax:              cfg.CacheMax,
		wbMax:                 cfg.WbMax,
		rng:                   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed)),
		evictCacheProbability: evictCacheProbability,
		evictWbProbability:    evictWbProbability,
		cache:                 make(map[uint64]*lineEntry),
		wb:                    make(map[uint64]*wbEntry),
	}
}

// OnStore records a store of value (already widened/split to at most one
// machine word by internal/instrument) at addr. Stores outside a registered
// region, or wholly inside a transient range, have no effect.
func (e *Engine) OnStore(addr uint64, value []byte) {
	r, ok := e.regions.Lookup(addr)
	if !ok {
		return
	}

	size := len(value)

	if e.transient.Contains(addr, uint64(size)) {
		return
	}

	line := cacheline.Trim(addr, e.lineSize)
	off := int(cacheline.Offset(addr, e.lineSize))

	if off+size > int(e.lineSize) {
		e.warnf("store at 0x%x size %d in region %q crosses a cache-line boundary (line size %d); processing only the leading %d bytes",
			addr, size, r.Name, e.lineSize, int(e.lineSize)-off)

		size = int(e.lineSize) - off
		value = value[:size]
	}

	entry, ok := e.cache[line]
	if !ok {
		entry = newLineEntry(line, e.lineSize)
		e.cache[line] = entry
	}

	entry.store(off, value)
	entry.origin = e.captureOrigin()

	if len(e.cache) > e.cacheMax {
		e.evictCache()
	}

	e.maybeCrash()
}

// OnFlush moves the cache entry for addr's line (if any) into the write
// buffer, tagged with tid. A flush of a line not currently in the cache is a
// no-op: there is nothing dirty to hand off.
func (e *Engine) OnFlush(addr uint64, tid uint64) {
	e.flush(addr, tid)
	e.maybeCrash()
}

// OnFlushFence performs the flush and then an immediate drain of the entire
// write buffer (every thread's pending entries), without the crash check
// that would otherwise run between the two — the combined instruction is
// atomic from the guest's point of view, so there is no window to catch a
// leaked line in.
func (e *Engine) OnFlushFence(addr uint64, tid uint64) {
	e.flush(addr, tid)
	e.drainAll()
	e.maybeCrash()
}

func (e *Engine) flush(addr uint64, tid uint64) {
	line := cacheline.Trim(addr, e.lineSize)

	entry, ok := e.cache[line]
	if !ok {
		return
	}

	delete(e.cache, line)

	if existing, ok := e.wb[line]; ok {
		e.writeback(existing.entry)
		delete(e.wb, line)
	}

	e.wb[line] = &wbEntry{entry: entry, tid: tid}

	if len(e.wb) > e.wbMax {
		e.evictWb()
	}
}

// OnFence drains every write-buffer entry flushed by tid to its backing
// file. Entries flushed by other threads are left pending: a fence only
// guarantees ordering for its own thread.
func (e *Engine) OnFence(tid uint64) {
	e.maybeCrash()

	for line, w := range e.wb {
		if w.tid != tid {
			continue
		}

		e.writeback(w.entry)
		delete(e.wb, line)
	}

	e.maybeCrash()
}

// drainAll writes back and discards every write-buffer entry regardless of
// thread, for the flush+fence fused instruction.
func (e *Engine) drainAll() {
	for line, w := range e.wb {
		e.writeback(w.entry)
		delete(e.wb, line)
	}
}

// evictCache draws once per cache entry and writes back (directly to the
// backing file, bypassing the write buffer) every entry whose draw falls
// under the cache eviction probability (a coin flip by default). Which
// lines are chosen is deliberately unspecified: this emulates an
// unimplemented replacement policy, not LRU.
func (e *Engine) evictCache() {
	for line, entry := range e.cache {
		if e.rng.Float64() >= e.evictCacheProbability {
			continue
		}

		e.writeback(entry)
		delete(e.cache, line)
	}
}

// evictWb flushes each write-buffer entry straight to its backing file with
// the write-buffer eviction probability (one in ten by default) when the
// buffer is over capacity.
func (e *Engine) evictWb() {
	for line, w := range e.wb {
		if e.rng.Float64() >= e.evictWbProbability {
			continue
		}

		e.writeback(w.entry)
		delete(e.wb, line)
	}
}

// writeback merges entry's dirty bytes into its region's backing file:
// read the line, overwrite dirty[i] positions with data[i], write the line
// back. A missing region descriptor or a short read/write is an assertion
// failure — both indicate the tool's own bookkeeping is broken, not a guest
// error.
func (e *Engine) writeback(entry *lineEntry) {
	r, ok := e.regions.Lookup(entry.addr)
	if !ok {
		e.fatalf("writeback: no region registered for line at 0x%x", entry.addr)

		return
	}

	off := int64(entry.addr - r.Base)

	buf := make([]byte, e.lineSize)
	if err := fs.Pread(r.File, buf, off); err != nil {
		e.fatalf("writeback: read region %q at offset %d: %v", r.Name, off, err)

		return
	}

	for i, dirty := range entry.dirty {
		if dirty {
			buf[i] = entry.data[i]
		}
	}

	if err := fs.Pwrite(r.File, buf, off); err != nil {
		e.fatalf("writeback: write region %q at offset %d: %v", r.Name, off, err)

		return
	}
}

func (e *Engine) captureOrigin() stacktrace.Handle {
	if e.walker == nil {
		return 0
	}

	return e.interner.Intern(e.walker.Capture())
}

func (e *Engine) maybeCrash() {
	if e.crash != nil {
		e.crash.MaybeCrash()
	}
}

func (e *Engine) warnf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Warnf(format, args...)
	}
}

func (e *Engine) fatalf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Fatalf(format, args...)

		return
	}

	panic(fmt.Sprintf(format, args...))
}
