// Package region implements the registered-region table and the
// transient-range table: the set of persistent memory ranges the guest has
// told pmat about, each backed by a plain file, plus the ranges the guest
// has asserted are not actually persistent.
package region

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/calvinalkan/pmat/internal/cacheline"
	"github.com/calvinalkan/pmat/pkg/fs"
)

// backingFileMode is "rw for user and group".
const backingFileMode = 0o660

// Region is one registered persistent memory range, backed by a plain file.
type Region struct {
	Name string
	Base uint64
	Size uint64

	// File is the open backing file. Offset 0 in File corresponds to Base in
	// the registered range.
	File fs.File
}

// End returns Base+Size, the exclusive upper bound of the range.
func (r *Region) End() uint64 {
	return r.Base + r.Size
}

// Contains reports whether addr falls inside [Base, End).
func (r *Region) Contains(addr uint64) bool {
	return addr >= r.Base && addr < r.End()
}

// Table is the registered-region table. The zero value is not usable; use
// [NewTable].
//
// Table is safe for concurrent use: Lookup is called on every instrumented
// store and must stay O(log N), while Register/Unregister are comparatively
// rare client requests.
type Table struct {
	mu       sync.RWMutex
	byBase   []*Region // sorted ascending by Base; ranges of distinct entries never overlap by invariant
	byName   map[string]*Region
	fsys     fs.FS
	lineSize uint64
}

// NewTable creates an empty registered-region table. fsys is used to create
// and truncate backing files on Register. lineSize is the cache-line size
// (see internal/cacheline) that Base must be aligned to.
func NewTable(fsys fs.FS, lineSize uint64) *Table {
	return &Table{
		byName:   make(map[string]*Region),
		fsys:     fsys,
		lineSize: lineSize,
	}
}

// Register creates (or truncates) a backing file named name of size bytes
// and adds a region {name, base, size} to the table.
//
// Rejects (returns an error, does not register) if name is empty, base is
// not cache-line aligned, or size is zero — these are user errors, not
// tool-fatal conditions; the caller (internal/dispatch) logs a warning and
// leaves the client request unhandled.
//
// Duplicate names are not de-duplicated: registering the same name twice
// installs two independent regions, and UnregisterByName subsequently
// affects whichever one is currently reachable by that name.
func (t *Table) Register(name string, base, size uint64) (*Region, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	if !cacheline.Aligned(base, t.lineSize) {
		return nil, fmt.Errorf("%w: base=0x%x line=%d", ErrMisaligned, base, t.lineSize)
	}

	if size == 0 {
		return nil, ErrZeroSize
	}

	file, err := t.fsys.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, backingFileMode)
	if err != nil {
		return nil, fmt.Errorf("region: create backing file %q: %w", name, err)
	}

	if err := growFile(file, int64(size)); err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("region: truncate backing file %q to %d bytes: %w", name, size, err)
	}

	r := &Region{Name: name, Base: base, Size: size, File: file}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := sort.Search(len(t.byBase), func(i int) bool { return t.byBase[i].Base >= base })
	t.byBase = append(t.byBase, nil)
	copy(t.byBase[idx+1:], t.byBase[idx:])
	t.byBase[idx] = r

	t.byName[name] = r

	return r, nil
}

// growFile extends a freshly created (empty) file to exactly size bytes.
//
// fs.File only promises io.ReadWriteCloser + io.Seeker (not os.File.Truncate),
// so this seeks to the last byte and writes a single zero byte rather than
// truncating — it works with any pkg/fs.FS implementation, not only Real.
func growFile(file fs.File, size int64) error {
	if _, err := file.Seek(size-1, 0); err != nil {
		return fmt.Errorf("seek: %w", err)
	}

	if _, err := file.Write([]byte{0}); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	if _, err := file.Seek(0, 0); err != nil {
		return fmt.Errorf("seek back: %w", err)
	}

	return nil
}

// UnregisterByName removes the region most recently registered under name,
// closing its backing file. A no-op (no error) if name is not registered.
func (t *Table) UnregisterByName(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.byName[name]
	if !ok {
		return
	}

	t.removeLocked(r)
}

// UnregisterByAddress removes whichever region contains addr, if any. A
// no-op if no region contains addr.
func (t *Table) UnregisterByAddress(addr uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.lookupLocked(addr)
	if r == nil {
		return
	}

	t.removeLocked(r)
}

// removeLocked deletes r from both indexes and closes its backing file.
// Callers must hold t.mu.
func (t *Table) removeLocked(r *Region) {
	idx := sort.Search(len(t.byBase), func(i int) bool { return t.byBase[i].Base >= r.Base })
	if idx < len(t.byBase) && t.byBase[idx] == r {
		t.byBase = append(t.byBase[:idx], t.byBase[idx+1:]...)
	}

	if t.byName[r.Name] == r {
		delete(t.byName, r.Name)
	}

	_ = r.File.Close()
}

// Lookup returns the unique region whose range contains addr, or (nil,
// false) if none does. Runs in O(log N) via binary search over the
// Base-sorted index, since it is called on every instrumented store.
func (t *Table) Lookup(addr uint64) (*Region, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r := t.lookupLocked(addr)

	return r, r != nil
}

// lookupLocked is Lookup without acquiring the lock. Callers must hold
// t.mu (for read or write).
func (t *Table) lookupLocked(addr uint64) *Region {
	// Find the last region whose Base is <= addr.
	idx := sort.Search(len(t.byBase), func(i int) bool { return t.byBase[i].Base > addr }) - 1
	if idx < 0 {
		return nil
	}

	r := t.byBase[idx]
	if r.Contains(addr) {
		return r
	}

	return nil
}

// Regions returns a snapshot of all currently registered regions, ordered by
// Base. Used by reporting and by the crash simulator, which needs every
// backing file name to pass to the verifier.
func (t *Table) Regions() []*Region {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Region, len(t.byBase))
	copy(out, t.byBase)

	return out
}

// Len returns the number of currently registered regions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.byBase)
}
