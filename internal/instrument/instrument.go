// Package instrument decides which callbacks to insert for a translated
// superblock of guest IR. It is pure decision logic: the actual splicing of
// callback-insertion statements into host IR is the host framework's job
// (out of scope, see internal/hostabi); this package only computes, for a
// given [hostabi.Block], the ordered list of [Callback] descriptors the host
// should weave in after each original statement.
//
// This mirrors the re-architecture note that the host's IR is a tagged
// variant best modeled as a sum type with a single dispatch over the tag —
// "copy original, then maybe append a callback-insertion statement" — with
// no inheritance or visitor pattern.
package instrument

import "github.com/calvinalkan/pmat/internal/hostabi"

// CallbackKind identifies which engine entry point a Callback should drive.
type CallbackKind int

const (
	// CallbackSuperblockEntry counts a superblock entry, for statistics.
	// Exactly one is emitted per Block, before any statement callbacks.
	CallbackSuperblockEntry CallbackKind = iota

	// CallbackStore drives Engine.OnStore.
	CallbackStore

	// CallbackFlush drives Engine.OnFlush.
	CallbackFlush

	// CallbackFlushFence drives Engine.OnFlushFence.
	CallbackFlushFence

	// CallbackFence drives Engine.OnFence.
	CallbackFence
)

// Callback is one instrumentation callback to insert after a statement (or,
// for CallbackSuperblockEntry, at block entry).
type Callback struct {
	Kind CallbackKind

	// Addr is the statement's (possibly symbolic) address expression.
	// Unused for CallbackSuperblockEntry/CallbackFence.
	Addr hostabi.Expr

	// Offset is the byte offset from Addr this callback covers, nonzero
	// only for the sub-word callbacks a wide SIMD store is split into.
	Offset int

	// Size is the number of bytes this callback covers (at most 8: guest
	// values are always widened to, or split into, machine words).
	Size int

	// Value is the statement's value expression. For a split SIMD store,
	// every resulting Callback carries the same Value; the host is
	// expected to extract the Offset..Offset+Size slice of it.
	Value hostabi.Expr

	// Guard is non-nil when this store only counts conditionally (the
	// success arm of a guarded store or a compare-and-swap).
	Guard hostabi.Expr
}

// machineWordSize is the only store width instrumentation ever calls
// on_store with; wider SIMD stores are split down to this.
const machineWordSize = 8

// Plan computes the callbacks a host should insert for block: one
// superblock-entry counter, then zero or more callbacks per statement.
// Statements instrumentation does not recognize contribute no callbacks —
// they are copied through verbatim by the host, which Plan has no opinion
// about.
func Plan(block hostabi.Block) []Callback {
	out := []Callback{{Kind: CallbackSuperblockEntry}}

	for _, stmt := range block.Stmts {
		out = append(out, planStmt(stmt)...)
	}

	return out
}

func planStmt(s hostabi.Stmt) []Callback {
	switch s.Kind {
	case hostabi.StmtStore:
		return storeCallbacks(s, nil)

	case hostabi.StmtStoreGuarded, hostabi.StmtCAS:
		return storeCallbacks(s, s.Guard)

	case hostabi.StmtFlush:
		// A bare flush is never also a fence, regardless of FenceKind: see
		// the flush-fence case below for the only path that inserts both.
		return []Callback{{Kind: CallbackFlush, Addr: s.Addr}}

	case hostabi.StmtFlushFence:
		return []Callback{{Kind: CallbackFlushFence, Addr: s.Addr}}

	case hostabi.StmtMBE:
		if isFenceKind(s.FenceKind) {
			return []Callback{{Kind: CallbackFence}}
		}

		return nil

	default:
		return nil
	}
}

func isFenceKind(kind string) bool {
	return kind == "store-fence" || kind == "full-fence"
}

// storeCallbacks widens/splits one store-shaped statement into the
// on_store callbacks it implies: a single machine-word callback for a
// scalar store, or 2/4 machine-word callbacks at increasing byte offsets
// for a 128-/256-bit SIMD store, in address order (preserving endianness —
// the host extracts bytes [Offset, Offset+Size) of Value for each one).
func storeCallbacks(s hostabi.Stmt, guard hostabi.Expr) []Callback {
	width := s.Width
	if width == 0 {
		width = machineWordSize
	}

	n := width / machineWordSize
	if n < 1 {
		n = 1
	}

	out := make([]Callback, n)
	for i := 0; i < n; i++ {
		out[i] = Callback{
			Kind:   CallbackStore,
			Addr:   s.Addr,
			Offset: i * machineWordSize,
			Size:   machineWordSize,
			Value:  s.Value,
			Guard:  guard,
		}
	}

	// A narrower-than-word store (e.g. a 1/2/4-byte plain store) is a
	// single callback covering exactly its own size, not a full word.
	if n == 1 && s.Size < machineWordSize {
		out[0].Size = s.Size
	}

	return out
}
