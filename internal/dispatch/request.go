// Package dispatch maps the guest's client-request protocol onto the
// engine operations in internal/durability, internal/region, and
// internal/crashsim, plus the GDB-monitor command channel used for
// interactive inspection.
package dispatch

// Code is a stable client-request identifier. Codes are assigned in a fixed
// order mirroring the original VG_USERREQ__PMC_* enum: never reorder or
// delete an entry, only append new ones. A retired code stays reserved and
// is handled as a no-op with a deprecation warning rather than being
// removed, so old guest binaries built against an older code table keep
// working.
type Code uint32

const (
	// codeUnknown is never assigned to a real request; it is what a
	// zero-value or unrecognized Request.Code decodes to.
	codeUnknown Code = iota

	// CodeFlush is DO_FLUSH(addr, len): on_flush, then maybe_crash.
	CodeFlush

	// CodeFence is DO_FENCE: on_fence with a crash check before and after.
	CodeFence

	// CodeReserved1 corresponds to VG_USERREQ__PMC_RESERVED1. Never used by
	// the original tool; kept reserved rather than reassigned.
	CodeReserved1

	// CodeWriteStats corresponds to VG_USERREQ__PMC_WRITE_STATS. The
	// original tool never wired a handler for it either; kept reserved.
	CodeWriteStats

	// CodeReserved2 corresponds to VG_USERREQ__PMC_RESERVED2.
	CodeReserved2

	// CodeReserved3 corresponds to VG_USERREQ__PMC_RESERVED3.
	CodeReserved3

	// CodeReserved4 corresponds to VG_USERREQ__PMC_RESERVED4.
	CodeReserved4

	// CodeReserved5 corresponds to VG_USERREQ__PMC_RESERVED5.
	CodeReserved5

	// CodeReserved7 corresponds to VG_USERREQ__PMC_RESERVED7. Out of
	// numeric order in the original enum (7 before 8 before 6); the slot
	// order, not the name, is what must stay fixed.
	CodeReserved7

	// CodeReserved8 corresponds to VG_USERREQ__PMC_RESERVED8.
	CodeReserved8

	// CodeReserved6 corresponds to VG_USERREQ__PMC_RESERVED6.
	CodeReserved6

	// CodeRegister is PMAT_REGISTER(name, addr, size).
	CodeRegister

	// CodeUnregisterByName is PMAT_UNREGISTER_BY_NAME(name).
	CodeUnregisterByName

	// CodeUnregisterByAddr is PMAT_UNREGISTER_BY_ADDR(addr).
	CodeUnregisterByAddr

	// CodeForceCrash is PMAT_FORCE_SIMULATE_CRASH: unconditional
	// simulate_crash.
	CodeForceCrash

	// CodeCrashDisable is PMAT_CRASH_DISABLE.
	CodeCrashDisable

	// CodeCrashEnable is PMAT_CRASH_ENABLE.
	CodeCrashEnable

	// CodeTransient is PMAT_TRANSIENT(addr, size).
	CodeTransient
)

// reservedCodes lists every slot preserved for wire-ABI stability but never
// dispatched to an operation, so Dispatcher.Handle can warn with "reserved"
// rather than "unrecognized" wording.
var reservedCodes = map[Code]bool{
	CodeReserved1:  true,
	CodeWriteStats: true,
	CodeReserved2:  true,
	CodeReserved3:  true,
	CodeReserved4:  true,
	CodeReserved5:  true,
	CodeReserved7:  true,
	CodeReserved8:  true,
	CodeReserved6:  true,
}

// Request is one decoded client request. Only the fields relevant to Code
// are meaningful; see the Code constants for which.
type Request struct {
	Code Code

	Addr uint64
	Size uint64
	Name string

	// Tid is the calling guest thread, required for CodeFlush/CodeFence to
	// tag/scope write-buffer entries.
	Tid uint64
}
