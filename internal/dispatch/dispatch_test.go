package dispatch_test

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/pmat/internal/crashsim"
	"github.com/calvinalkan/pmat/internal/dispatch"
	"github.com/calvinalkan/pmat/internal/durability"
	"github.com/calvinalkan/pmat/internal/region"
	"github.com/calvinalkan/pmat/internal/stacktrace"
	"github.com/calvinalkan/pmat/pkg/fs"
)

type fakeReport struct{}

func (fakeReport) WriteReport(w io.Writer) error { return nil }

func newDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir), "chdir")

	real := fs.NewReal()
	regions := region.NewTable(real, 64)
	transient := &region.TransientTable{}
	interner := &stacktrace.Interner{}
	engine := durability.NewEngine(regions, transient, interner, nil, nil, nil, durability.Config{
		LineSize: 64, CacheMax: 1024, WbMax: 1024, Seed: 1,
	})
	crash := crashsim.NewSimulator(real, regions, fakeReport{}, nil, crashsim.Config{Seed: 1})

	return dispatch.New(regions, transient, engine, crash, nil)
}

func TestDispatchRegisterAndUnregisterByName(t *testing.T) {
	d := newDispatcher(t)

	if !d.Handle(dispatch.Request{Code: dispatch.CodeRegister, Name: "r1", Addr: 0x1000, Size: 64}) {
		t.Fatal("register should be handled")
	}

	if !d.Handle(dispatch.Request{Code: dispatch.CodeUnregisterByName, Name: "r1"}) {
		t.Fatal("unregister should be handled")
	}

	if got := d.Monitor("print_pmem_regions", nil); got != "no registered regions" {
		t.Fatalf("print_pmem_regions = %q, want empty after unregister", got)
	}
}

func TestDispatchUnknownCodeNotHandled(t *testing.T) {
	d := newDispatcher(t)

	if d.Handle(dispatch.Request{Code: dispatch.Code(9999)}) {
		t.Fatal("unknown code should not be handled")
	}
}

func TestDispatchTransientOnlyInsideRegisteredRegion(t *testing.T) {
	require.NoError(t, os.Chdir(t.TempDir()), "chdir")

	// Built by hand rather than via newDispatcher so the transient table
	// stays reachable for the assertions below.
	real := fs.NewReal()
	regions := region.NewTable(real, 64)
	transient := &region.TransientTable{}
	engine := durability.NewEngine(regions, transient, &stacktrace.Interner{}, nil, nil, nil, durability.Config{
		LineSize: 64, CacheMax: 1024, WbMax: 1024, Seed: 1,
	})
	crash := crashsim.NewSimulator(real, regions, fakeReport{}, nil, crashsim.Config{Seed: 1})
	d := dispatch.New(regions, transient, engine, crash, nil)

	// No region registered yet: must be rejected.
	d.Handle(dispatch.Request{Code: dispatch.CodeTransient, Addr: 0x1000, Size: 8})

	if transient.Len() != 0 {
		t.Fatalf("transient.Len() = %d, want 0 (no region registered)", transient.Len())
	}

	d.Handle(dispatch.Request{Code: dispatch.CodeRegister, Name: "r1", Addr: 0x1000, Size: 64})
	d.Handle(dispatch.Request{Code: dispatch.CodeTransient, Addr: 0x1000, Size: 8})

	if transient.Len() != 1 {
		t.Fatalf("transient.Len() = %d, want 1 (range inside r1)", transient.Len())
	}

	if !d.Handle(dispatch.Request{Code: dispatch.CodeUnregisterByAddr, Addr: 0x1000}) {
		t.Fatal("unregister by addr should be handled")
	}
}

func TestMonitorHelpAndStats(t *testing.T) {
	d := newDispatcher(t)

	if got := d.Monitor("help", nil); !strings.Contains(got, "print_stats") {
		t.Fatalf("help output = %q, want it to mention print_stats", got)
	}

	stats := d.Monitor("print_stats", nil)
	if !strings.Contains(stats, "verifications:") {
		t.Fatalf("print_stats output = %q, want verification summary", stats)
	}
}

func TestMonitorUnknownCommand(t *testing.T) {
	d := newDispatcher(t)

	got := d.Monitor("frobnicate", nil)
	if !strings.Contains(got, "unknown monitor command") {
		t.Fatalf("Monitor(unknown) = %q", got)
	}
}

func TestMonitorRegionsListsSorted(t *testing.T) {
	d := newDispatcher(t)

	d.Handle(dispatch.Request{Code: dispatch.CodeRegister, Name: "zzz", Addr: 0x1000, Size: 64})
	d.Handle(dispatch.Request{Code: dispatch.CodeRegister, Name: "aaa", Addr: 0x2000, Size: 64})

	got := d.Monitor("print_pmem_regions", nil)

	aIdx := strings.Index(got, "aaa")
	zIdx := strings.Index(got, "zzz")

	if aIdx < 0 || zIdx < 0 || aIdx > zIdx {
		t.Fatalf("expected sorted region listing, got %q", got)
	}
}

func TestParseVerifierFlag(t *testing.T) {
	args := []string{"--other=1", "--pmat-verifier=/usr/bin/verify", "--another"}

	path, rest, ok := dispatch.ParseVerifierFlag(args)
	require.True(t, ok, "expected flag to be found")
	require.Equal(t, "/usr/bin/verify", path)
	require.Equal(t, []string{"--other=1", "--another"}, rest)
}

func TestParseVerifierFlagAbsent(t *testing.T) {
	args := []string{"--other=1"}

	_, rest, ok := dispatch.ParseVerifierFlag(args)
	require.False(t, ok, "expected flag not found")
	require.Equal(t, []string{"--other=1"}, rest, "rest should be unchanged")
}
