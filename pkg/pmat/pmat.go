// Package pmat wires every component into a single instantiable tool and
// exposes the lifecycle and per-callback entry points the host framework
// calls: init/fini, on_store/on_flush/on_fence, client-request handling,
// and superblock instrumentation planning.
//
// Tool is a plain struct, not a package-level global: the host framework's
// "one tool, one address space" assumption is real, but nothing here
// prevents multiple independent instances coexisting in a test binary.
package pmat

import (
	"strings"

	"github.com/calvinalkan/pmat/internal/cacheline"
	"github.com/calvinalkan/pmat/internal/config"
	"github.com/calvinalkan/pmat/internal/crashsim"
	"github.com/calvinalkan/pmat/internal/dispatch"
	"github.com/calvinalkan/pmat/internal/durability"
	"github.com/calvinalkan/pmat/internal/hostabi"
	"github.com/calvinalkan/pmat/internal/instrument"
	"github.com/calvinalkan/pmat/internal/region"
	"github.com/calvinalkan/pmat/internal/report"
	"github.com/calvinalkan/pmat/internal/stacktrace"
	"github.com/calvinalkan/pmat/pkg/fs"
)

// Tool is the assembled instance of every component: the registered-region
// and transient-range tables, the stacktrace interner, the durability
// engine, the crash simulator, the client-request dispatcher, and the
// end-of-run reporter.
type Tool struct {
	regions   *region.Table
	transient *region.TransientTable
	interner  *stacktrace.Interner
	engine    *durability.Engine
	crash     *crashsim.Simulator
	dispatch  *dispatch.Dispatcher
	reporter  *report.Reporter
	logger    hostabi.Logger
}

// Deps bundles the host-supplied collaborators Init needs: the filesystem
// backing region files and crash artifacts, an optional stack walker (nil
// disables origin capture), and an optional logger (nil silently drops
// warnings; a fatal condition then panics instead of being logged).
type Deps struct {
	FS     fs.FS
	Walker hostabi.StackWalker
	Logger hostabi.Logger
}

// Init assembles a Tool from cfg and deps. This is the analogue of the
// host framework's tool-init callback: called exactly once, before any
// guest code runs.
func Init(cfg config.Config, deps Deps) *Tool {
	lineSize := cacheline.Detect()

	regions := region.NewTable(deps.FS, lineSize)
	transient := &region.TransientTable{}
	interner := &stacktrace.Interner{}

	crash := crashsim.NewSimulator(deps.FS, regions, nil, deps.Logger, crashsim.Config{
		VerifierPath: cfg.VerifierPath,
		Seed:         cfg.Seed,
		Disabled:     cfg.CrashDisabled,
		Probability:  cfg.CrashProbability,
	})

	engine := durability.NewEngine(regions, transient, interner, deps.Walker, deps.Logger, crash, durability.Config{
		LineSize:              lineSize,
		CacheMax:              cfg.CacheMax,
		WbMax:                 cfg.WbMax,
		Seed:                  cfg.Seed,
		CacheEvictProbability: cfg.CacheEvictProbability,
		WbEvictProbability:    cfg.WbEvictProbability,
	})

	reporter := report.New(engine, crash)
	crash.SetReport(reporter)

	d := dispatch.New(regions, transient, engine, crash, deps.Logger)

	return &Tool{
		regions:   regions,
		transient: transient,
		interner:  interner,
		engine:    engine,
		crash:     crash,
		dispatch:  d,
		reporter:  reporter,
		logger:    deps.Logger,
	}
}

// Fini runs the end-of-run report, returning it as a string for the host
// to print through its own output channel. This is the analogue of the
// host framework's tool-fini callback.
func (t *Tool) Fini() (string, error) {
	var buf strings.Builder

	if err := t.reporter.WriteReport(&buf); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// OnStore drives the durability engine's store shadowing.
func (t *Tool) OnStore(addr uint64, value []byte) { t.engine.OnStore(addr, value) }

// OnFlush drives the durability engine's flush handling.
func (t *Tool) OnFlush(addr, tid uint64) { t.engine.OnFlush(addr, tid) }

// OnFlushFence drives the durability engine's fused flush+fence handling.
func (t *Tool) OnFlushFence(addr, tid uint64) { t.engine.OnFlushFence(addr, tid) }

// OnFence drives the durability engine's fence handling.
func (t *Tool) OnFence(tid uint64) { t.engine.OnFence(tid) }

// HandleClientRequest routes one client request to the dispatcher.
func (t *Tool) HandleClientRequest(req dispatch.Request) bool { return t.dispatch.Handle(req) }

// Monitor routes one GDB-monitor command to the dispatcher.
func (t *Tool) Monitor(cmd string, args []string) string { return t.dispatch.Monitor(cmd, args) }

// Plan computes the instrumentation callbacks for block. The actual IR
// splicing stays the host's job; Plan only decides what to insert where.
func (t *Tool) Plan(block hostabi.Block) []instrument.Callback { return instrument.Plan(block) }

// Regions exposes the registered-region table for host-side introspection
// (e.g. a REPL's "list regions" command).
func (t *Tool) Regions() *region.Table { return t.regions }
