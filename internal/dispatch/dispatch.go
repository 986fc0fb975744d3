package dispatch

import (
	"github.com/calvinalkan/pmat/internal/crashsim"
	"github.com/calvinalkan/pmat/internal/durability"
	"github.com/calvinalkan/pmat/internal/hostabi"
	"github.com/calvinalkan/pmat/internal/region"
)

// Dispatcher routes client requests from the guest to the engine. It holds
// no request-handling state of its own: every operation is delegated
// straight to the component that owns it.
type Dispatcher struct {
	regions   *region.Table
	transient *region.TransientTable
	engine    *durability.Engine
	crash     *crashsim.Simulator
	logger    hostabi.Logger
}

// New wires a Dispatcher against the already-constructed engine
// components.
func New(
	regions *region.Table,
	transient *region.TransientTable,
	engine *durability.Engine,
	crash *crashsim.Simulator,
	logger hostabi.Logger,
) *Dispatcher {
	return &Dispatcher{
		regions:   regions,
		transient: transient,
		engine:    engine,
		crash:     crash,
		logger:    logger,
	}
}

// Handle processes one client request. It returns false for an unrecognized
// or reserved code, matching "unknown or reserved codes return a warning
// and a not-handled result".
func (d *Dispatcher) Handle(req Request) bool {
	if reservedCodes[req.Code] {
		d.warnf("client request code %d is reserved and deprecated; ignoring", req.Code)

		return false
	}

	switch req.Code {
	case CodeFlush:
		d.engine.OnFlush(req.Addr, req.Tid)

	case CodeFence:
		d.engine.OnFence(req.Tid)

	case CodeRegister:
		if _, err := d.regions.Register(req.Name, req.Addr, req.Size); err != nil {
			d.warnf("register %q: %v", req.Name, err)
		}

	case CodeUnregisterByName:
		d.regions.UnregisterByName(req.Name)

	case CodeUnregisterByAddr:
		d.regions.UnregisterByAddress(req.Addr)

	case CodeForceCrash:
		if err := d.crash.ForceCrash(); err != nil {
			d.warnf("force crash: %v", err)
		}

	case CodeCrashDisable:
		d.crash.Disable()

	case CodeCrashEnable:
		d.crash.Enable()

	case CodeTransient:
		d.handleTransient(req)

	default:
		d.warnf("unrecognized or reserved client request code %d", req.Code)

		return false
	}

	return true
}

// handleTransient only records the range if it actually falls inside a
// registered region; a range with no owning region is a silent no-op.
func (d *Dispatcher) handleTransient(req Request) {
	r, ok := d.regions.Lookup(req.Addr)
	if !ok || req.Addr+req.Size > r.End() {
		return
	}

	d.transient.Add(req.Addr, req.Size)
}

func (d *Dispatcher) warnf(format string, args ...any) {
	if d.logger != nil {
		d.logger.Warnf(format, args...)
	}
}
