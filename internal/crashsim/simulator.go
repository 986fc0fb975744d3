// Package crashsim implements the crash-simulation loop: at random
// intervals it snapshots the current durability state by forking off an
// external verifier against the registered backing files, exactly as they
// sit on disk at that instant, and classifies the result.
//
// os/exec's Cmd.Start/Cmd.Wait is the idiomatic Go replacement for the
// underlying fork/exec/waitpid sequence: Start forks and execs in one call,
// Wait blocks like waitpid, and the returned *exec.ExitError together with
// ProcessState exposes exit code and signal status the same way a raw
// syscall wrapper would.
package crashsim

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/calvinalkan/pmat/internal/durability"
	"github.com/calvinalkan/pmat/internal/hostabi"
	"github.com/calvinalkan/pmat/internal/region"
	"github.com/calvinalkan/pmat/pkg/fs"
)

// defaultCrashProbability is the per-call odds that maybe_crash actually
// simulates a crash, absent an override in Config.
const defaultCrashProbability = 1.0 / 100.0

// ReportWriter renders the current unpersisted/unfenced line report. It is
// satisfied by *internal/report.Reporter; Simulator only needs to write it
// into the per-attempt dump file.
type ReportWriter interface {
	WriteReport(w io.Writer) error
}

// Config bundles Simulator's tunables.
type Config struct {
	VerifierPath string // absolute path to the verifier executable; empty disables crash simulation
	Seed         uint64
	Disabled     bool    // PMAT_CRASH_DISABLE / ENABLE toggle
	Probability  float64 // per-call odds of simulating a crash; 0 means defaultCrashProbability
}

// Simulator owns the crash-simulation loop's state: the verification
// counter, running wall-time statistics, and whether crash simulation is
// currently enabled.
type Simulator struct {
	fsys    fs.FS
	regions *region.Table
	report  ReportWriter
	logger  hostabi.Logger
	rng     *rand.Rand

	verifierPath string
	disabled     bool
	probability  float64

	k         uint64
	badCount  uint64
	wallTimes durability.Welford
}

// NewSimulator wires a Simulator. fsys is used for snapshot copies and
// per-attempt artifact files; report renders the dump file's contents.
func NewSimulator(fsys fs.FS, regions *region.Table, report ReportWriter, logger hostabi.Logger, cfg Config) *Simulator {
	probability := cfg.Probability
	if probability == 0 {
		probability = defaultCrashProbability
	}

	return &Simulator{
		fsys:         fsys,
		regions:      regions,
		report:       report,
		logger:       logger,
		rng:          rand.New(rand.NewPCG(cfg.Seed, cfg.Seed)),
		verifierPath: cfg.VerifierPath,
		disabled:     cfg.Disabled,
		probability:  probability,
	}
}

// SetReport wires (or replaces) the report renderer used for the dump file.
// Exists because the reporter itself needs a *Simulator (as its
// StatsSource) to construct, so callers build the Simulator with a nil
// report first and attach the reporter once it exists.
func (s *Simulator) SetReport(r ReportWriter) { s.report = r }

// Disable implements PMAT_CRASH_DISABLE.
func (s *Simulator) Disable() { s.disabled = true }

// Enable implements PMAT_CRASH_ENABLE.
func (s *Simulator) Enable() { s.disabled = false }

// MaybeCrash is the probabilistic gate every store/flush/fence calls
// through. It returns immediately unless crash simulation is enabled, a
// verifier is configured, and at least one region is registered; otherwise
// it simulates a crash with the configured probability (1/100 unless
// Config.Probability sets another).
func (s *Simulator) MaybeCrash() {
	if s.disabled || s.verifierPath == "" || s.regions.Len() == 0 {
		return
	}

	if s.rng.Float64() >= s.probability {
		return
	}

	s.SimulateCrash()
}

// ForceCrash implements PMAT_FORCE_SIMULATE_CRASH: an unconditional
// invocation, but still a user error if there is nothing to verify.
func (s *Simulator) ForceCrash() error {
	if s.verifierPath == "" {
		return ErrNoVerifier
	}

	if s.regions.Len() == 0 {
		return ErrNoRegions
	}

	s.SimulateCrash()

	return nil
}

// Stats returns the running verification statistics: attempt count, bad
// (failed) count, and wall-time Welford accumulator.
func (s *Simulator) Stats() (runs uint64, bad uint64, wallTimes *durability.Welford) {
	return s.k, s.badCount, &s.wallTimes
}

// SimulateCrash runs one crash-simulation attempt: snapshot the leak report
// and the registered regions' file names, invoke the verifier, classify its
// exit, and keep or discard the per-attempt artifacts accordingly.
func (s *Simulator) SimulateCrash() {
	attempt := s.k + 1

	regions := s.regions.Regions()

	names := make([]string, len(regions))
	for i, r := range regions {
		names[i] = r.Name
	}

	stdoutPath := fmt.Sprintf("bad-verification-%d.stdout", attempt)
	stderrPath := fmt.Sprintf("bad-verification-%d.stderr", attempt)
	dumpPath := fmt.Sprintf("bad-verification-%d.dump", attempt)

	stdoutFile, err := s.fsys.Create(stdoutPath)
	if err != nil {
		s.fatalf("crashsim: create %q: %v", stdoutPath, err)

		return
	}
	defer stdoutFile.Close()

	stderrFile, err := s.fsys.Create(stderrPath)
	if err != nil {
		s.fatalf("crashsim: create %q: %v", stderrPath, err)

		return
	}
	defer stderrFile.Close()

	dumpFile, err := s.fsys.Create(dumpPath)
	if err != nil {
		s.fatalf("crashsim: create %q: %v", dumpPath, err)

		return
	}

	if s.report != nil {
		if err := s.report.WriteReport(dumpFile); err != nil {
			s.warnf("crashsim: write dump %q: %v", dumpPath, err)
		}
	}

	_ = dumpFile.Close()

	args := append([]string{strconv.Itoa(len(names))}, names...)
	cmd := exec.Command(s.verifierPath, args...)
	cmd.Stdout = stdoutFile
	cmd.Stderr = stderrFile

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	s.k = attempt
	s.wallTimes.Add(elapsed.Seconds())

	outcome, snapshotSuffix := classify(runErr)

	switch outcome {
	case outcomeSuccess:
		_ = s.fsys.Remove(stdoutPath)
		_ = s.fsys.Remove(stderrPath)
		_ = s.fsys.Remove(dumpPath)

	case outcomeVerificationFailure:
		s.badCount++
		s.snapshot(names, attempt, snapshotSuffix)

	case outcomeBad, outcomeWeird:
		s.snapshot(names, attempt, snapshotSuffix)
	}
}

func (s *Simulator) snapshot(names []string, attempt uint64, suffix string) {
	for _, name := range names {
		dst := fmt.Sprintf("%s.%d%s", name, attempt, suffix)

		if err := copyFile(s.fsys, name, dst); err != nil {
			s.warnf("crashsim: snapshot %q -> %q: %v", name, dst, err)
		}
	}
}

func (s *Simulator) warnf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Warnf(format, args...)
	}
}

func (s *Simulator) fatalf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Fatalf(format, args...)

		return
	}

	panic(fmt.Sprintf(format, args...))
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeVerificationFailure
	outcomeBad
	outcomeWeird
)

// pmatVerificationFailure is the verifier's sentinel exit code for a
// caught durability inconsistency (0xBD, as documented in the external
// interface); the wraparound "-0xBD" case below accounts for signed
// exit-status encodings some platforms surface.
const pmatVerificationFailure = 0xBD

// classify maps a verifier run's error into an outcome and the snapshot
// filename suffix it implies.
func classify(runErr error) (outcome, string) {
	if runErr == nil {
		return outcomeSuccess, ""
	}

	exitErr, ok := runErr.(*exec.ExitError)
	if !ok {
		// The verifier could not even be started (bad path, permissions):
		// not one of the modeled exit paths.
		return outcomeWeird, ".bad.weird"
	}

	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return outcomeBad, ".bad.coredump"
	}

	code := exitErr.ExitCode()
	if code == pmatVerificationFailure || code == -pmatVerificationFailure {
		return outcomeVerificationFailure, ".bad"
	}

	return outcomeBad, ".bad"
}
