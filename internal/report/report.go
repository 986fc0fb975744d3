// Package report renders the end-of-run durability report: outstanding
// cache/write-buffer lines grouped by stacktrace, and verifier wall-time
// statistics in scientific notation.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/calvinalkan/pmat/internal/durability"
	"github.com/calvinalkan/pmat/internal/stacktrace"
)

// StatsSource supplies the verification run counters and wall-time
// statistics to report. *crashsim.Simulator satisfies this; Reporter
// depends only on this narrow shape so the two packages don't import each
// other.
type StatsSource interface {
	Stats() (runs uint64, bad uint64, wallTimes *durability.Welford)
}

// Reporter renders durability.Engine's outstanding-line state plus
// verification statistics. It implements crashsim.ReportWriter.
type Reporter struct {
	engine *durability.Engine
	stats  StatsSource
}

// New wires a Reporter. stats may be nil to omit the verification-stats
// section (e.g. when crash simulation was never configured).
func New(engine *durability.Engine, stats StatsSource) *Reporter {
	return &Reporter{engine: engine, stats: stats}
}

// WriteReport renders the full report to w.
func (r *Reporter) WriteReport(w io.Writer) error {
	if err := r.writeCounts(w); err != nil {
		return err
	}

	if err := r.writeGroupedOrigins(w); err != nil {
		return err
	}

	if r.stats != nil {
		if err := r.writeStats(w); err != nil {
			return err
		}
	}

	return nil
}

func (r *Reporter) writeCounts(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d cache line(s) not made persistent\n%d write-buffer entry(ies) flushed but not fenced\n",
		r.engine.DirtyCount(), r.engine.FlushedCount())

	return err
}

// group collects the outstanding lines that share one origin stacktrace
// handle — already canonicalized by the interner's memcpy/memset skip rule,
// so equal handles mean "the same bug site" with no further comparison
// needed here.
type group struct {
	region string
	origin stacktrace.Handle
	lines  []durability.LineReport
}

func (r *Reporter) writeGroupedOrigins(w io.Writer) error {
	byOrigin := make(map[stacktrace.Handle]*group)
	order := make([]stacktrace.Handle, 0)

	for _, line := range r.engine.Outstanding() {
		g, ok := byOrigin[line.Origin]
		if !ok {
			g = &group{region: line.Region, origin: line.Origin}
			byOrigin[line.Origin] = g
			order = append(order, line.Origin)
		}

		g.lines = append(g.lines, line)
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	for _, origin := range order {
		g := byOrigin[origin]

		if _, err := fmt.Fprintf(w, "\n=== region %s ===\n", g.region); err != nil {
			return err
		}

		for _, frame := range r.engine.Interner().Frames(origin) {
			if _, err := fmt.Fprintf(w, "  0x%x %s\n", frame.PC, frame.Symbol); err != nil {
				return err
			}
		}
	}

	return nil
}

func (r *Reporter) writeStats(w io.Writer) error {
	runs, bad, wall := r.stats.Stats()

	_, err := fmt.Fprintf(w, "\nverification runs: %d, failed: %d\nwall time: min=%s max=%s mean=%s variance=%s\n",
		runs, bad,
		formatScientific(wall.Min()), formatScientific(wall.Max()),
		formatScientific(wall.Mean()), formatScientific(wall.Variance()),
	)

	return err
}

// formatScientific renders x as "mantissa e exponent" with the mantissa in
// [1, 10), e.g. "1.500000e+01" for 15.0.
func formatScientific(x float64) string {
	if x == 0 {
		return "0.000000e+00"
	}

	neg := x < 0
	if neg {
		x = -x
	}

	exp := int(math.Floor(math.Log10(x)))
	mantissa := x / math.Pow(10, float64(exp))

	switch {
	case mantissa >= 10:
		mantissa /= 10
		exp++
	case mantissa < 1:
		mantissa *= 10
		exp--
	}

	if neg {
		mantissa = -mantissa
	}

	return fmt.Sprintf("%.6fe%+03d", mantissa, exp)
}
