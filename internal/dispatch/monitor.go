package dispatch

import (
	"fmt"
	"sort"
	"strings"
)

// Monitor handles the GDB-monitor command channel: "help", "print_stats",
// "print_pmem_regions". Unlike Handle, this is a free-text protocol (the
// host framework's monitor bridges a human-typed line to here), so it
// returns a rendered string rather than a handled/not-handled bool.
func (d *Dispatcher) Monitor(cmd string, args []string) string {
	switch strings.TrimSpace(cmd) {
	case "help":
		return d.monitorHelp()
	case "print_stats":
		return d.monitorStats()
	case "print_pmem_regions":
		return d.monitorRegions()
	default:
		return fmt.Sprintf("unknown monitor command %q; try \"help\"", cmd)
	}
}

func (d *Dispatcher) monitorHelp() string {
	return "available monitor commands: help, print_stats, print_pmem_regions"
}

func (d *Dispatcher) monitorStats() string {
	runs, bad, wall := d.crash.Stats()

	return fmt.Sprintf(
		"verifications: %d run, %d bad\nwall time: min=%.6g max=%.6g mean=%.6g variance=%.6g\ndirty lines: %d, flushed-unfenced lines: %d",
		runs, bad, wall.Min(), wall.Max(), wall.Mean(), wall.Variance(),
		d.engine.DirtyCount(), d.engine.FlushedCount(),
	)
}

func (d *Dispatcher) monitorRegions() string {
	regions := d.regions.Regions()
	if len(regions) == 0 {
		return "no registered regions"
	}

	names := make([]string, 0, len(regions))
	byName := make(map[string]string, len(regions))

	for _, r := range regions {
		line := fmt.Sprintf("%-24s base=0x%x size=%d", r.Name, r.Base, r.Size)
		names = append(names, r.Name)
		byName[r.Name] = line
	}

	sort.Strings(names)

	lines := make([]string, len(names))
	for i, n := range names {
		lines[i] = byName[n]
	}

	return strings.Join(lines, "\n")
}
