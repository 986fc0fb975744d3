package dispatch

import "strings"

const verifierFlagPrefix = "--pmat-verifier="

// ParseVerifierFlag scans args for a single "--pmat-verifier=<path>"
// argument and returns its path plus every other argument unchanged, in
// order. This deliberately does not use a general flag-parsing library: the
// host framework hands the tool its own command-line options one at a time
// through a callback, not as a pre-split slice an off-the-shelf parser could
// consume, so recognizing exactly one flag by hand matches that contract.
//
// Returns ("", args, false) if no such flag is present.
func ParseVerifierFlag(args []string) (path string, rest []string, ok bool) {
	rest = make([]string, 0, len(args))

	for _, a := range args {
		if v, found := strings.CutPrefix(a, verifierFlagPrefix); found {
			path = v
			ok = true

			continue
		}

		rest = append(rest, a)
	}

	return path, rest, ok
}
