// Package classify turns raw simulation output lines into human-readable
// progress reports. The simulation's output format is not versioned, so every
// rule here is a substring match with graceful fallback: a field that fails to
// parse as a number is forwarded as-is rather than dropped.
package classify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ConvergenceStatsMarker opens the simulation's own convergence-statistics
// block. Seeing it means no further output needs to be consumed, although the
// process itself keeps running.
const ConvergenceStatsMarker = "Convergence statistics"

// LineClassifier consumes one raw output line and produces zero or more lines
// to report, plus a signal for whether the caller should keep reading.
type LineClassifier interface {
	Classify(line string) (emit []string, keepGoing bool)
}

// Classifier is the default LineClassifier for simulation output.
type Classifier struct {
	Cores     int
	Verbosity Verbosity

	// Now supplies the wall-clock prefix on cycle-start lines. Nil means
	// time.Now.
	Now func() time.Time
}

// New returns a Classifier for the given core count and verbosity
func New(cores int, verbosity Verbosity) *Classifier {
	if cores < 1 {
		cores = 1
	}
	return &Classifier{Cores: cores, Verbosity: verbosity}
}

func (c *Classifier) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Classify classifies a single output line. The keepGoing return is false
// exactly when the line contains ConvergenceStatsMarker.
func (c *Classifier) Classify(line string) ([]string, bool) {
	keepGoing := !strings.Contains(line, ConvergenceStatsMarker)

	// Escape hatch for debugging: echo everything verbatim.
	if c.Verbosity >= All {
		return []string{line}, keepGoing
	}

	fields := strings.Fields(line)
	lower := strings.ToLower(line)

	switch {
	case strings.Contains(lower, "photon") && strings.Contains(line, "per cent"):
		if c.Verbosity >= ExtraTransport {
			return []string{c.transportProgress(fields)}, keepGoing
		}

	case strings.Contains(lower, "photon transport completed in"):
		if c.Verbosity >= Extra {
			return []string{"Photon transport completed in: " + durationField(fields, 5)}, keepGoing
		}

	case strings.Contains(line, "Completed ionization cycle") ||
		strings.Contains(line, "Completed spectrum cycle"):
		if c.Verbosity >= Progress {
			return []string{"Elapsed run time: " + durationField(fields, 8)}, keepGoing
		}

	case strings.Contains(line, "converged") && strings.Contains(line, "converging"):
		if c.Verbosity >= Progress {
			return []string{"    " + strings.TrimSpace(line)}, keepGoing
		}

	case strings.Contains(line, "for defining wind"):
		if c.Verbosity >= Progress {
			return []string{c.cycleStart("ionisation", fields)}, keepGoing
		}

	case strings.Contains(line, "to calculate a detailed spectrum"):
		if c.Verbosity >= Progress {
			return []string{c.cycleStart("spectrum", fields)}, keepGoing
		}

	case strings.Contains(line, "Completed entire program"):
		if c.Verbosity >= Progress {
			return []string{"Simulation completed in: " + durationField(fields, 5)}, keepGoing
		}
	}

	return nil, keepGoing
}

// transportProgress formats a photon-transport progress line, e.g.
//
//	!!sirocco: photon transport cycle progress 10.0 per cent 100000 photons
//
// Each parallel worker reports only its own photon count, so the total is
// scaled by the core count.
func (c *Classifier) transportProgress(fields []string) string {
	percent := field(fields, 5)
	if f, err := strconv.ParseFloat(percent, 64); err == nil {
		percent = fmt.Sprintf("%.0f", f)
	}

	count := field(fields, 8)
	if n, err := strconv.ParseInt(count, 10, 64); err == nil {
		count = humanize.Comma(n * int64(c.Cores))
	}

	return fmt.Sprintf("  %s%% of %s photons transported", percent, count)
}

// cycleStart formats a cycle-start marker, e.g.
//
//	!!sirocco: Beginning cycle 2 of 5 for defining wind
//
// The simulation counts cycles from zero; the summary counts from one.
func (c *Classifier) cycleStart(kind string, fields []string) string {
	cycle := field(fields, 3)
	if n, err := strconv.Atoi(cycle); err == nil {
		cycle = strconv.Itoa(n + 1)
	}
	total := field(fields, 5)

	return fmt.Sprintf("%s  Starting %s cycle %s/%s", c.now().Format("15:04"), kind, cycle, total)
}

// durationField renders the whitespace-delimited field at i as H:M:S, falling
// back to the raw field when it is not a number.
func durationField(fields []string, i int) string {
	raw := field(fields, i)
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	return hms(seconds)
}

// field returns fields[i] or an empty string when out of range
func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

// hms renders a duration in seconds as H:MM:SS
func hms(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}
