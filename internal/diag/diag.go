// Package diag reads the simulation's own diagnostic files. The simulation
// writes one diag file per parallel process under diag_<root>/; convergence
// statistics come from the master process file, error tallies from all of
// them.
package diag

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirocco-rt/sirocco-orch/internal/domain"
)

// convergenceMarker opens a per-cycle convergence summary line in a diag
// file, e.g.
//
//	!!Check_convergence: 4312 (0.862) converged and 123 (0.025) converging of 5000 cells
const convergenceMarker = "!!Check_convergence"

// errorMarker prefixes an error report in a diag file
const errorMarker = "Error: "

// MasterDiagFile returns the path of the master process's diag file
func MasterDiagFile(m domain.Model) string {
	return filepath.Join(m.DiagDir(), m.Root+"_0.diag")
}

// Convergence parses the per-cycle convergence fractions for a model. A model
// that has not produced a diag file yet yields an error satisfying
// errors.Is(err, os.ErrNotExist), which means "no convergence information",
// not "not converged".
func Convergence(m domain.Model) (domain.ConvergenceReport, error) {
	f, err := os.Open(MasterDiagFile(m))
	if err != nil {
		return domain.ConvergenceReport{}, fmt.Errorf("no diagnostics for %s: %w", m.Root, err)
	}
	defer f.Close()

	var report domain.ConvergenceReport
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, convergenceMarker) {
			continue
		}
		fractions := parenFractions(line)
		// A summary line with no readable fraction still counts as a
		// cycle; NaN marks the malformed entry so the caller can
		// classify it as ambiguous rather than converged.
		if len(fractions) == 0 {
			report.Converged = append(report.Converged, math.NaN())
			continue
		}
		report.Converged = append(report.Converged, fractions[0])
		if len(fractions) > 1 {
			report.Converging = append(report.Converging, fractions[1])
		}
	}
	if err := scanner.Err(); err != nil {
		return domain.ConvergenceReport{}, err
	}
	return report, nil
}

// Errors tallies the error messages across every diag file of a model. The
// tally is informational only and never affects control flow.
func Errors(m domain.Model) (domain.ErrorTally, error) {
	pattern := filepath.Join(m.DiagDir(), m.Root+"_*.diag")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no diagnostics for %s: %w", m.Root, os.ErrNotExist)
	}

	tally := make(domain.ErrorTally)
	for _, file := range files {
		if err := tallyFile(file, tally); err != nil {
			return nil, err
		}
	}
	return tally, nil
}

func tallyFile(path string, tally domain.ErrorTally) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, errorMarker)
		if idx < 0 {
			continue
		}
		msg := strings.TrimSpace(line[idx+len(errorMarker):])
		if msg == "" {
			continue
		}
		tally[msg]++
	}
	return scanner.Err()
}

// parenFractions extracts every parenthesized number from a line, in order
func parenFractions(line string) []float64 {
	var out []float64
	for {
		open := strings.IndexByte(line, '(')
		if open < 0 {
			break
		}
		close := strings.IndexByte(line[open:], ')')
		if close < 0 {
			break
		}
		inner := line[open+1 : open+close]
		if f, err := strconv.ParseFloat(strings.TrimSpace(inner), 64); err == nil {
			out = append(out, f)
		}
		line = line[open+close+1:]
	}
	return out
}
