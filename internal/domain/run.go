package domain

import "time"

// RunResult is the outcome of a single subprocess invocation
type RunResult struct {
	ExitCode   int
	Lines      []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// OK reports whether the subprocess exited cleanly
func (r RunResult) OK() bool {
	return r.ExitCode == 0
}

// ConvergenceReport holds per-cycle convergence fractions parsed from the
// simulation's diagnostic output. Converging tracks cells still moving towards
// convergence; it is informational only.
type ConvergenceReport struct {
	Converged  []float64
	Converging []float64
}

// Final returns the most recent converged fraction. The restart decision is
// made on this value alone.
func (c ConvergenceReport) Final() (float64, bool) {
	if len(c.Converged) == 0 {
		return 0, false
	}
	return c.Converged[len(c.Converged)-1], true
}

// ErrorTally counts the error messages found in a model's diagnostic files.
// It never affects control flow.
type ErrorTally map[string]int

// ModelResult pairs a model with the result of its final run
type ModelResult struct {
	Model  Model
	Result RunResult
	State  ConvergenceState
}

// BatchResult aggregates the per-model outcomes of one batch
type BatchResult struct {
	Results []ModelResult
}

// Append records one model's outcome
func (b *BatchResult) Append(m Model, r RunResult, state ConvergenceState) {
	b.Results = append(b.Results, ModelResult{Model: m, Result: r, State: state})
}

// Failed returns the number of models whose final run exited non-zero. This is
// the orchestrator's own exit status.
func (b *BatchResult) Failed() int {
	n := 0
	for _, mr := range b.Results {
		if mr.Result.ExitCode != 0 {
			n++
		}
	}
	return n
}
