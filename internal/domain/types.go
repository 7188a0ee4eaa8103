package domain

// RunKind distinguishes the two subprocess launches of a split-cycle run
type RunKind string

const (
	RunPrimary RunKind = "primary"
	RunRestart RunKind = "restart"
)

// ConvergenceState classifies the final convergence fraction of a run
type ConvergenceState string

const (
	StateConverged    ConvergenceState = "converged"
	StateNotConverged ConvergenceState = "not_converged"
	StateAmbiguous    ConvergenceState = "ambiguous"

	// StateUnknown means no convergence information exists for the run:
	// the model failed before producing diagnostics, or never ran. It is
	// distinct from not converged.
	StateUnknown ConvergenceState = "unknown"
)

// DefaultConvergenceThreshold is the fraction of converged cells above which
// a model counts as converged
const DefaultConvergenceThreshold = 0.80

// ClassifyConvergence maps a final convergence fraction to a state.
// The threshold boundary is inclusive. A fraction outside [0, 1] means the
// diagnostic output is malformed and is never treated as converged.
func ClassifyConvergence(c, threshold float64) ConvergenceState {
	if c != c || c < 0 || c > 1 {
		return StateAmbiguous
	}
	if c >= threshold {
		return StateConverged
	}
	return StateNotConverged
}
