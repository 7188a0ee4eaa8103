// Package orchestrator drives simulation runs over a batch of models. For
// each model it launches one or two subprocess invocations, decides
// convergence from the simulation's diagnostics, and keeps the on-disk
// parameter file consistent around split-cycle mutations.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sirocco-rt/sirocco-orch/internal/diag"
	"github.com/sirocco-rt/sirocco-orch/internal/domain"
	"github.com/sirocco-rt/sirocco-orch/internal/notify"
	"github.com/sirocco-rt/sirocco-orch/internal/params"
)

// Parameter mutations for the split-cycle restart: the spectrum-synthesis
// phase reruns from the converged ionization state with more photons.
const (
	keySpectrumCycles  = "Spectrum_cycles"
	keyPhotonsPerCycle = "Photons_per_cycle"

	restartPhotons        = "1e6"
	restartSpectrumCycles = "5"
)

// ProcessRunner launches one subprocess invocation for a model
type ProcessRunner interface {
	Run(ctx context.Context, m domain.Model, resume bool) (domain.RunResult, error)
}

// Mutator rewrites parameter values in a model's configuration file
type Mutator interface {
	Set(path, key, value string, backup bool) error
	Restore(path string) error
}

// Evaluator reads a model's convergence report after a run
type Evaluator func(domain.Model) (domain.ConvergenceReport, error)

// ErrorScanner tallies error messages from a model's diagnostics
type ErrorScanner func(domain.Model) (domain.ErrorTally, error)

// RunRecord is one persisted subprocess invocation
type RunRecord struct {
	ID          string
	Root        string
	Workdir     string
	Kind        domain.RunKind
	ExitCode    int
	Convergence float64
	HasFraction bool
	StartedAt   time.Time
	FinishedAt  time.Time
}

// RunStore persists run records; nil disables persistence
type RunStore interface {
	SaveRun(rec RunRecord) error
}

// Options configures a batch
type Options struct {
	SplitCycles bool
	Threshold   float64

	// RestoreOnSkip restores the parameter-file backup even when the
	// restart run is skipped. The historical behavior leaves the
	// ionization-only configuration on disk so a human can resume by hand;
	// that remains the default.
	RestoreOnSkip bool

	Debug bool
}

// Orchestrator runs the per-model state machine over a batch, strictly one
// model at a time
type Orchestrator struct {
	Runner   ProcessRunner
	Opts     Options
	Out      io.Writer // report output; nil means os.Stdout
	Store    RunStore
	Notifier notify.Notifier

	// Collaborators default to the diag and params packages; tests swap
	// them out.
	Evaluate   Evaluator
	ScanErrors ErrorScanner
	Mutate     Mutator
}

// New returns an Orchestrator with the default collaborators
func New(runner ProcessRunner, opts Options) *Orchestrator {
	if opts.Threshold == 0 {
		opts.Threshold = domain.DefaultConvergenceThreshold
	}
	return &Orchestrator{
		Runner:     runner,
		Opts:       opts,
		Evaluate:   diag.Convergence,
		ScanErrors: diag.Errors,
		Mutate:     fileMutator{},
	}
}

// fileMutator edits parameter files through the params package
type fileMutator struct{}

func (fileMutator) Set(path, key, value string, backup bool) error {
	return params.Set(path, key, value, backup)
}

func (fileMutator) Restore(path string) error {
	return params.Restore(path)
}

func (o *Orchestrator) out() io.Writer {
	if o.Out != nil {
		return o.Out
	}
	return os.Stdout
}

// RunBatch runs every model in order and aggregates the outcomes. Per-model
// failures are recorded and reported; they never abort the batch.
func (o *Orchestrator) RunBatch(ctx context.Context, models []domain.Model) domain.BatchResult {
	var batch domain.BatchResult
	out := o.out()

	for i, m := range models {
		fmt.Fprintf(out, "%s\nModel %d/%d: %s\n%s\n", rule(), i+1, len(models), m, rule())

		result, state, err := o.RunModel(ctx, m)
		if err != nil {
			log.Printf("[orchestrator] %s: %v", m.Root, err)
			if result.ExitCode == 0 {
				result.ExitCode = 1
			}
		}
		batch.Append(m, result, state)

		o.reportErrors(m)
		fmt.Fprintf(out, "%s\n\n", rule())
	}

	failed := batch.Failed()
	if failed > 0 {
		fmt.Fprintf(out, "%d of %d models failed:\n", failed, len(models))
		for _, mr := range batch.Results {
			if mr.Result.ExitCode != 0 {
				fmt.Fprintf(out, "  %s (exit %d)\n", mr.Model, mr.Result.ExitCode)
			}
		}
	} else {
		fmt.Fprintf(out, "All %d models completed\n", len(models))
	}

	o.notifyBatch(len(models), failed)

	return batch
}

// RunModel drives one model through the state machine: primary run,
// convergence decision, optional split-cycle restart, backup restore.
func (o *Orchestrator) RunModel(ctx context.Context, m domain.Model) (domain.RunResult, domain.ConvergenceState, error) {
	pf := m.ParameterFile()

	if o.Opts.SplitCycles {
		// Ionization-only first pass. The backup taken here is the one
		// the restore at the end of the restart path copies back.
		if err := o.Mutate.Set(pf, keySpectrumCycles, "0", true); err != nil {
			return domain.RunResult{}, domain.StateUnknown, fmt.Errorf("preparing split-cycle run: %w", err)
		}
	}

	result, err := o.Runner.Run(ctx, m, false)
	if err != nil {
		o.record(m, domain.RunPrimary, result, nil)
		return result, domain.StateUnknown, err
	}

	if result.ExitCode != 0 {
		// A failed ionization run has no restartable state: no
		// convergence check, no restart.
		o.record(m, domain.RunPrimary, result, nil)
		fmt.Fprintf(o.out(), "Run failed with exit code %d\n", result.ExitCode)
		return result, domain.StateUnknown, nil
	}

	state, report := o.decideConvergence(m)
	o.record(m, domain.RunPrimary, result, report)

	if !o.Opts.SplitCycles {
		return result, state, nil
	}

	if state != domain.StateConverged {
		fmt.Fprintf(o.out(), "Skipping spectrum cycles: model is %s\n", state)
		if o.Opts.RestoreOnSkip {
			if err := o.Mutate.Restore(pf); err != nil {
				return result, state, fmt.Errorf("restoring parameter file: %w", err)
			}
		} else {
			fmt.Fprintf(o.out(), "Parameter file left ionization-only; restore %s%s by hand to rerun\n",
				pf, params.BackupSuffix)
		}
		return result, state, nil
	}

	restartResult, err := o.restartRun(ctx, m)
	return restartResult, state, err
}

// restartRun performs the spectrum-synthesis half of a split-cycle run. The
// parameter file is restored from the primary run's backup on every path out.
func (o *Orchestrator) restartRun(ctx context.Context, m domain.Model) (domain.RunResult, error) {
	pf := m.ParameterFile()

	if err := o.Mutate.Set(pf, keyPhotonsPerCycle, restartPhotons, false); err != nil {
		return domain.RunResult{}, fmt.Errorf("preparing restart: %w", err)
	}
	if err := o.Mutate.Set(pf, keySpectrumCycles, restartSpectrumCycles, false); err != nil {
		return domain.RunResult{}, fmt.Errorf("preparing restart: %w", err)
	}

	fmt.Fprintf(o.out(), "Restarting %s for spectrum cycles\n", m.Root)
	result, runErr := o.Runner.Run(ctx, m, true)
	o.record(m, domain.RunRestart, result, nil)

	// The on-disk configuration always ends in its pre-run shape,
	// regardless of how the subprocess fared.
	if err := o.Mutate.Restore(pf); err != nil {
		return result, fmt.Errorf("restoring parameter file: %w", err)
	}

	if runErr != nil {
		return result, runErr
	}
	if result.ExitCode != 0 {
		fmt.Fprintf(o.out(), "Restart run failed with exit code %d\n", result.ExitCode)
	}
	return result, nil
}

// decideConvergence evaluates the diagnostics and classifies the final
// fraction. Missing diagnostics mean no convergence information, which is
// distinct from not converged.
func (o *Orchestrator) decideConvergence(m domain.Model) (domain.ConvergenceState, *domain.ConvergenceReport) {
	report, err := o.Evaluate(m)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(o.out(), "No convergence information for %s\n", m.Root)
		} else {
			log.Printf("[orchestrator] %s: reading convergence: %v", m.Root, err)
		}
		return domain.StateUnknown, nil
	}

	c, ok := report.Final()
	if !ok {
		fmt.Fprintf(o.out(), "No convergence information for %s\n", m.Root)
		return domain.StateUnknown, nil
	}

	state := domain.ClassifyConvergence(c, o.Opts.Threshold)
	switch state {
	case domain.StateAmbiguous:
		fmt.Fprintf(o.out(), "Model convergence: %g is not a sensible fraction, treating as not converged\n", c)
	default:
		fmt.Fprintf(o.out(), "Model convergence: %.2f (threshold %.2f)\n", c, o.Opts.Threshold)
	}
	return state, &report
}

// reportErrors prints the informational error tally for a model
func (o *Orchestrator) reportErrors(m domain.Model) {
	tally, err := o.ScanErrors(m)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[orchestrator] %s: scanning errors: %v", m.Root, err)
		}
		return
	}
	if len(tally) == 0 {
		return
	}

	msgs := make([]string, 0, len(tally))
	for msg := range tally {
		msgs = append(msgs, msg)
	}
	sort.Strings(msgs)

	out := o.out()
	fmt.Fprintf(out, "Errors reported by %s:\n", m.Root)
	for _, msg := range msgs {
		fmt.Fprintf(out, "  %6d  %s\n", tally[msg], msg)
	}
}

func (o *Orchestrator) record(m domain.Model, kind domain.RunKind, result domain.RunResult, report *domain.ConvergenceReport) {
	if o.Store == nil {
		return
	}

	rec := RunRecord{
		ID:         uuid.New().String(),
		Root:       m.Root,
		Workdir:    m.Workdir,
		Kind:       kind,
		ExitCode:   result.ExitCode,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	}
	if report != nil {
		if c, ok := report.Final(); ok {
			rec.Convergence = c
			rec.HasFraction = true
		}
	}

	if err := o.Store.SaveRun(rec); err != nil {
		log.Printf("[orchestrator] %s: saving run record: %v", m.Root, err)
	}
}

func (o *Orchestrator) notifyBatch(total, failed int) {
	if o.Notifier == nil {
		return
	}

	n := notify.Notification{
		Title:   "Simulation batch complete",
		Message: fmt.Sprintf("%d models, %d failed", total, failed),
		Type:    notify.NotifySuccess,
	}
	if failed > 0 {
		n.Type = notify.NotifyError
	}
	if err := o.Notifier.Send(n); err != nil {
		log.Printf("[orchestrator] sending notification: %v", err)
	}
}

func rule() string {
	return strings.Repeat("-", 78)
}
