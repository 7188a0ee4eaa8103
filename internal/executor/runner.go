// Package executor launches the simulation binary as a subprocess and streams
// its output through the line classifier into the model's run log.
package executor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirocco-rt/sirocco-orch/internal/classify"
	"github.com/sirocco-rt/sirocco-orch/internal/domain"
)

// DefaultBinary is the simulation executable name
const DefaultBinary = "sirocco"

// DefaultSetupCommand creates the atomic data links a model directory needs
// before its first run
const DefaultSetupCommand = "Setup_Py_Dir"

// Runner builds the launch command for a model and runs it to completion. One
// Runner is reused for every invocation in a batch; models run strictly one
// at a time.
type Runner struct {
	Binary       string
	SetupCommand string
	MPIRun       string // parallel-launch prefix, e.g. "mpirun"; empty runs single-core
	Cores        int
	Flags        []string // passthrough flags for the simulation binary

	// ForceResume passes the resume flag on every invocation.
	ForceResume bool

	// ResumeOverride disables the implicit default-to-resume policy: without
	// it, a model whose wind_save file exists resumes from saved state.
	ResumeOverride bool

	Classifier classify.LineClassifier
	Out        io.Writer // classifier-emitted lines; nil means os.Stdout
	Debug      bool
}

// BuildCommand assembles the shell command for one invocation of a model.
// The resume flag is passed when explicitly requested or when a prior-run
// marker exists and ResumeOverride is not set.
func (r *Runner) BuildCommand(m domain.Model, resume bool) string {
	var parts []string
	parts = append(parts, "cd "+m.Workdir+";")

	if _, err := os.Stat(filepath.Join(m.Workdir, "data")); os.IsNotExist(err) {
		setup := r.SetupCommand
		if setup == "" {
			setup = DefaultSetupCommand
		}
		parts = append(parts, setup+";")
	}

	if r.MPIRun != "" && r.Cores > 1 {
		parts = append(parts, fmt.Sprintf("%s -n %d", r.MPIRun, r.Cores))
	}

	binary := r.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	parts = append(parts, binary)

	if r.shouldResume(m, resume) {
		parts = append(parts, "-r")
	}

	parts = append(parts, r.Flags...)
	parts = append(parts, m.Root)

	return strings.Join(parts, " ")
}

func (r *Runner) shouldResume(m domain.Model, resume bool) bool {
	if resume || r.ForceResume {
		return true
	}
	if r.ResumeOverride {
		return false
	}
	_, err := os.Stat(m.WindSaveFile())
	return err == nil
}

// Run launches one invocation of a model and consumes its output until the
// process exits. A non-zero exit code is recorded in the result, not returned
// as an error; errors mean the process could not be launched or its output
// could not be captured.
func (r *Runner) Run(ctx context.Context, m domain.Model, resume bool) (domain.RunResult, error) {
	result := domain.RunResult{StartedAt: time.Now()}

	logFile, err := os.OpenFile(m.LogFile(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return result, fmt.Errorf("opening run log: %w", err)
	}
	defer logFile.Close()

	fmt.Fprintf(logFile, "=== Run started at %s ===\n", result.StartedAt.Format(time.RFC3339))

	command := r.BuildCommand(m, resume)
	if r.Debug {
		log.Printf("[runner] %s: %s", m.Root, command)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return result, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return result, err
	}

	if err := cmd.Start(); err != nil {
		return result, fmt.Errorf("starting %s: %w", m.Root, err)
	}

	// Both streams are drained concurrently so a full pipe buffer can never
	// stall the child. The classifier can stop the tail early; draining and
	// logging continue regardless.
	sink := &syncWriter{w: logFile}
	lines := make(chan []string, 1)
	go func() {
		lines <- r.consumeStdout(stdout, sink)
	}()
	errDone := make(chan struct{})
	go func() {
		drainStderr(stderr, sink)
		close(errDone)
	}()

	result.Lines = <-lines
	<-errDone

	err = cmd.Wait()
	result.FinishedAt = time.Now()

	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return result, fmt.Errorf("waiting for %s: %w", m.Root, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	if r.Debug {
		log.Printf("[runner] %s: exit %d after %s", m.Root, result.ExitCode,
			result.FinishedAt.Sub(result.StartedAt).Round(time.Second))
	}

	return result, nil
}

// consumeStdout reads the child's stdout line by line. Every raw line goes to
// the run log; while the classifier still wants input, classified lines are
// reported. When the classifier signals the convergence-statistics block the
// tail stops but the stream is still drained to exhaustion.
func (r *Runner) consumeStdout(stdout io.Reader, logFile io.Writer) []string {
	out := r.Out
	if out == nil {
		out = os.Stdout
	}

	var captured []string
	tailing := r.Classifier != nil

	scanner := bufio.NewScanner(stdout)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		captured = append(captured, line)
		fmt.Fprintln(logFile, line)

		if !tailing {
			continue
		}
		emit, keepGoing := r.Classifier.Classify(line)
		for _, e := range emit {
			fmt.Fprintln(out, e)
		}
		if !keepGoing {
			tailing = false
		}
	}
	return captured
}

func drainStderr(stderr io.Reader, logFile io.Writer) {
	scanner := bufio.NewScanner(stderr)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		fmt.Fprintln(logFile, scanner.Text())
	}
}

// syncWriter serializes writes from the stdout and stderr readers into the
// shared run log
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
