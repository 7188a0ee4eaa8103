package diag

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirocco-rt/sirocco-orch/internal/domain"
)

func writeDiag(t *testing.T, workdir, root, name, content string) {
	t.Helper()
	dir := filepath.Join(workdir, "diag_"+root)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestConvergence(t *testing.T) {
	workdir := t.TempDir()
	model := domain.Model{Root: "tde", Workdir: workdir}

	content := `Reading in atomic data
!!Check_convergence: 2500 (0.500) converged and 900 (0.180) converging of 5000 cells
some other diagnostic output
!!Check_convergence: 4150 (0.830) converged and 300 (0.060) converging of 5000 cells
`
	writeDiag(t, workdir, "tde", "tde_0.diag", content)

	report, err := Convergence(model)
	if err != nil {
		t.Fatal(err)
	}

	if len(report.Converged) != 2 {
		t.Fatalf("cycles = %d, want 2", len(report.Converged))
	}
	if report.Converged[0] != 0.500 || report.Converged[1] != 0.830 {
		t.Errorf("Converged = %v, want [0.5 0.83]", report.Converged)
	}
	if len(report.Converging) != 2 || report.Converging[1] != 0.060 {
		t.Errorf("Converging = %v, want [0.18 0.06]", report.Converging)
	}

	final, ok := report.Final()
	if !ok || final != 0.830 {
		t.Errorf("Final() = %v %v, want 0.83 true", final, ok)
	}
}

func TestConvergenceMissingDiagFile(t *testing.T) {
	model := domain.Model{Root: "never_run", Workdir: t.TempDir()}
	_, err := Convergence(model)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want wrapped os.ErrNotExist", err)
	}
}

func TestConvergenceMalformedFraction(t *testing.T) {
	workdir := t.TempDir()
	model := domain.Model{Root: "bad", Workdir: workdir}

	content := "!!Check_convergence: garbage (not-a-number) converged of 5000 cells\n"
	writeDiag(t, workdir, "bad", "bad_0.diag", content)

	report, err := Convergence(model)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Converged) != 1 {
		t.Fatalf("cycles = %d, want 1", len(report.Converged))
	}
	if !math.IsNaN(report.Converged[0]) {
		t.Errorf("malformed fraction = %v, want NaN", report.Converged[0])
	}
	if got := domain.ClassifyConvergence(report.Converged[0], 0.80); got != domain.StateAmbiguous {
		t.Errorf("malformed fraction classified %s, want ambiguous", got)
	}
}

func TestErrors(t *testing.T) {
	workdir := t.TempDir()
	model := domain.Model{Root: "cv", Workdir: workdir}

	writeDiag(t, workdir, "cv", "cv_0.diag", `setup output
Error: wind_update: negative temperature in cell 42
Error: wind_update: negative temperature in cell 42
Error: get_atomic_data: missing collision strength
`)
	writeDiag(t, workdir, "cv", "cv_1.diag", `Error: wind_update: negative temperature in cell 42
`)

	tally, err := Errors(model)
	if err != nil {
		t.Fatal(err)
	}

	if got := tally["wind_update: negative temperature in cell 42"]; got != 3 {
		t.Errorf("temperature error count = %d, want 3", got)
	}
	if got := tally["get_atomic_data: missing collision strength"]; got != 1 {
		t.Errorf("atomic data error count = %d, want 1", got)
	}
	if len(tally) != 2 {
		t.Errorf("distinct errors = %d, want 2", len(tally))
	}
}

func TestErrorsNoDiagFiles(t *testing.T) {
	model := domain.Model{Root: "none", Workdir: t.TempDir()}
	_, err := Errors(model)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want wrapped os.ErrNotExist", err)
	}
}
