package runstore

import (
	"database/sql"
	"testing"
	"time"

	"github.com/sirocco-rt/sirocco-orch/internal/domain"
)

func TestStore_SaveAndListRuns(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	runs := []Run{
		{ID: "a", Root: "tde", Workdir: "/sims/tde", Kind: domain.RunPrimary, ExitCode: 0,
			Convergence: sql.NullFloat64{Float64: 0.83, Valid: true},
			StartedAt:   base, FinishedAt: base.Add(time.Hour)},
		{ID: "b", Root: "tde", Workdir: "/sims/tde", Kind: domain.RunRestart, ExitCode: 0,
			StartedAt: base.Add(2 * time.Hour), FinishedAt: base.Add(3 * time.Hour)},
		{ID: "c", Root: "cv", Workdir: "/sims/cv", Kind: domain.RunPrimary, ExitCode: 2,
			StartedAt: base.Add(4 * time.Hour), FinishedAt: base.Add(5 * time.Hour)},
	}
	for _, run := range runs {
		if err := store.SaveRun(run); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.ListRuns(ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("ListRuns = %d runs, want 3", len(all))
	}
	// Most recent first
	if all[0].ID != "c" {
		t.Errorf("first run = %s, want c", all[0].ID)
	}

	tde, err := store.ListRuns(ListOptions{Root: "tde"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tde) != 2 {
		t.Errorf("tde runs = %d, want 2", len(tde))
	}

	limited, err := store.ListRuns(ListOptions{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limited runs = %d, want 1", len(limited))
	}

	if !all[2].Convergence.Valid || all[2].Convergence.Float64 != 0.83 {
		t.Errorf("convergence = %+v, want 0.83", all[2].Convergence)
	}
	if all[0].Convergence.Valid {
		t.Error("run without convergence should scan as null")
	}
}

func TestStore_SaveBatch(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	start := time.Now()
	if err := store.SaveBatch(start, start.Add(time.Hour), 4, 1); err != nil {
		t.Fatal(err)
	}
}
