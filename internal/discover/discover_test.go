package discover

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("Wind.mdot(msol/yr) 1e-9\n"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestModels(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "cv_std.pf"))
	touch(t, filepath.Join(dir, "grid", "run10", "tde.pf"))
	touch(t, filepath.Join(dir, "grid", "run2", "tde.pf"))
	touch(t, filepath.Join(dir, "cv_std.out.pf"))
	touch(t, filepath.Join(dir, "py_wind.pf"))

	models, err := Models(dir)
	if err != nil {
		t.Fatal(err)
	}

	if len(models) != 3 {
		t.Fatalf("found %d models, want 3: %v", len(models), models)
	}

	// Output copies and py_wind files are excluded
	for _, m := range models {
		if m.Root == "cv_std.out" || m.Root == "py_wind" {
			t.Errorf("excluded file discovered as model: %s", m)
		}
	}

	// Natural sort: run2 before run10
	var order []string
	for _, m := range models {
		order = append(order, m.Workdir)
	}
	run2 := indexOf(order, filepath.Join(dir, "grid", "run2"))
	run10 := indexOf(order, filepath.Join(dir, "grid", "run10"))
	if run2 < 0 || run10 < 0 || run2 > run10 {
		t.Errorf("natural order wrong: %v", order)
	}
}

func TestFromPaths(t *testing.T) {
	dir := t.TempDir()
	pf := filepath.Join(dir, "cv_std.pf")
	touch(t, pf)

	models, err := FromPaths([]string{pf})
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 1 || models[0].Root != "cv_std" {
		t.Errorf("models = %v", models)
	}

	if _, err := FromPaths([]string{filepath.Join(dir, "missing.pf")}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFromManifest(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "models", "tde.pf"))
	touch(t, filepath.Join(dir, "models", "cv.pf"))

	manifest := `models:
  - path: models/tde.pf
    cores: 8
    flags: ["-p", "2"]
  - path: models/cv.pf
`
	mf := filepath.Join(dir, "grid.yaml")
	if err := os.WriteFile(mf, []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := FromManifest(mf)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Model.Root != "tde" || entries[0].Cores != 8 || len(entries[0].Flags) != 2 {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Model.Root != "cv" || entries[1].Cores != 0 {
		t.Errorf("entry 1 = %+v", entries[1])
	}
}

func TestFromManifestEmpty(t *testing.T) {
	mf := filepath.Join(t.TempDir(), "grid.yaml")
	if err := os.WriteFile(mf, []byte("models: []\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := FromManifest(mf); err == nil {
		t.Error("expected error for empty manifest")
	}
}

func indexOf(ss []string, want string) int {
	for i, s := range ss {
		if s == want {
			return i
		}
	}
	return -1
}
