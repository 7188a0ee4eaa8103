package params

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const samplePF = `### Parameters for a CV model
Wind.type(SV,star,hydro)            SV
Wind.mdot(msol/yr)                  1e-9
Photons_per_cycle                   100000
Ionization_cycles                   20
Spectrum_cycles                     10
Central_object.mass(msol)           0.8
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cv_std.pf")
	if err := os.WriteFile(path, []byte(samplePF), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGet(t *testing.T) {
	path := writeSample(t)

	v, err := Get(path, "Spectrum_cycles")
	if err != nil {
		t.Fatal(err)
	}
	if v != "10" {
		t.Errorf("Get = %q, want 10", v)
	}

	_, err = Get(path, "Disk.radmax(cm)")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("missing key error = %v, want ErrKeyNotFound", err)
	}
}

func TestSetPreservesSpacing(t *testing.T) {
	path := writeSample(t)

	if err := Set(path, "Spectrum_cycles", "0", false); err != nil {
		t.Fatal(err)
	}

	v, err := Get(path, "Spectrum_cycles")
	if err != nil {
		t.Fatal(err)
	}
	if v != "0" {
		t.Errorf("after Set, value = %q, want 0", v)
	}

	data, _ := os.ReadFile(path)
	want := "Spectrum_cycles                     0"
	if !containsLine(string(data), want) {
		t.Errorf("spacing not preserved, file:\n%s", data)
	}
}

func TestSetWithBackupAndRestore(t *testing.T) {
	path := writeSample(t)
	original, _ := os.ReadFile(path)

	if err := Set(path, "Spectrum_cycles", "0", true); err != nil {
		t.Fatal(err)
	}
	if err := Set(path, "Photons_per_cycle", "1e6", false); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path + BackupSuffix); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}

	if err := Restore(path); err != nil {
		t.Fatal(err)
	}

	restored, _ := os.ReadFile(path)
	if string(restored) != string(original) {
		t.Errorf("restore should return the file to its original bytes\ngot:\n%s\nwant:\n%s", restored, original)
	}
}

func TestRestoreWithoutBackup(t *testing.T) {
	path := writeSample(t)
	if err := Restore(path); err == nil {
		t.Error("Restore without a backup should fail")
	}
}

func TestSetMissingKey(t *testing.T) {
	path := writeSample(t)
	err := Set(path, "Nonexistent_key", "1", false)
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("error = %v, want ErrKeyNotFound", err)
	}
}

func containsLine(content, line string) bool {
	for _, l := range splitLines(content) {
		if l == line {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
