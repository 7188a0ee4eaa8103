package classify

import (
	"strings"
	"testing"
	"time"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 15, 4, 0, 0, time.UTC)
}

func newTest(cores int, v Verbosity) *Classifier {
	c := New(cores, v)
	c.Now = fixedClock
	return c
}

var sampleOutput = []string{
	"Reading atomic data from data/standard80.dat",
	"!!sirocco: Beginning cycle 0 of 5 for defining wind",
	"!!sirocco: photon transport cycle progress 10.0 per cent 100000 photons",
	"!!sirocco: photon transport completed in 3600.0 seconds",
	"!!sirocco: 4312 cells converged and 123 cells converging",
	"!!sirocco: Completed ionization cycle 3 of 5 in 7325.0 seconds total",
	"!!sirocco: Beginning cycle 0 of 3 to calculate a detailed spectrum",
	"!!sirocco: Completed spectrum cycle 1 of 3 in 9000.0 seconds total",
	"Convergence statistics for cycle 5:",
	"!!sirocco: Completed entire program in 12345.0 seconds",
}

func TestTransportProgressScalesByCores(t *testing.T) {
	c := newTest(4, ExtraTransport)
	emit, keepGoing := c.Classify("!!sirocco: photon transport cycle progress 10.0 per cent 100000 photons")
	if !keepGoing {
		t.Error("progress line should not stop consumption")
	}
	if len(emit) != 1 {
		t.Fatalf("emit count = %d, want 1", len(emit))
	}
	want := "  10% of 400,000 photons transported"
	if emit[0] != want {
		t.Errorf("emit = %q, want %q", emit[0], want)
	}
}

func TestMalformedFieldsFallBackToRawText(t *testing.T) {
	c := newTest(2, ExtraTransport)

	emit, _ := c.Classify("!!sirocco: photon transport cycle progress ??? per cent banana photons")
	if len(emit) != 1 {
		t.Fatalf("emit count = %d, want 1", len(emit))
	}
	if !strings.Contains(emit[0], "???") || !strings.Contains(emit[0], "banana") {
		t.Errorf("malformed fields should be forwarded raw, got %q", emit[0])
	}

	emit, _ = c.Classify("!!sirocco: photon transport completed in soon seconds")
	if len(emit) != 1 || !strings.Contains(emit[0], "soon") {
		t.Errorf("malformed duration should be forwarded raw, got %v", emit)
	}
}

func TestDurationRendering(t *testing.T) {
	c := newTest(1, Extra)
	emit, _ := c.Classify("!!sirocco: photon transport completed in 3661.0 seconds")
	if len(emit) != 1 {
		t.Fatalf("emit count = %d, want 1", len(emit))
	}
	want := "Photon transport completed in: 1:01:01"
	if emit[0] != want {
		t.Errorf("emit = %q, want %q", emit[0], want)
	}
}

func TestCycleStartSummary(t *testing.T) {
	c := newTest(1, Progress)
	emit, _ := c.Classify("!!sirocco: Beginning cycle 2 of 5 for defining wind")
	if len(emit) != 1 {
		t.Fatalf("emit count = %d, want 1", len(emit))
	}
	want := "15:04  Starting ionisation cycle 3/5"
	if emit[0] != want {
		t.Errorf("emit = %q, want %q", emit[0], want)
	}

	emit, _ = c.Classify("!!sirocco: Beginning cycle 0 of 3 to calculate a detailed spectrum")
	if len(emit) != 1 || emit[0] != "15:04  Starting spectrum cycle 1/3" {
		t.Errorf("spectrum cycle start = %v", emit)
	}
}

func TestTerminationMarkerOnly(t *testing.T) {
	c := newTest(1, Progress)
	for _, line := range sampleOutput {
		_, keepGoing := c.Classify(line)
		isMarker := strings.Contains(line, ConvergenceStatsMarker)
		if keepGoing == isMarker {
			t.Errorf("line %q: keepGoing = %v, marker = %v", line, keepGoing, isMarker)
		}
	}
}

func TestTerminationMarkerAtAllVerbosities(t *testing.T) {
	for v := Silent; v <= All; v++ {
		c := newTest(1, v)
		_, keepGoing := c.Classify("Convergence statistics for cycle 3:")
		if keepGoing {
			t.Errorf("verbosity %s: marker line should stop consumption", v)
		}
	}
}

func TestVerbosityMonotonic(t *testing.T) {
	// Each level must emit at least as many lines as the level below it.
	counts := make(map[Verbosity]int)
	for v := Silent; v <= All; v++ {
		c := newTest(1, v)
		for _, line := range sampleOutput {
			emit, _ := c.Classify(line)
			counts[v] += len(emit)
		}
	}
	for v := Progress; v <= All; v++ {
		if counts[v] < counts[v-1] {
			t.Errorf("verbosity %s emits %d lines, fewer than %s's %d", v, counts[v], v-1, counts[v-1])
		}
	}
	if counts[Silent] != 0 {
		t.Errorf("silent emitted %d lines, want 0", counts[Silent])
	}
}

func TestAllEchoesVerbatim(t *testing.T) {
	c := newTest(8, All)
	for _, line := range sampleOutput {
		emit, _ := c.Classify(line)
		if len(emit) != 1 || emit[0] != line {
			t.Errorf("verbosity all should echo %q unmodified, got %v", line, emit)
		}
	}
}

func TestConvergedCellsForwardedIndented(t *testing.T) {
	c := newTest(1, Progress)
	emit, _ := c.Classify("!!sirocco: 4312 cells converged and 123 cells converging")
	if len(emit) != 1 {
		t.Fatalf("emit count = %d, want 1", len(emit))
	}
	if !strings.HasPrefix(emit[0], "    ") {
		t.Errorf("converged line should be indented, got %q", emit[0])
	}
	if !strings.Contains(emit[0], "4312 cells converged") {
		t.Errorf("converged line should be forwarded verbatim, got %q", emit[0])
	}
}

func TestParseVerbosity(t *testing.T) {
	tests := []struct {
		in      string
		want    Verbosity
		wantErr bool
	}{
		{"silent", Silent, false},
		{"progress", Progress, false},
		{"", Progress, false},
		{"extra", Extra, false},
		{"transport", ExtraTransport, false},
		{"all", All, false},
		{"shout", Progress, true},
	}
	for _, tt := range tests {
		got, err := ParseVerbosity(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseVerbosity(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseVerbosity(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
