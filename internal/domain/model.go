package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Model is one instance of the simulation, identified by the root name of its
// parameter file and the directory it runs in.
type Model struct {
	Root    string
	Workdir string
}

// ParameterFile returns the path to the model's parameter file
func (m Model) ParameterFile() string {
	return filepath.Join(m.Workdir, m.Root+".pf")
}

// LogFile returns the path to the model's run log
func (m Model) LogFile() string {
	return filepath.Join(m.Workdir, m.Root+".log.txt")
}

// WindSaveFile returns the path to the saved simulation state, whose presence
// marks a prior run that can be resumed
func (m Model) WindSaveFile() string {
	return filepath.Join(m.Workdir, m.Root+".wind_save")
}

// DiagDir returns the directory where the simulation writes its per-process
// diagnostic files
func (m Model) DiagDir() string {
	return filepath.Join(m.Workdir, "diag_"+m.Root)
}

func (m Model) String() string {
	return filepath.Join(m.Workdir, m.Root)
}

// ParseModelPath splits the path to a parameter file into a Model. The root is
// the file name without its extension; the workdir is the containing directory.
func ParseModelPath(fp string) (Model, error) {
	base := filepath.Base(fp)
	ext := filepath.Ext(base)
	if ext != ".pf" {
		return Model{}, fmt.Errorf("not a parameter file: %s", fp)
	}
	root := strings.TrimSuffix(base, ext)
	dir := filepath.Dir(fp)
	return Model{Root: root, Workdir: dir}, nil
}
