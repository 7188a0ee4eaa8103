// Package discover finds simulation models to run. A model is any parameter
// file below the search directory, excluding the simulation's own output
// copies (*.out.pf) and the py_wind driver files it leaves behind.
package discover

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sirocco-rt/sirocco-orch/internal/domain"
)

// Models returns every model below dir, in natural (numeric-aware) order so
// that grid directories like run2, run10 list the way a human expects.
func Models(dir string) ([]domain.Model, error) {
	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, "**/*.pf", doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	var models []domain.Model
	for _, match := range matches {
		if strings.HasSuffix(match, ".out.pf") || strings.Contains(filepath.Base(match), "py_wind") {
			continue
		}
		m, err := domain.ParseModelPath(filepath.Join(dir, match))
		if err != nil {
			continue
		}
		models = append(models, m)
	}

	sort.Slice(models, func(i, j int) bool {
		return naturalLess(models[i].String(), models[j].String())
	})
	return models, nil
}

// FromPaths resolves explicit parameter-file paths into models, preserving
// the given order
func FromPaths(paths []string) ([]domain.Model, error) {
	models := make([]domain.Model, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return nil, err
		}
		m, err := domain.ParseModelPath(p)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

// naturalLess orders strings with embedded numbers compared numerically
func naturalLess(a, b string) bool {
	for len(a) > 0 && len(b) > 0 {
		ad, an := chunk(a)
		bd, bn := chunk(b)
		if an && bn {
			ai, _ := strconv.Atoi(ad)
			bi, _ := strconv.Atoi(bd)
			if ai != bi {
				return ai < bi
			}
		} else if ad != bd {
			return ad < bd
		}
		a = a[len(ad):]
		b = b[len(bd):]
	}
	return len(a) < len(b)
}

// chunk returns the leading run of digits or non-digits of s
func chunk(s string) (string, bool) {
	isDigit := s[0] >= '0' && s[0] <= '9'
	for i := 1; i < len(s); i++ {
		if (s[i] >= '0' && s[i] <= '9') != isDigit {
			return s[:i], isDigit
		}
	}
	return s, isDigit
}
