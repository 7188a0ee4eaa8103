// Package params edits simulation parameter files in place. A parameter file
// is a sequence of "key value" lines; this is a line-level editor, not a
// grammar: the first whitespace-delimited field is the key, everything after
// the key's trailing whitespace is the value.
package params

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// BackupSuffix is appended to a parameter file's name for its backup copy
const BackupSuffix = ".bak"

// ErrKeyNotFound is returned when a parameter key does not appear in the file
var ErrKeyNotFound = fmt.Errorf("parameter key not found")

// Get returns the value of a parameter key
func Get(path, key string) (string, error) {
	lines, err := readLines(path)
	if err != nil {
		return "", err
	}
	for _, line := range lines {
		if k, v, ok := splitLine(line); ok && k == key {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s in %s", ErrKeyNotFound, key, path)
}

// Set rewrites the value of a parameter key in place, preserving the original
// spacing between key and value. With backup set, a copy of the unmodified
// file is written to path + BackupSuffix first.
func Set(path, key, value string, backup bool) error {
	lines, err := readLines(path)
	if err != nil {
		return err
	}

	found := false
	for i, line := range lines {
		k, _, ok := splitLine(line)
		if !ok || k != key {
			continue
		}
		lead := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		rest := line[len(lead)+len(key):]
		gap := rest[:len(rest)-len(strings.TrimLeft(rest, " \t"))]
		if gap == "" {
			gap = " "
		}
		lines[i] = lead + key + gap + value
		found = true
		break
	}
	if !found {
		return fmt.Errorf("%w: %s in %s", ErrKeyNotFound, key, path)
	}

	if backup {
		if err := Backup(path); err != nil {
			return err
		}
	}

	return writeLines(path, lines)
}

// Backup copies the parameter file to path + BackupSuffix
func Backup(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path+BackupSuffix, data, 0644)
}

// Restore copies the backup taken by Backup back over the parameter file
func Restore(path string) error {
	data, err := os.ReadFile(path + BackupSuffix)
	if err != nil {
		return fmt.Errorf("reading backup: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// splitLine splits a parameter line into key and value. Blank lines and
// comment lines yield ok = false.
func splitLine(line string) (key, value string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "###") {
		return "", "", false
	}
	fields := strings.Fields(trimmed)
	if len(fields) < 2 {
		return "", "", false
	}
	return fields[0], strings.Join(fields[1:], " "), true
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func writeLines(path string, lines []string) error {
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}
