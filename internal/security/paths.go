// Package security guards the files the harness writes on behalf of a user.
package security

import (
	"path/filepath"
	"strings"

	"github.com/banshee-data/interactive.eval/internal/fault"
)

// canonical returns the absolute form of p with symlinks resolved for the
// longest prefix of p that exists.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", err
	}
	rest := ""
	for dir := abs; ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(dir), rest)
	}
}

// Within reports an error unless path resolves inside dir. Symlinks in either
// path are followed as far as they exist.
func Within(path, dir string) error {
	p, err := canonical(path)
	if err != nil {
		return fault.Errorf(fault.ErrInvalidInput, "resolve %s: %v", path, err)
	}
	d, err := canonical(dir)
	if err != nil {
		return fault.Errorf(fault.ErrInvalidInput, "resolve %s: %v", dir, err)
	}
	rel, err := filepath.Rel(d, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fault.Errorf(fault.ErrInvalidInput, "path traversal detected: %s escapes %s", path, dir)
	}
	return nil
}

// ReportPath joins a report file name onto dir. The name is sanitised and
// the result must stay inside dir.
func ReportPath(dir, name string) (string, error) {
	if dir == "" {
		return "", fault.Errorf(fault.ErrSetup, "report directory not specified")
	}
	p := filepath.Join(dir, SanitizeFilename(name))
	if err := Within(p, dir); err != nil {
		return "", err
	}
	return p, nil
}

// SanitizeFilename maps characters outside [A-Za-z0-9._-] to a single
// underscore, trims leading dots and underscores and caps the length at 128.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	under := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			under = false
		case !under:
			b.WriteByte('_')
			under = true
		}
	}
	if out := strings.Trim(b.String(), "._"); out != "" {
		return out
	}
	return "unknown"
}
