// Package security guards file names and paths derived from recorded data
// or request input.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrPathEscapes is returned when a path resolves outside its directory.
var ErrPathEscapes = errors.New("path escapes directory")

const maxFilenameLen = 128

var unsafeRun = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename makes a safe file name from an arbitrary label such as a
// site name. Runs of other characters become one underscore; the result is
// capped and never empty.
func SanitizeFilename(s string) string {
	out := unsafeRun.ReplaceAllString(s, "_")
	if len(out) > maxFilenameLen {
		out = out[:maxFilenameLen]
	}
	out = strings.Trim(out, "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// WithinDirectory checks that path stays inside dir once both are made
// absolute and symlinks are resolved. Neither needs to exist yet.
func WithinDirectory(path, dir string) error {
	canonDir, err := canonical(dir)
	if err != nil {
		return err
	}
	canonPath, err := canonical(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(canonDir, canonPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s is outside %s", ErrPathEscapes, path, dir)
	}
	return nil
}

// canonical resolves symlinks in the longest existing prefix of p, so a
// not-yet-created file under a symlinked directory is still caught.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	rest := ""
	for {
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return filepath.Join(abs, rest), nil
		}
		rest = filepath.Join(filepath.Base(abs), rest)
		abs = parent
	}
}
