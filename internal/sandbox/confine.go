package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned by Confine when a path resolves outside the root.
var ErrOutsideRoot = errors.New("path resolves outside the sandbox root")

// Confine resolves path to its canonical form and reports whether it lies
// under root. Relative paths are taken relative to root. Symlinks are
// followed for the deepest existing ancestor, so a link inside the root
// pointing elsewhere is rejected even when the final file does not exist.
func Confine(root, path string) (string, error) {
	canonRoot, err := canonical(root)
	if err != nil {
		return "", fmt.Errorf("resolve sandbox root: %w", err)
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(canonRoot, path)
	}
	canonPath, err := canonical(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	rel, err := filepath.Rel(canonRoot, canonPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return canonPath, nil
}

// canonical cleans path and evaluates symlinks on the longest prefix that
// exists, re-appending the missing tail.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	existing := abs
	var tail []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		tail = append([]string{filepath.Base(existing)}, tail...)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{resolved}, tail...)...), nil
}
