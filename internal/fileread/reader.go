// Package fileread backs the read-file endpoint.
//
// By default a Reader opens whatever path the caller names; it is not gated
// by the sandbox guard. Enable Confine to restrict reads to the sandbox root.
package fileread

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/ppiankov/taskgate/internal/sandbox"
)

var (
	// ErrNotFound means the path does not exist or is not a regular file.
	ErrNotFound = errors.New("file not found")
	// ErrOutsideSandbox means confinement is on and the path escapes the root.
	ErrOutsideSandbox = errors.New("path is outside the sandbox")
	// ErrNotText means the file is not valid UTF-8.
	ErrNotText = errors.New("file is not valid UTF-8 text")
)

// Reader returns file contents as text.
type Reader struct {
	root    string
	confine bool
}

// New creates a Reader. When confine is true every path is resolved
// canonically and must lie under root.
func New(root string, confine bool) *Reader {
	return &Reader{root: root, confine: confine}
}

// Confined reports whether reads are restricted to the sandbox root.
func (r *Reader) Confined() bool {
	return r.confine
}

// Read returns the full contents of the file at path.
func (r *Reader) Read(path string) (string, error) {
	if r.confine {
		resolved, err := sandbox.Confine(r.root, path)
		if err != nil {
			if errors.Is(err, sandbox.ErrOutsideRoot) {
				return "", fmt.Errorf("%w: %s", ErrOutsideSandbox, path)
			}
			return "", err
		}
		path = resolved
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", ErrNotFound
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s: %w", path, ErrNotText)
	}
	return string(data), nil
}
