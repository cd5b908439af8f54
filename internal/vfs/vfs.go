// Package vfs defines the hierarchical store primitive artifacts are written
// to, with a real filesystem implementation and an in-memory one.
//
// Paths are slash-separated and relative to the store root. The empty path
// and "." name the root itself. Paths may not escape the root.
package vfs

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Error kinds. Every store error is a *PathError whose Err matches exactly one
// of these under errors.Is, so callers can tell "nothing there yet" apart from
// "storage is broken".
var (
	ErrNotFound = errors.New("path not found")
	ErrNotDir   = errors.New("not a directory")
	ErrWrite    = errors.New("write failed")
	ErrLink     = errors.New("link failed")
	ErrInvalid  = errors.New("invalid path")
	ErrIO       = errors.New("storage I/O failed")
)

// PathError records a failed store operation.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *PathError) Unwrap() error { return e.Err }

func pathErr(op, p string, kind, cause error) error {
	if cause == nil {
		return &PathError{Op: op, Path: p, Err: kind}
	}
	return &PathError{Op: op, Path: p, Err: fmt.Errorf("%w: %w", kind, cause)}
}

// Kind classifies a directory entry.
type Kind int

const (
	KindFile Kind = iota
	KindDir
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindLink:
		return "link"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Entry is one child of a directory.
type Entry struct {
	Name string
	Kind Kind
}

// Store is the hierarchical key-value tree the artifact layer is built on.
// Reads follow links; ChildrenList reports links as KindLink without
// following them.
type Store interface {
	// PathExists reports whether p exists, following links.
	PathExists(p string) (bool, error)
	// DirCreate creates p and any missing parents. Existing directories are fine.
	DirCreate(p string) error
	// ChildrenList lists the entries of directory p sorted by name.
	ChildrenList(p string) ([]Entry, error)
	// ArtifactRead returns the content of file p.
	ArtifactRead(p string) ([]byte, error)
	// ArtifactWrite replaces the content of file p, creating parent directories.
	ArtifactWrite(p string, data []byte) error
	// LinkCreate makes linkPath a read-through reference to targetPath. An
	// existing link at linkPath is replaced; any other existing entry fails
	// with ErrLink.
	LinkCreate(linkPath, targetPath string) error
}

// Clean normalizes p to the store's canonical relative form. It returns
// ErrInvalid for paths that leave the root.
func Clean(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", pathErr("clean", p, ErrInvalid, errors.New("path escapes store root"))
		}
	}
	return strings.TrimPrefix(path.Clean("/"+p), "/"), nil
}

// Join joins path segments with slashes, ignoring empty ones.
func Join(elem ...string) string {
	parts := make([]string, 0, len(elem))
	for _, e := range elem {
		if e != "" && e != "." {
			parts = append(parts, e)
		}
	}
	return path.Join(parts...)
}

// Split returns the non-empty segments of p.
func Split(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" && seg != "." {
			out = append(out, seg)
		}
	}
	return out
}

// IsNotFound reports whether err is a missing-path error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
