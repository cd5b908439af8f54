package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// OSStore is a Store rooted at a directory on the local filesystem. Links are
// relative symlinks, so a session tree stays valid when moved or archived.
type OSStore struct {
	root string
}

// NewOSStore returns a store rooted at dir, creating it if needed.
func NewOSStore(dir string) (*OSStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving store root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, pathErr("mkdir", dir, ErrWrite, err)
	}
	return &OSStore{root: abs}, nil
}

// Root returns the absolute directory backing the store.
func (s *OSStore) Root() string { return s.root }

// Abs returns the absolute filesystem path of store path p.
func (s *OSStore) Abs(p string) (string, error) {
	c, err := Clean(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(c)), nil
}

func (s *OSStore) PathExists(p string) (bool, error) {
	full, err := s.Abs(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist), isNotDir(err):
		return false, nil
	default:
		return false, pathErr("stat", p, classify(err, ErrIO), err)
	}
}

func (s *OSStore) DirCreate(p string) error {
	full, err := s.Abs(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return pathErr("mkdir", p, ErrWrite, err)
	}
	return nil
}

func (s *OSStore) ChildrenList(p string) ([]Entry, error) {
	full, err := s.Abs(p)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(full)
	if err != nil {
		return nil, pathErr("list", p, classify(err, ErrIO), err)
	}
	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		kind := KindFile
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			kind = KindLink
		case d.IsDir():
			kind = KindDir
		}
		entries = append(entries, Entry{Name: d.Name(), Kind: kind})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *OSStore) ArtifactRead(p string) ([]byte, error) {
	full, err := s.Abs(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, pathErr("read", p, classify(err, ErrIO), err)
	}
	return data, nil
}

// ArtifactWrite writes through a temp file and rename so readers never see a
// partial artifact.
func (s *OSStore) ArtifactWrite(p string, data []byte) error {
	full, err := s.Abs(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return pathErr("write", p, ErrWrite, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), "."+filepath.Base(full)+".*.tmp")
	if err != nil {
		return pathErr("write", p, ErrWrite, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return pathErr("write", p, ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return pathErr("write", p, ErrWrite, err)
	}
	if err := os.Rename(tmpPath, full); err != nil {
		os.Remove(tmpPath) // Best effort cleanup
		return pathErr("write", p, ErrWrite, err)
	}
	return nil
}

func (s *OSStore) LinkCreate(linkPath, targetPath string) error {
	linkFull, err := s.Abs(linkPath)
	if err != nil {
		return err
	}
	targetFull, err := s.Abs(targetPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(targetFull); err != nil {
		return pathErr("link", linkPath, ErrLink, fmt.Errorf("target %s: %w", targetPath, err))
	}

	if info, err := os.Lstat(linkFull); err == nil {
		if info.Mode()&fs.ModeSymlink == 0 {
			return pathErr("link", linkPath, ErrLink, errors.New("a non-link entry already exists"))
		}
		if err := os.Remove(linkFull); err != nil {
			return pathErr("link", linkPath, ErrLink, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(linkFull), 0o755); err != nil {
		return pathErr("link", linkPath, ErrLink, err)
	}
	rel, err := filepath.Rel(filepath.Dir(linkFull), targetFull)
	if err != nil {
		return pathErr("link", linkPath, ErrLink, err)
	}
	if err := os.Symlink(rel, linkFull); err != nil {
		return pathErr("link", linkPath, ErrLink, err)
	}
	return nil
}

// classify maps an OS error to a store error kind, or fallback.
func classify(err, fallback error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case isNotDir(err):
		return ErrNotDir
	default:
		return fallback
	}
}
