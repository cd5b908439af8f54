package vfs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// maxLinkDepth bounds link resolution so a link cycle fails instead of spinning.
const maxLinkDepth = 40

type memNode struct {
	kind     Kind
	data     []byte
	target   string
	children map[string]*memNode
}

func newMemDir() *memNode {
	return &memNode{kind: KindDir, children: make(map[string]*memNode)}
}

// MemStore is an in-memory Store. It is safe for concurrent use.
type MemStore struct {
	mu   sync.RWMutex
	root *memNode
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{root: newMemDir()}
}

// lookup resolves p. Links in intermediate segments are always followed; the
// final segment is followed only when followFinal is set.
func (m *MemStore) lookup(p string, followFinal bool, depth int) (*memNode, error) {
	if depth > maxLinkDepth {
		return nil, errors.New("too many levels of links")
	}
	cur := m.root
	segs := Split(p)
	for i, seg := range segs {
		if cur.kind == KindLink {
			next, err := m.lookup(cur.target, true, depth+1)
			if err != nil {
				return nil, err
			}
			cur = next
		}
		if cur.kind != KindDir {
			return nil, ErrNotDir
		}
		child, ok := cur.children[seg]
		if !ok {
			return nil, ErrNotFound
		}
		cur = child
		if i == len(segs)-1 && followFinal && cur.kind == KindLink {
			return m.lookup(cur.target, true, depth+1)
		}
	}
	return cur, nil
}

// mkdirAll creates every directory on p and returns the last one.
func (m *MemStore) mkdirAll(p string) (*memNode, error) {
	cur := m.root
	for _, seg := range Split(p) {
		child, ok := cur.children[seg]
		if !ok {
			child = newMemDir()
			cur.children[seg] = child
		}
		if child.kind == KindLink {
			resolved, err := m.lookup(child.target, true, 0)
			if err != nil {
				return nil, err
			}
			child = resolved
		}
		if child.kind != KindDir {
			return nil, ErrNotDir
		}
		cur = child
	}
	return cur, nil
}

func parentAndBase(c string) (string, string) {
	segs := Split(c)
	if len(segs) == 0 {
		return "", ""
	}
	return Join(segs[:len(segs)-1]...), segs[len(segs)-1]
}

func (m *MemStore) PathExists(p string) (bool, error) {
	c, err := Clean(p)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, err := m.lookup(c, true, 0); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotDir) {
			return false, nil
		}
		return false, pathErr("stat", p, ErrIO, err)
	}
	return true, nil
}

func (m *MemStore) DirCreate(p string) error {
	c, err := Clean(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.mkdirAll(c); err != nil {
		return pathErr("mkdir", p, ErrWrite, err)
	}
	return nil
}

func (m *MemStore) ChildrenList(p string) ([]Entry, error) {
	c, err := Clean(p)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	node, err := m.lookup(c, true, 0)
	if err != nil {
		return nil, pathErr("list", p, kindOf(err), nil)
	}
	if node.kind != KindDir {
		return nil, pathErr("list", p, ErrNotDir, nil)
	}
	entries := make([]Entry, 0, len(node.children))
	for name, child := range node.children {
		entries = append(entries, Entry{Name: name, Kind: child.kind})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (m *MemStore) ArtifactRead(p string) ([]byte, error) {
	c, err := Clean(p)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	node, err := m.lookup(c, true, 0)
	if err != nil {
		return nil, pathErr("read", p, kindOf(err), nil)
	}
	if node.kind != KindFile {
		return nil, pathErr("read", p, ErrIO, errors.New("is a directory"))
	}
	out := make([]byte, len(node.data))
	copy(out, node.data)
	return out, nil
}

func (m *MemStore) ArtifactWrite(p string, data []byte) error {
	c, err := Clean(p)
	if err != nil {
		return err
	}
	dir, base := parentAndBase(c)
	if base == "" {
		return pathErr("write", p, ErrWrite, errors.New("cannot write to store root"))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	parent, err := m.mkdirAll(dir)
	if err != nil {
		return pathErr("write", p, ErrWrite, err)
	}
	if existing, ok := parent.children[base]; ok && existing.kind == KindDir {
		return pathErr("write", p, ErrWrite, errors.New("is a directory"))
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	parent.children[base] = &memNode{kind: KindFile, data: buf}
	return nil
}

func (m *MemStore) LinkCreate(linkPath, targetPath string) error {
	lc, err := Clean(linkPath)
	if err != nil {
		return err
	}
	tc, err := Clean(targetPath)
	if err != nil {
		return err
	}
	dir, base := parentAndBase(lc)
	if base == "" {
		return pathErr("link", linkPath, ErrLink, errors.New("cannot replace store root"))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.lookup(tc, true, 0); err != nil {
		return pathErr("link", linkPath, ErrLink, fmt.Errorf("target %s: %w", targetPath, err))
	}
	parent, err := m.mkdirAll(dir)
	if err != nil {
		return pathErr("link", linkPath, ErrLink, err)
	}
	if existing, ok := parent.children[base]; ok && existing.kind != KindLink {
		return pathErr("link", linkPath, ErrLink, errors.New("a non-link entry already exists"))
	}
	parent.children[base] = &memNode{kind: KindLink, target: tc}
	return nil
}

func kindOf(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrNotDir):
		return ErrNotDir
	default:
		return ErrIO
	}
}
