package vfs

// subStore scopes every path of an underlying store below a prefix.
type subStore struct {
	base   Store
	prefix string
}

// Sub returns a Store whose root is prefix inside base. Link targets are
// scoped the same way, so links created through the sub store stay inside it.
func Sub(base Store, prefix string) (Store, error) {
	c, err := Clean(prefix)
	if err != nil {
		return nil, err
	}
	if c == "" {
		return base, nil
	}
	return &subStore{base: base, prefix: c}, nil
}

func (s *subStore) full(p string) (string, error) {
	c, err := Clean(p)
	if err != nil {
		return "", err
	}
	return Join(s.prefix, c), nil
}

func (s *subStore) PathExists(p string) (bool, error) {
	f, err := s.full(p)
	if err != nil {
		return false, err
	}
	return s.base.PathExists(f)
}

func (s *subStore) DirCreate(p string) error {
	f, err := s.full(p)
	if err != nil {
		return err
	}
	return s.base.DirCreate(f)
}

func (s *subStore) ChildrenList(p string) ([]Entry, error) {
	f, err := s.full(p)
	if err != nil {
		return nil, err
	}
	return s.base.ChildrenList(f)
}

func (s *subStore) ArtifactRead(p string) ([]byte, error) {
	f, err := s.full(p)
	if err != nil {
		return nil, err
	}
	return s.base.ArtifactRead(f)
}

func (s *subStore) ArtifactWrite(p string, data []byte) error {
	f, err := s.full(p)
	if err != nil {
		return err
	}
	return s.base.ArtifactWrite(f, data)
}

func (s *subStore) LinkCreate(linkPath, targetPath string) error {
	lf, err := s.full(linkPath)
	if err != nil {
		return err
	}
	tf, err := s.full(targetPath)
	if err != nil {
		return err
	}
	return s.base.LinkCreate(lf, tf)
}
