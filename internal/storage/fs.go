package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-quiz/internal/fault"
)

type FSStore struct{ base string }

func NewFSStore(base string) (*FSStore, error) {
	if base == "" {
		base = "./data"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{base: base}, nil
}

func (s *FSStore) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", errors.Errorf("bad key %q", key)
	}
	return filepath.Join(s.base, clean), nil
}

func (s *FSStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	dst, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fault.Dependency(err, "mkdir")
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", fault.Dependency(err, "create blob")
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		return "", fault.Dependency(err, "write blob")
	}
	if err := f.Close(); err != nil {
		return "", fault.Dependency(err, "close blob")
	}
	return key, nil
}

func (s *FSStore) Get(_ context.Context, ref string) (io.ReadCloser, error) {
	p, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fault.Dependency(err, "open blob")
	}
	return f, nil
}
