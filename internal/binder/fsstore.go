package binder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FSStore stores artifacts as files under a single directory.
type FSStore struct {
	dir string
}

// NewFSStore creates an FSStore rooted at dir, creating it if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

// Save implements ArtifactStore.
func (s *FSStore) Save(name string, data []byte) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// Open implements ArtifactStore.
func (s *FSStore) Open(name string) ([]byte, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// path rejects names that would escape the artifact directory.
func (s *FSStore) path(name string) (string, error) {
	clean := filepath.Base(strings.ReplaceAll(name, "/", "-"))
	if clean == "." || clean == ".." || clean == "" {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(s.dir, clean), nil
}
