package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects as files below a root directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

var _ ObjectStore = (*LocalStore)(nil)

// Put implements ObjectStore.Put.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	path, err := s.resolve(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	return path, nil
}

// Get implements ObjectStore.Get.
func (s *LocalStore) Get(ctx context.Context, location string) ([]byte, error) {
	path, err := s.resolve(location)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// Delete implements ObjectStore.Delete.
func (s *LocalStore) Delete(ctx context.Context, location string) error {
	path, err := s.resolve(location)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// resolve cleans location and rejects anything outside the root.
func (s *LocalStore) resolve(location string) (string, error) {
	path := filepath.Clean(location)
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidLocation, location)
	}
	return path, nil
}
