// Package storage keeps enrolled reference photos on the local filesystem.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// PhotoStore writes and serves identity reference photos. Filenames are
// generated, never taken from user input.
type PhotoStore struct {
	dir string
}

// NewPhotoStore creates the store and its directory if missing.
func NewPhotoStore(dir string) (*PhotoStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("photo directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating photo directory: %w", err)
	}
	return &PhotoStore{dir: dir}, nil
}

// Save writes photo bytes under a fresh UUID filename and returns the
// relative path to store with the identity.
func (s *PhotoStore) Save(data []byte) (string, error) {
	name := uuid.NewString() + ".jpg"
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing photo: %w", err)
	}
	return name, nil
}

// Read returns the photo bytes for a stored path.
func (s *PhotoStore) Read(name string) ([]byte, error) {
	// Reject anything that escapes the photo directory.
	if filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid photo name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("reading photo: %w", err)
	}
	return data, nil
}

// Remove deletes a stored photo. Missing files are not an error.
func (s *PhotoStore) Remove(name string) error {
	if name == "" {
		return nil
	}
	if filepath.Base(name) != name {
		return fmt.Errorf("invalid photo name %q", name)
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing photo: %w", err)
	}
	return nil
}
