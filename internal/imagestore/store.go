// Package imagestore keeps enrollment images on local disk for audit.
// Stored paths are referenced by face templates but never read back for
// matching.
package imagestore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store writes images under <base>/<studentID>/<uuid>.jpg.
type Store struct {
	base string
}

// New creates a store rooted at base.
func New(base string) *Store {
	return &Store{base: base}
}

// Save persists one image and returns its path.
func (s *Store) Save(studentID string, data []byte) (string, error) {
	dir := filepath.Join(s.base, studentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("imagestore: create dir: %w", err)
	}
	path := filepath.Join(dir, uuid.NewString()+".jpg")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("imagestore: write: %w", err)
	}
	return path, nil
}

// Remove deletes stored images, used to roll back an aborted enrollment.
func (s *Store) Remove(paths ...string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
