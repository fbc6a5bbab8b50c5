// Package storage persists binary attachments pulled from chat messages.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MediaStore saves a blob and returns a stable URL or path for it.
type MediaStore interface {
	Save(name string, data []byte) (string, error)
}

// DirMediaStore writes media under a local directory, one file per blob.
type DirMediaStore struct {
	Dir string
}

func NewDirMediaStore(dir string) (*DirMediaStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &DirMediaStore{Dir: dir}, nil
}

// Save stores data under a timestamped file name so repeated uploads with
// the same message id never clobber each other.
func (s *DirMediaStore) Save(name string, data []byte) (string, error) {
	fileName := fmt.Sprintf("%d_%s", time.Now().UnixNano(), name)
	path := filepath.Join(s.Dir, fileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}
	return path, nil
}
