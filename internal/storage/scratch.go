package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type ScratchStore struct {
	basePath string
}

func NewScratchStore(basePath string) (*ScratchStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return &ScratchStore{basePath: basePath}, nil
}

func (s *ScratchStore) Dir() string {
	return s.basePath
}

// Acquire writes data to a new file. The caller must Release it.
func (s *ScratchStore) Acquire(data []byte, filename string) (*TempFile, error) {
	fullPath := filepath.Join(s.basePath, fmt.Sprintf("scratch-%s%s", uuid.New().String(), Ext(filename)))

	dst, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch file: %w", err)
	}

	if _, err := dst.Write(data); err != nil {
		dst.Close()
		os.Remove(fullPath)
		return nil, fmt.Errorf("failed to write scratch file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(fullPath)
		return nil, fmt.Errorf("failed to close scratch file: %w", err)
	}

	return &TempFile{path: fullPath}, nil
}

// With runs fn against a scratch copy of data and removes the copy
// afterwards, whatever fn returns.
func (s *ScratchStore) With(data []byte, filename string, fn func(path string) error) (err error) {
	tf, err := s.Acquire(data, filename)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := tf.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn(tf.Path())
}

// Ext picks the scratch file extension from the upload name.
func Ext(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".jpg", ".jpeg", ".png":
		return ext
	default:
		return ".jpg"
	}
}

type TempFile struct {
	path string
	once sync.Once
	err  error
}

func (t *TempFile) Path() string {
	return t.path
}

// Release removes the file. Safe to call more than once.
func (t *TempFile) Release() error {
	t.once.Do(func() {
		if err := os.Remove(t.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.err = fmt.Errorf("failed to remove scratch file: %w", err)
		}
	})
	return t.err
}
