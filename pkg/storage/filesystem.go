package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a relative path escapes the storage root.
var ErrOutsideRoot = errors.New("path escapes storage root")

// LocalStorage keeps uploaded documents and generated certificates on disk under a root directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the root directory exists.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./storage"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Save writes data to relPath, replacing any existing file.
func (s *LocalStorage) Save(relPath string, data []byte) error {
	path, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare storage directory: %w", err)
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", relPath, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit %s: %w", relPath, err)
	}
	return nil
}

// SaveStream copies r into relPath and reports how many bytes were written.
func (s *LocalStorage) SaveStream(relPath string, r io.Reader) (int64, error) {
	path, err := s.resolve(relPath)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("prepare storage directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", relPath, err)
	}
	written, copyErr := io.Copy(file, r)
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if copyErr != nil {
			return 0, fmt.Errorf("write %s: %w", relPath, copyErr)
		}
		return 0, fmt.Errorf("close %s: %w", relPath, closeErr)
	}
	return written, nil
}

// Open returns a read-only handle. A missing file yields an error matching os.ErrNotExist.
func (s *LocalStorage) Open(relPath string) (*os.File, error) {
	path, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", relPath, err)
	}
	return file, nil
}

// Exists reports whether relPath is a regular file.
func (s *LocalStorage) Exists(relPath string) (bool, error) {
	path, err := s.resolve(relPath)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", relPath, err)
	}
	return info.Mode().IsRegular(), nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(relPath string) error {
	path, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", relPath, err)
	}
	return nil
}

// Root returns the storage root directory.
func (s *LocalStorage) Root() string {
	return s.baseDir
}

func (s *LocalStorage) resolve(relPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if relPath == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", relPath, ErrOutsideRoot)
	}
	return filepath.Join(s.baseDir, clean), nil
}
