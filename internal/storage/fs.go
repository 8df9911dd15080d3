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

// FS keeps one JSON file per key under root. Writes go to a temp file
// that is renamed into place, so readers never observe a partial bucket.
type FS struct {
	root string
}

func NewFS(root string) (*FS, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("fs store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create fs store root: %w", err)
	}
	return &FS{root: root}, nil
}

func (s *FS) Driver() string { return DriverFS }

// pathFor maps "history:u1" to <root>/history/u1.json.
func (s *FS) pathFor(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrInvalidKey
	}
	if strings.Contains(key, "..") || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ":") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	segments := strings.Split(key, ":")
	for _, seg := range segments {
		if seg == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return filepath.Join(append([]string{s.root}, segments...)...) + ".json", nil
}

func (s *FS) Get(_ context.Context, key string) (string, bool, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return "", false, fmt.Errorf("get: %w", err)
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read bucket %q: %w", key, err)
	}
	return string(b), true, nil
}

func (s *FS) Set(_ context.Context, key, value string) error {
	path, err := s.pathFor(key)
	if err != nil {
		return fmt.Errorf("set: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bucket directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp bucket: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp bucket: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp bucket: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp bucket: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move bucket into place: %w", err)
	}
	return nil
}

func (s *FS) Close() error { return nil }
