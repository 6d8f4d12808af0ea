package store

import (
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"parkwatch/internal/domain"
)

// Load reads positions previously written by Save. A missing file is not an
// error and loads nothing.
func (s *Store) Load(path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close()

	var positions []domain.Position
	if err := gob.NewDecoder(zr).Decode(&positions); err != nil {
		return 0, fmt.Errorf("decode positions: %w", err)
	}

	return s.Add(positions), nil
}

// Save writes all positions to path atomically.
func (s *Store) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	zw, err := gzip.NewWriterLevel(f, gzip.BestSpeed)
	if err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	encErr := gob.NewEncoder(zw).Encode(s.All())
	closeErr := zw.Close()
	fileCloseErr := f.Close()
	if err := errors.Join(encErr, closeErr, fileCloseErr); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
