package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const dirPerm = 0o755

// SaveFile encodes state into path, creating parent directories. The bytes
// go to a temporary sibling that is renamed over path, so a reader sees
// either the old file or the new one.
func SaveFile(path string, codec Codec, state any) error {
	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, dirPerm)
	if err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after the rename

	err = errors.Join(codec.Encode(tmp, state), tmp.Close())
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}

	return nil
}

// LoadFile decodes path into state, which must be a pointer.
func LoadFile(path string, codec Codec, state any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	err = codec.Decode(file, state)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	return nil
}

// Store reads and writes a single state file of type T named
// basename+extension inside a directory.
type Store[T any] struct {
	path  string
	codec Codec
}

// NewStore returns the store for dir/basename with the codec's extension.
func NewStore[T any](dir, basename string, codec Codec) *Store[T] {
	return &Store[T]{
		path:  filepath.Join(dir, basename+codec.Extension()),
		codec: codec,
	}
}

// Path returns the file the store reads and writes.
func (s *Store[T]) Path() string {
	return s.path
}

// Exists reports whether the file is present.
func (s *Store[T]) Exists() (bool, error) {
	_, err := os.Stat(s.path)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", s.path, err)
	}
}

// Load decodes the file. A missing file is reported as ok == false with a
// nil error.
func (s *Store[T]) Load() (state *T, ok bool, err error) {
	exists, err := s.Exists()
	if err != nil || !exists {
		return nil, false, err
	}

	state = new(T)

	err = LoadFile(s.path, s.codec, state)
	if err != nil {
		return nil, false, err
	}

	return state, true, nil
}

// Save atomically replaces the file with state.
func (s *Store[T]) Save(state *T) error {
	return SaveFile(s.path, s.codec, state)
}
