// Package coverage tabulates per-line hit counts for source files keyed by
// canonical path.
package coverage

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/shcov/pkg/safeconv"
)

// Sentinel errors.
var (
	ErrReadSource          = errors.New("cannot read source file")
	ErrSourceTooLarge      = errors.New("source file exceeds size limit")
	ErrLineOutOfRange      = errors.New("line number out of range")
	ErrFingerprintMismatch = errors.New("fingerprint mismatch")
	ErrInvalidFingerprint  = errors.New("invalid fingerprint")
	ErrUnknownFile         = errors.New("file not registered")
)

// FileReader loads the full content of a source file.
type FileReader func(path string) ([]byte, error)

// Option configures a Registry.
type Option func(*Registry)

// WithFileReader replaces os.ReadFile for registration reads.
func WithFileReader(read FileReader) Option {
	return func(r *Registry) {
		r.readFile = read
	}
}

// WithMaxFileSize rejects source files larger than limit bytes. Zero disables the check.
func WithMaxFileSize(limit uint64) Option {
	return func(r *Registry) {
		r.maxFileSize = limit
	}
}

// Registry maps canonical source paths to their hit records. A Registry
// belongs to a single run and is not safe for concurrent use.
type Registry struct {
	files       map[string]*FileRecord
	readFile    FileReader
	maxFileSize uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		files:    make(map[string]*FileRecord),
		readFile: os.ReadFile,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// LookupOrCreate returns the record for path, registering the file on first
// sight. Registration reads the file once to derive its fingerprint and line
// count; the content is not retained.
func (r *Registry) LookupOrCreate(path string) (*FileRecord, error) {
	if rec, ok := r.files[path]; ok {
		return rec, nil
	}

	data, err := r.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrReadSource, path, err)
	}

	if r.maxFileSize > 0 && safeconv.MustNonNegative(len(data)) > r.maxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrSourceTooLarge, path, len(data), r.maxFileSize)
	}

	rec := newFileRecord(path, FingerprintOf(data), CountLines(data))
	r.files[path] = rec

	return rec, nil
}

// RecordHit increments the counter of a 1-based line in path.
func (r *Registry) RecordHit(path string, line int) error {
	rec, err := r.LookupOrCreate(path)
	if err != nil {
		return err
	}

	return rec.hit(line)
}

// Lookup returns the record for path without registering it.
func (r *Registry) Lookup(path string) (*FileRecord, bool) {
	rec, ok := r.files[path]

	return rec, ok
}

// Get returns the record registered for path, or ErrUnknownFile.
func (r *Registry) Get(path string) (*FileRecord, error) {
	rec, ok := r.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFile, path)
	}

	return rec, nil
}

// Merge folds previously recorded counters into the registry. Unknown paths
// are adopted as-is. Known paths must carry the same fingerprint and line
// count; the counters are then added.
func (r *Registry) Merge(path string, fp Fingerprint, hits []uint64) error {
	rec, ok := r.files[path]
	if !ok {
		rec = newFileRecord(path, fp, len(hits))
		copy(rec.hits, hits)
		r.files[path] = rec

		return nil
	}

	if rec.fingerprint != fp {
		return fmt.Errorf("%w: %s: have %s, got %s", ErrFingerprintMismatch, path, rec.fingerprint, fp)
	}

	if len(rec.hits) != len(hits) {
		return fmt.Errorf("%w: %s: have %d lines, got %d", ErrFingerprintMismatch, path, len(rec.hits), len(hits))
	}

	for i, h := range hits {
		rec.hits[i] = safeconv.AddSaturating(rec.hits[i], h)
	}

	return nil
}

// Len returns the number of registered files.
func (r *Registry) Len() int {
	return len(r.files)
}

// Files returns all records ordered by path.
func (r *Registry) Files() []*FileRecord {
	out := make([]*FileRecord, 0, len(r.files))
	for _, rec := range r.files {
		out = append(out, rec)
	}

	slices.SortFunc(out, func(a, b *FileRecord) int {
		return strings.Compare(a.path, b.path)
	})

	return out
}
