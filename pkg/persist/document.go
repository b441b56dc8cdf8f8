package persist

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/shcov/pkg/coverage"
)

// DocumentVersion is the current coverage document layout version.
const DocumentVersion = 1

// Sentinel errors.
var (
	// ErrCorruptDocument indicates an entry whose fields disagree with each other.
	ErrCorruptDocument = errors.New("corrupt coverage document")
	// ErrUnsupportedVersion indicates a document written by an incompatible layout.
	ErrUnsupportedVersion = errors.New("unsupported coverage document version")
)

// Document is the persisted form of a coverage registry.
type Document struct {
	Version int         `json:"version" yaml:"version" msgpack:"version"`
	Tool    string      `json:"tool"    yaml:"tool"    msgpack:"tool"`
	Files   []FileEntry `json:"files"   yaml:"files"   msgpack:"files"`
}

// FileEntry is the persisted form of one file record.
type FileEntry struct {
	Path        string   `json:"path"        yaml:"path"        msgpack:"path"`
	Fingerprint string   `json:"fingerprint" yaml:"fingerprint" msgpack:"fingerprint"`
	Lines       int      `json:"lines"       yaml:"lines"       msgpack:"lines"`
	Hits        []uint64 `json:"hits"        yaml:"hits,flow"   msgpack:"hits"`
}

// MergeMode controls how MergeInto treats entries that no longer match the registry.
type MergeMode int

const (
	// MergeStrict fails on the first fingerprint mismatch.
	MergeStrict MergeMode = iota
	// MergeSkipStale drops mismatching entries and reports their paths.
	MergeSkipStale
)

// FromRegistry snapshots every record of reg, ordered by path.
func FromRegistry(reg *coverage.Registry, tool string) *Document {
	records := reg.Files()

	doc := &Document{
		Version: DocumentVersion,
		Tool:    tool,
		Files:   make([]FileEntry, 0, len(records)),
	}

	for _, rec := range records {
		doc.Files = append(doc.Files, FileEntry{
			Path:        rec.Path(),
			Fingerprint: rec.Fingerprint().String(),
			Lines:       rec.LineCount(),
			Hits:        rec.Hits(),
		})
	}

	return doc
}

// MergeInto folds the document's counters into reg. In MergeSkipStale mode
// the paths of dropped entries are returned.
func (d *Document) MergeInto(reg *coverage.Registry, mode MergeMode) ([]string, error) {
	if d.Version != DocumentVersion {
		return nil, fmt.Errorf("%w: %d (want %d)", ErrUnsupportedVersion, d.Version, DocumentVersion)
	}

	var skipped []string

	for _, entry := range d.Files {
		fp, err := coverage.ParseFingerprint(entry.Fingerprint)
		if err != nil {
			return skipped, fmt.Errorf("%w: %s: %w", ErrCorruptDocument, entry.Path, err)
		}

		if entry.Lines != len(entry.Hits) {
			return skipped, fmt.Errorf("%w: %s: %d lines but %d counters",
				ErrCorruptDocument, entry.Path, entry.Lines, len(entry.Hits))
		}

		err = reg.Merge(entry.Path, fp, entry.Hits)
		if err == nil {
			continue
		}

		if mode == MergeSkipStale && errors.Is(err, coverage.ErrFingerprintMismatch) {
			skipped = append(skipped, entry.Path)

			continue
		}

		return skipped, err
	}

	return skipped, nil
}
