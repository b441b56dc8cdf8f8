package coverage

import (
	"crypto/md5" //nolint:gosec // content identity token, not a security boundary
	"encoding/hex"
	"fmt"

	"github.com/Sumatoshi-tech/shcov/pkg/safeconv"
	"github.com/Sumatoshi-tech/shcov/pkg/textutil"
)

// Fingerprint is the MD5 digest of a source file at registration time.
type Fingerprint [md5.Size]byte

// FingerprintOf hashes data.
func FingerprintOf(data []byte) Fingerprint {
	return md5.Sum(data) //nolint:gosec // see import
}

// String returns the lowercase hex form of the digest.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ParseFingerprint parses the hex form produced by [Fingerprint.String].
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint

	raw, err := hex.DecodeString(s)
	if err != nil {
		return fp, fmt.Errorf("%w: %q: %w", ErrInvalidFingerprint, s, err)
	}

	if len(raw) != len(fp) {
		return fp, fmt.Errorf("%w: %q has %d bytes", ErrInvalidFingerprint, s, len(raw))
	}

	copy(fp[:], raw)

	return fp, nil
}

// CountLines counts newline-delimited lines in data. Content after the last
// newline counts as one more line; a trailing newline does not.
func CountLines(data []byte) int {
	return textutil.CountLines(data)
}

// FileRecord holds the hit counters of one source file. The counter slice is
// sized once at creation and never grows.
type FileRecord struct {
	path        string
	fingerprint Fingerprint
	hits        []uint64
}

func newFileRecord(path string, fp Fingerprint, lineCount int) *FileRecord {
	return &FileRecord{
		path:        path,
		fingerprint: fp,
		hits:        make([]uint64, lineCount),
	}
}

// Path returns the canonical path the record is keyed by.
func (fr *FileRecord) Path() string { return fr.path }

// Fingerprint returns the content digest taken at registration.
func (fr *FileRecord) Fingerprint() Fingerprint { return fr.fingerprint }

// LineCount returns the number of lines in the file.
func (fr *FileRecord) LineCount() int { return len(fr.hits) }

// Hits returns a copy of the counters; index 0 is line 1.
func (fr *FileRecord) Hits() []uint64 {
	out := make([]uint64, len(fr.hits))
	copy(out, fr.hits)

	return out
}

// HitCount returns the counter for a 1-based line number.
func (fr *FileRecord) HitCount(line int) (uint64, error) {
	err := fr.checkLine(line)
	if err != nil {
		return 0, err
	}

	return fr.hits[line-1], nil
}

// CoveredLines returns how many lines were hit at least once.
func (fr *FileRecord) CoveredLines() int {
	covered := 0

	for _, h := range fr.hits {
		if h > 0 {
			covered++
		}
	}

	return covered
}

// TotalHits returns the sum of all counters.
func (fr *FileRecord) TotalHits() uint64 {
	var total uint64

	for _, h := range fr.hits {
		total = safeconv.AddSaturating(total, h)
	}

	return total
}

func (fr *FileRecord) hit(line int) error {
	err := fr.checkLine(line)
	if err != nil {
		return err
	}

	fr.hits[line-1] = safeconv.AddSaturating(fr.hits[line-1], 1)

	return nil
}

func (fr *FileRecord) checkLine(line int) error {
	if line < 1 || line > len(fr.hits) {
		return fmt.Errorf("%w: %s:%d (file has %d lines)", ErrLineOutOfRange, fr.path, line, len(fr.hits))
	}

	return nil
}
