package coverage_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/shcov/pkg/coverage"
)

func writeSource(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestCountLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		want int
	}{
		{name: "no trailing newline", data: "a\nb\nc", want: 3},
		{name: "trailing newline", data: "a\nb\nc\n", want: 3},
		{name: "empty", data: "", want: 0},
		{name: "single partial line", data: "echo", want: 1},
		{name: "only newline", data: "\n", want: 1},
		{name: "blank lines", data: "\n\n\n", want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, coverage.CountLines([]byte(tt.data)))
		})
	}
}

func TestLookupOrCreate_Idempotent_ReadsOnce(t *testing.T) {
	t.Parallel()

	path := writeSource(t, "echo a\necho b\n")
	reads := 0

	reg := coverage.NewRegistry(coverage.WithFileReader(func(p string) ([]byte, error) {
		reads++

		return os.ReadFile(p)
	}))

	first, err := reg.LookupOrCreate(path)
	require.NoError(t, err)

	second, err := reg.LookupOrCreate(path)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, reads)
	assert.Equal(t, 1, reg.Len())
}

func TestLookupOrCreate_FingerprintAndZeroedHits(t *testing.T) {
	t.Parallel()

	content := "a\nb\nc"
	path := writeSource(t, content)

	reg := coverage.NewRegistry()

	rec, err := reg.LookupOrCreate(path)
	require.NoError(t, err)

	assert.Equal(t, path, rec.Path())
	assert.Equal(t, coverage.FingerprintOf([]byte(content)), rec.Fingerprint())
	assert.Equal(t, 3, rec.LineCount())
	assert.Equal(t, []uint64{0, 0, 0}, rec.Hits())
}

func TestLookupOrCreate_MissingFile_ReturnsError(t *testing.T) {
	t.Parallel()

	reg := coverage.NewRegistry()

	_, err := reg.LookupOrCreate(filepath.Join(t.TempDir(), "absent.sh"))
	require.ErrorIs(t, err, coverage.ErrReadSource)
	assert.Equal(t, 0, reg.Len())
}

func TestLookupOrCreate_TooLarge_ReturnsError(t *testing.T) {
	t.Parallel()

	path := writeSource(t, "0123456789\n")
	reg := coverage.NewRegistry(coverage.WithMaxFileSize(4))

	_, err := reg.LookupOrCreate(path)
	assert.ErrorIs(t, err, coverage.ErrSourceTooLarge)
}

func TestRecordHit_CountsPerLine(t *testing.T) {
	t.Parallel()

	path := writeSource(t, "a\nb\nc\n")
	reg := coverage.NewRegistry()

	for range 4 {
		require.NoError(t, reg.RecordHit(path, 2))
	}

	require.NoError(t, reg.RecordHit(path, 3))

	rec, ok := reg.Lookup(path)
	require.True(t, ok)

	assert.Equal(t, []uint64{0, 4, 1}, rec.Hits())
	assert.Equal(t, 2, rec.CoveredLines())
	assert.Equal(t, uint64(5), rec.TotalHits())

	got, err := rec.HitCount(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), got)
}

func TestRecordHit_OutOfRange_ReturnsError(t *testing.T) {
	t.Parallel()

	path := writeSource(t, "a\nb\n")
	reg := coverage.NewRegistry()

	for _, line := range []int{0, -1, 3} {
		err := reg.RecordHit(path, line)
		assert.ErrorIs(t, err, coverage.ErrLineOutOfRange, "line %d", line)
	}

	rec, ok := reg.Lookup(path)
	require.True(t, ok)
	assert.Equal(t, []uint64{0, 0}, rec.Hits())
}

func TestRecordHit_EmptyFile_AlwaysOutOfRange(t *testing.T) {
	t.Parallel()

	path := writeSource(t, "")
	reg := coverage.NewRegistry()

	err := reg.RecordHit(path, 1)
	require.ErrorIs(t, err, coverage.ErrLineOutOfRange)

	rec, ok := reg.Lookup(path)
	require.True(t, ok)
	assert.Equal(t, 0, rec.LineCount())
}

func TestRecordHit_ReaderError_Propagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	reg := coverage.NewRegistry(coverage.WithFileReader(func(string) ([]byte, error) {
		return nil, boom
	}))

	err := reg.RecordHit("/nowhere.sh", 1)
	require.ErrorIs(t, err, coverage.ErrReadSource)
	assert.ErrorIs(t, err, boom)
}

func TestMerge_AdoptsUnknownAndAddsKnown(t *testing.T) {
	t.Parallel()

	content := "a\nb\n"
	path := writeSource(t, content)
	fp := coverage.FingerprintOf([]byte(content))

	reg := coverage.NewRegistry()
	require.NoError(t, reg.RecordHit(path, 1))

	require.NoError(t, reg.Merge(path, fp, []uint64{2, 5}))
	require.NoError(t, reg.Merge("/elsewhere/other.sh", fp, []uint64{1, 0, 1}))

	rec, ok := reg.Lookup(path)
	require.True(t, ok)
	assert.Equal(t, []uint64{3, 5}, rec.Hits())

	other, ok := reg.Lookup("/elsewhere/other.sh")
	require.True(t, ok)
	assert.Equal(t, 3, other.LineCount())

	files := reg.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "/elsewhere/other.sh", files[0].Path())
}

func TestMerge_SaturatesCounters(t *testing.T) {
	t.Parallel()

	fp := coverage.FingerprintOf([]byte("a\n"))
	reg := coverage.NewRegistry()

	require.NoError(t, reg.Merge("/s.sh", fp, []uint64{math.MaxUint64 - 1}))
	require.NoError(t, reg.Merge("/s.sh", fp, []uint64{5}))

	rec, err := reg.Get("/s.sh")
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), rec.TotalHits())
}

func TestGet_UnknownPath_ReturnsError(t *testing.T) {
	t.Parallel()

	_, err := coverage.NewRegistry().Get("/nowhere.sh")
	assert.ErrorIs(t, err, coverage.ErrUnknownFile)
}

func TestMerge_FingerprintMismatch_ReturnsError(t *testing.T) {
	t.Parallel()

	path := writeSource(t, "a\nb\n")
	reg := coverage.NewRegistry()
	require.NoError(t, reg.RecordHit(path, 1))

	err := reg.Merge(path, coverage.FingerprintOf([]byte("changed\n")), []uint64{1, 1})
	require.ErrorIs(t, err, coverage.ErrFingerprintMismatch)

	rec, _ := reg.Lookup(path)
	assert.Equal(t, []uint64{1, 0}, rec.Hits())
}

func TestParseFingerprint(t *testing.T) {
	t.Parallel()

	fp := coverage.FingerprintOf([]byte("echo hi\n"))

	parsed, err := coverage.ParseFingerprint(fp.String())
	require.NoError(t, err)
	assert.Equal(t, fp, parsed)

	_, err = coverage.ParseFingerprint("abc")
	require.ErrorIs(t, err, coverage.ErrInvalidFingerprint)

	_, err = coverage.ParseFingerprint("00ff")
	assert.ErrorIs(t, err, coverage.ErrInvalidFingerprint)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	reg := coverage.NewRegistry()
	require.NoError(t, reg.Merge("/a.sh", coverage.Fingerprint{}, []uint64{1, 0, 2, 0}))
	require.NoError(t, reg.Merge("/b.sh", coverage.Fingerprint{}, []uint64{0, 0, 0, 3}))

	sum := coverage.Summarize(reg.Files())

	assert.Equal(t, 2, sum.Files)
	assert.Equal(t, 8, sum.Lines)
	assert.Equal(t, 3, sum.CoveredLines)
	assert.Equal(t, uint64(6), sum.Hits)
	assert.InDelta(t, 0.375, sum.Ratio(), 1e-9)
	assert.Zero(t, coverage.Summary{}.Ratio())
}
