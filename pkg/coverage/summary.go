package coverage

import "github.com/Sumatoshi-tech/shcov/pkg/safeconv"

// Summary aggregates line coverage over a set of records.
type Summary struct {
	Files        int
	Lines        int
	CoveredLines int
	Hits         uint64
}

// Ratio returns covered lines over total lines, or 0 when there are no lines.
func (s Summary) Ratio() float64 {
	if s.Lines == 0 {
		return 0
	}

	return float64(s.CoveredLines) / float64(s.Lines)
}

// Summarize totals the given records.
func Summarize(records []*FileRecord) Summary {
	var s Summary

	for _, rec := range records {
		s.Files++
		s.Lines += rec.LineCount()
		s.CoveredLines += rec.CoveredLines()
		s.Hits = safeconv.AddSaturating(s.Hits, rec.TotalHits())
	}

	return s
}
