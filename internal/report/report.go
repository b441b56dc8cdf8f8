// Package report renders coverage records for terminals: a per-file summary
// table and an annotated source listing.
package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Sumatoshi-tech/shcov/pkg/coverage"
	"github.com/Sumatoshi-tech/shcov/pkg/safeconv"
	"github.com/Sumatoshi-tech/shcov/pkg/textutil"
)

const (
	percentageValue      = 100
	ratioThresholdHigh   = 0.8
	ratioThresholdMedium = 0.6
)

// Markers used in annotated listings.
const (
	MarkUnhit   = "#####"
	MarkUnknown = "-"
)

const msgNoCoverage = "No coverage data"

// ErrBinarySource is returned when asked to annotate a non-text file.
var ErrBinarySource = errors.New("source is binary")

// Options controls rendering.
type Options struct {
	NoColor bool
}

// Renderer writes reports to an output stream.
type Renderer struct {
	out    io.Writer
	good   *color.Color
	fair   *color.Color
	poor   *color.Color
	header *color.Color
}

// NewRenderer creates a Renderer writing to out.
func NewRenderer(out io.Writer, opts Options) *Renderer {
	r := &Renderer{
		out:    out,
		good:   color.New(color.FgGreen),
		fair:   color.New(color.FgYellow),
		poor:   color.New(color.FgRed),
		header: color.New(color.Bold),
	}

	if opts.NoColor {
		for _, c := range []*color.Color{r.good, r.fair, r.poor, r.header} {
			c.DisableColor()
		}
	}

	return r
}

// Table writes one row per record plus a totals footer.
func (r *Renderer) Table(records []*coverage.FileRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(r.out, msgNoCoverage)

		return err
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Format.Footer = text.FormatDefault
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 5, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})

	tbl.AppendHeader(table.Row{"File", "Lines", "Covered", "Coverage", "Hits"})

	for _, rec := range records {
		s := coverage.Summarize([]*coverage.FileRecord{rec})
		tbl.AppendRow(r.summaryRow(rec.Path(), s))
	}

	total := coverage.Summarize(records)
	tbl.AppendFooter(r.summaryRow(fmt.Sprintf("Total: %d files", total.Files), total))

	_, err := fmt.Fprintln(r.out, tbl.Render())

	return err
}

func (r *Renderer) summaryRow(label string, s coverage.Summary) table.Row {
	return table.Row{
		label,
		humanize.Comma(int64(s.Lines)),
		humanize.Comma(int64(s.CoveredLines)),
		r.Percent(s.Ratio()),
		humanize.Comma(safeconv.SaturateInt64(s.Hits)),
	}
}

// Percent formats ratio as a percentage colored by threshold.
func (r *Renderer) Percent(ratio float64) string {
	c := r.poor

	switch {
	case ratio >= ratioThresholdHigh:
		c = r.good
	case ratio >= ratioThresholdMedium:
		c = r.fair
	}

	return c.Sprintf("%.1f%%", ratio*percentageValue)
}

// Annotate writes source with the hit count of each line in the margin.
// Unhit lines are marked MarkUnhit. Lines the record does not cover, as
// happens when the file has grown since it was traced, are marked
// MarkUnknown. When executable is non-nil, unhit lines it reports false
// for are marked MarkUnknown too and left out of the header totals.
func (r *Renderer) Annotate(rec *coverage.FileRecord, source []byte, executable []bool) error {
	if textutil.IsBinary(source) {
		return fmt.Errorf("%w: %s", ErrBinarySource, rec.Path())
	}

	hits := rec.Hits()
	covered, total := lineTotals(hits, executable)

	ratio := 0.0
	if total > 0 {
		ratio = float64(covered) / float64(total)
	}

	_, err := r.header.Fprintf(r.out, "%s  %d/%d lines  %s\n", rec.Path(), covered, total, r.Percent(ratio))
	if err != nil {
		return err
	}

	for i, line := range textutil.SplitLines(source) {
		_, err = fmt.Fprintf(r.out, "%s:%5d:%s\n", r.margin(hits, executable, i), i+1, line)
		if err != nil {
			return err
		}
	}

	return nil
}

// lineTotals counts hit lines and lines that could have been hit.
func lineTotals(hits []uint64, executable []bool) (covered, total int) {
	for i, h := range hits {
		switch {
		case h > 0:
			covered++
			total++
		case countable(executable, i):
			total++
		}
	}

	return covered, total
}

func countable(executable []bool, idx int) bool {
	return executable == nil || (idx < len(executable) && executable[idx])
}

func (r *Renderer) margin(hits []uint64, executable []bool, idx int) string {
	const width = 9

	switch {
	case idx >= len(hits):
		return fmt.Sprintf("%*s", width, MarkUnknown)
	case hits[idx] > 0:
		return fmt.Sprintf("%*s", width, humanize.Comma(safeconv.SaturateInt64(hits[idx])))
	case !countable(executable, idx):
		return fmt.Sprintf("%*s", width, MarkUnknown)
	default:
		return r.poor.Sprintf("%*s", width, MarkUnhit)
	}
}
