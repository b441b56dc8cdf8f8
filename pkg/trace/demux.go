// Package trace splits the stderr stream of a traced shell into coverage
// markers and genuine program output.
//
// The shell prints a marker line before every command it executes, followed
// by the command text. When that text contains a newline inside single quotes
// the continuation lines carry no marker. The Demuxer tells them apart from
// real output by the parity of quote characters on the preceding marker line.
// This is a heuristic: an odd number of quotes in real output written right
// after an unbalanced marker line, or escaped quotes in the command text, are
// misclassified.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Sentinel errors.
var (
	ErrGarbledLine       = errors.New("garbled trace line")
	ErrUnresolvablePath  = errors.New("cannot resolve path")
	ErrInvalidLineNumber = errors.New("cannot resolve line number")
	ErrEmptyPath         = errors.New("empty source path")
)

// HitRecorder receives one event per executed source line.
type HitRecorder interface {
	RecordHit(path string, line int) error
}

// PathResolver maps a reported source path to its canonical form.
type PathResolver func(path string) (string, error)

// Stats counts how lines were classified.
type Stats struct {
	Markers    int
	Forwarded  int
	Suppressed int
}

// Option configures a Demuxer.
type Option func(*Demuxer)

// WithPathResolver replaces [CanonicalPath].
func WithPathResolver(resolve PathResolver) Option {
	return func(d *Demuxer) {
		d.resolve = resolve
	}
}

// Demuxer classifies trace output one line at a time. It is created per run
// and is not safe for concurrent use.
type Demuxer struct {
	out           io.Writer
	hits          HitRecorder
	resolve       PathResolver
	pendingQuotes int
	stats         Stats
}

// NewDemuxer creates a Demuxer forwarding program output to out and
// coverage events to hits.
func NewDemuxer(out io.Writer, hits HitRecorder, opts ...Option) *Demuxer {
	d := &Demuxer{
		out:     out,
		hits:    hits,
		resolve: CanonicalPath,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// PendingQuotes returns the quote count of the last marker line.
func (d *Demuxer) PendingQuotes() int {
	return d.pendingQuotes
}

// Stats returns the classification counters so far.
func (d *Demuxer) Stats() Stats {
	return d.stats
}

// Consume dispatches every line of r in order until EOF. Line terminators are
// kept; a final unterminated line is dispatched as well.
func (d *Demuxer) Consume(r io.Reader) error {
	br := bufio.NewReader(r)

	for {
		line, err := br.ReadString('\n')
		if line != "" {
			dispatchErr := d.Dispatch(line)
			if dispatchErr != nil {
				return dispatchErr
			}
		}

		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("read trace stream: %w", err)
		}
	}
}

// Dispatch classifies a single line, including its terminator.
func (d *Demuxer) Dispatch(line string) error {
	if !IsMarker(line) {
		return d.passThrough(line)
	}

	d.stats.Markers++
	d.pendingQuotes = CountQuotes(StripMagic(line))

	marker, err := ParseMarker(line)
	if err != nil {
		return err
	}

	path, err := d.resolve(marker.Source)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrUnresolvablePath, marker.Source, err)
	}

	lineNo, err := strconv.Atoi(marker.Line)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLineNumber, marker.Line)
	}

	err = d.hits.RecordHit(path, lineNo)
	if err != nil {
		return fmt.Errorf("record %s:%d: %w", path, lineNo, err)
	}

	return nil
}

// passThrough forwards output unless the previous marker line left exactly
// one quote open, in which case line is the tail of the traced command.
func (d *Demuxer) passThrough(line string) error {
	if d.pendingQuotes == 1 {
		d.stats.Suppressed++

		return nil
	}

	_, err := io.WriteString(d.out, line)
	if err != nil {
		return fmt.Errorf("forward output: %w", err)
	}

	d.stats.Forwarded++

	return nil
}
