package observability

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrExitCode = "exit_code"
	attrStatus   = "status"

	statusOK    = "ok"
	statusError = "error"
)

// durationBuckets spans trivial scripts to long test suites, in seconds.
var durationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 1800}

// RunStats summarizes one traced script run.
type RunStats struct {
	Markers      int
	Forwarded    int
	Suppressed   int
	Files        int
	Lines        int
	CoveredLines int
	ExitCode     int
	Duration     time.Duration
	Failed       bool
}

// CoverageMetrics holds the instruments recorded once per traced run.
type CoverageMetrics struct {
	runs     metric.Int64Counter
	duration metric.Float64Histogram
	counters []runCounter
}

// runCounter adds one RunStats field to a counter.
type runCounter struct {
	inst  metric.Int64Counter
	value func(RunStats) int
}

type counterSpec struct {
	name  string
	desc  string
	unit  string
	value func(RunStats) int
}

var runCounterSpecs = []counterSpec{
	{"shcov.trace.marker_lines.total", "Trace marker lines consumed", "{line}", func(s RunStats) int { return s.Markers }},
	{"shcov.trace.forwarded_lines.total", "Program output lines forwarded", "{line}", func(s RunStats) int { return s.Forwarded }},
	{"shcov.trace.suppressed_lines.total", "Continuation lines suppressed", "{line}", func(s RunStats) int { return s.Suppressed }},
	{"shcov.coverage.files.total", "Source files registered", "{file}", func(s RunStats) int { return s.Files }},
	{"shcov.coverage.lines.total", "Source lines in registered files", "{line}", func(s RunStats) int { return s.Lines }},
	{"shcov.coverage.lines_covered.total", "Source lines hit at least once", "{line}", func(s RunStats) int { return s.CoveredLines }},
}

// NewCoverageMetrics creates the run instruments from mt.
func NewCoverageMetrics(mt metric.Meter) (*CoverageMetrics, error) {
	var errs []error

	runs, err := mt.Int64Counter("shcov.runs.total",
		metric.WithDescription("Total number of traced runs"), metric.WithUnit("{run}"))
	errs = append(errs, wrapInstrumentErr("shcov.runs.total", err))

	duration, err := mt.Float64Histogram("shcov.run.duration.seconds",
		metric.WithDescription("Traced run duration in seconds"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...))
	errs = append(errs, wrapInstrumentErr("shcov.run.duration.seconds", err))

	cm := &CoverageMetrics{runs: runs, duration: duration}

	for _, spec := range runCounterSpecs {
		inst, specErr := mt.Int64Counter(spec.name, metric.WithDescription(spec.desc), metric.WithUnit(spec.unit))
		errs = append(errs, wrapInstrumentErr(spec.name, specErr))
		cm.counters = append(cm.counters, runCounter{inst: inst, value: spec.value})
	}

	err = errors.Join(errs...)
	if err != nil {
		return nil, err
	}

	return cm, nil
}

func wrapInstrumentErr(name string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("create %s: %w", name, err)
}

// RecordRun records the outcome of one traced run.
func (cm *CoverageMetrics) RecordRun(ctx context.Context, stats RunStats) {
	status := statusOK
	if stats.Failed {
		status = statusError
	}

	attrs := metric.WithAttributes(
		attribute.String(attrStatus, status),
		attribute.String(attrExitCode, strconv.Itoa(stats.ExitCode)),
	)

	cm.runs.Add(ctx, 1, attrs)
	cm.duration.Record(ctx, stats.Duration.Seconds(), attrs)

	for _, c := range cm.counters {
		c.inst.Add(ctx, int64(c.value(stats)))
	}
}
