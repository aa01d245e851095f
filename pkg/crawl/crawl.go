// Package crawl walks calendar months from a start date to today, producing
// one report row per month from the snapshot resolved for that month.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/codeshape/pkg/calendar"
	"github.com/Sumatoshi-tech/codeshape/pkg/metrics"
	"github.com/Sumatoshi-tech/codeshape/pkg/observability"
	"github.com/Sumatoshi-tech/codeshape/pkg/report"
	"github.com/Sumatoshi-tech/codeshape/pkg/resolver"
	"github.com/Sumatoshi-tech/codeshape/pkg/vcs"
	"github.com/Sumatoshi-tech/codeshape/pkg/worktree"
)

// ErrMissingDependency is returned by Run when a required field is unset.
var ErrMissingDependency = errors.New("crawl driver is missing a dependency")

// SnapshotResolver maps dates to snapshots.
type SnapshotResolver interface {
	ResolveInitial(ctx context.Context) (resolver.Initial, error)
	ResolveForMonth(ctx context.Context, date time.Time) (vcs.Ref, error)
}

// Checkouter exposes one snapshot in the working tree at a time.
type Checkouter interface {
	Checkout(ctx context.Context, ref vcs.Ref) (*worktree.Lease, error)
}

// Emitter receives finished rows.
type Emitter interface {
	Emit(row report.Row) error
}

// Driver runs the monthly loop. Runs are sequential: the working tree is a
// single shared resource and a month's checkout and extractions form one
// critical section.
type Driver struct {
	Contributors vcs.Contributors
	Resolver     SnapshotResolver
	Controller   Checkouter
	Extractor    *metrics.Extractor
	Emitter      Emitter
	Definitions  []metrics.Definition

	// Start overrides the discovered initial date when non-zero.
	Start time.Time

	// Now returns the current time. Nil means time.Now.
	Now func() time.Time

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *observability.CrawlMetrics
}

// Stats summarizes a finished run.
type Stats struct {
	Initial resolver.Initial
	Start   time.Time
	// Stop is the first month that produced no row.
	Stop    time.Time
	Months  int
	Files   int
	Failed  int
	Elapsed time.Duration
	// CaughtUp is set when the run ended because the main line had no commit
	// after the pointer, rather than the pointer reaching today.
	CaughtUp bool
}

// ElapsedHuman renders the run time for people.
func (s Stats) ElapsedHuman() string {
	if s.Elapsed < time.Second {
		return s.Elapsed.Round(time.Millisecond).String()
	}

	end := time.Unix(0, 0)

	return strings.TrimSpace(humanize.RelTime(end.Add(-s.Elapsed), end, "", ""))
}

// Run executes INIT, then ITERATING until the pointer reaches today or the
// main line runs out, then DONE. Every error except running out of commits
// aborts the run; rows emitted before the failure are kept.
func (d *Driver) Run(ctx context.Context) (Stats, error) {
	err := d.validate()
	if err != nil {
		return Stats{}, err
	}

	now := d.Now
	if now == nil {
		now = time.Now
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	tracer := d.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	started := now()
	today := calendar.Today(started)

	initial, err := d.Resolver.ResolveInitial(ctx)
	if err != nil {
		return Stats{}, err
	}

	pointer := initial.Date
	if !d.Start.IsZero() {
		pointer = calendar.Date(d.Start)
	}

	stats := Stats{Initial: initial, Start: pointer}

	logger.InfoContext(ctx, "crawl started",
		"initial_ref", initial.Ref.Short(),
		"initial_date", calendar.Key(initial.Date),
		"start", calendar.Key(pointer),
		"today", calendar.Key(today))

	m := month{driver: d, logger: logger, tracer: tracer}

	for pointer.Before(today) {
		err = ctx.Err()
		if err != nil {
			return d.finish(ctx, logger, stats, pointer, started, now), err
		}

		monthStart := now()

		files, failed, monthErr := m.run(ctx, pointer)
		if errors.Is(monthErr, resolver.ErrNoFurtherCommits) {
			stats.CaughtUp = true

			logger.InfoContext(ctx, "no commits after pointer, crawl caught up", "date", calendar.Key(pointer))

			break
		}

		if monthErr != nil {
			return d.finish(ctx, logger, stats, pointer, started, now), monthErr
		}

		elapsed := now().Sub(monthStart)
		stats.Months++
		stats.Files += files
		stats.Failed += failed
		d.Metrics.RecordMonth(ctx, elapsed)

		logger.InfoContext(ctx, "month done",
			"date", calendar.Key(pointer), "elapsed", elapsed.Round(time.Millisecond), "rows", stats.Months)

		pointer, err = calendar.Next(pointer)
		if err != nil {
			return d.finish(ctx, logger, stats, pointer, started, now), err
		}
	}

	return d.finish(ctx, logger, stats, pointer, started, now), nil
}

func (d *Driver) finish(
	ctx context.Context, logger *slog.Logger, stats Stats, pointer, started time.Time, now func() time.Time,
) Stats {
	stats.Stop = pointer
	stats.Elapsed = now().Sub(started)

	logger.InfoContext(ctx, "crawl finished",
		"months", stats.Months,
		"files", humanize.Comma(int64(stats.Files)),
		"unreadable", stats.Failed,
		"stopped_at", calendar.Key(pointer),
		"elapsed", stats.ElapsedHuman())

	return stats
}

func (d *Driver) validate() error {
	var missing []string

	if d.Resolver == nil {
		missing = append(missing, "Resolver")
	}

	if d.Controller == nil {
		missing = append(missing, "Controller")
	}

	if d.Extractor == nil {
		missing = append(missing, "Extractor")
	}

	if d.Emitter == nil {
		missing = append(missing, "Emitter")
	}

	for _, def := range d.Definitions {
		if def.Kind == metrics.KindContributors && d.Contributors == nil {
			missing = append(missing, "Contributors")

			break
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingDependency, strings.Join(missing, ", "))
	}

	return metrics.Validate(d.Definitions)
}

// month runs one ITERATING step.
type month struct {
	driver *Driver
	logger *slog.Logger
	tracer trace.Tracer
}

func (m month) run(ctx context.Context, pointer time.Time) (files, failed int, err error) {
	key := calendar.Key(pointer)

	ctx, span := m.tracer.Start(ctx, "crawl.month", trace.WithAttributes(attribute.String("month", key)))
	defer func() {
		if err != nil && !errors.Is(err, resolver.ErrNoFurtherCommits) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
	}()

	m.logger.InfoContext(ctx, "current date", "date", key)

	ref, err := m.driver.Resolver.ResolveForMonth(ctx, pointer)
	if err != nil {
		return 0, 0, err
	}

	span.SetAttributes(attribute.String("ref", ref.String()))

	start := time.Now()

	lease, err := m.driver.Controller.Checkout(ctx, ref)
	if err != nil {
		return 0, 0, err
	}

	m.logger.InfoContext(ctx, "checked out", "ref", ref.Short(), "elapsed", time.Since(start).Round(time.Millisecond))

	row := report.Row{
		{Name: report.ColumnDate, Value: report.Scalar(key)},
		{Name: report.ColumnSHA, Value: report.Scalar(ref.String())},
	}

	for _, def := range m.driver.Definitions {
		value, groupFiles, groupFailed, defErr := m.measure(ctx, lease, pointer, def)
		if defErr != nil {
			return files, failed, fmt.Errorf("%s: metric %s: %w", key, def.Name, defErr)
		}

		files += groupFiles
		failed += groupFailed
		row = append(row, report.Cell{Name: def.Name, Value: value})
	}

	err = m.driver.Emitter.Emit(row)
	if err != nil {
		return files, failed, fmt.Errorf("%s: emit row: %w", key, err)
	}

	return files, failed, nil
}

func (m month) measure(
	ctx context.Context, lease *worktree.Lease, pointer time.Time, def metrics.Definition,
) (value report.Value, files, failed int, err error) {
	ctx, span := m.tracer.Start(ctx, "crawl.metric", trace.WithAttributes(
		attribute.String("metric", def.Name),
		attribute.String("kind", string(def.Kind)),
	))
	defer span.End()

	start := time.Now()

	defer func() {
		m.logger.DebugContext(ctx, "metric measured",
			"metric", def.Name, "elapsed", time.Since(start).Round(time.Millisecond))
	}()

	switch def.Kind {
	case metrics.KindGroup:
		result, extractErr := m.driver.Extractor.Extract(ctx, lease, def.Group)
		if extractErr != nil {
			return nil, 0, 0, extractErr
		}

		m.driver.Metrics.RecordGroup(ctx, def.Name, result.Files, len(result.Failed))
		span.SetAttributes(attribute.Int("files", result.Files), attribute.Int("failed", len(result.Failed)))

		return report.Group(result), result.Files, len(result.Failed), nil
	case metrics.KindFirst:
		count, firstErr := m.driver.Extractor.First(ctx, lease, def.Group)
		if firstErr != nil {
			return nil, 0, 0, firstErr
		}

		return report.Int(count), 0, 0, nil
	case metrics.KindContributors:
		since := calendar.Previous(pointer)

		count, countErr := m.driver.Contributors.ContributorCount(ctx, since, pointer)
		if countErr != nil {
			return nil, 0, 0, countErr
		}

		return report.Int(count), 0, 0, nil
	default:
		return nil, 0, 0, fmt.Errorf("%w: %q", metrics.ErrUnknownKind, def.Kind)
	}
}
