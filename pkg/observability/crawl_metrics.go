package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricMonthsTotal       = "codeshape.crawl.months.total"
	metricMonthDuration     = "codeshape.crawl.month.duration.seconds"
	metricFilesReadTotal    = "codeshape.crawl.files.read.total"
	metricReadFailuresTotal = "codeshape.crawl.files.failed.total"

	attrGroup = "group"
)

// monthBucketBoundaries covers 10ms to 30min: cached months on small trees up
// to full checkouts of large monorepos.
var monthBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800}

// CrawlMetrics holds the OTel instruments of a crawl.
type CrawlMetrics struct {
	months        metric.Int64Counter
	monthDuration metric.Float64Histogram
	filesRead     metric.Int64Counter
	readFailures  metric.Int64Counter
}

// NewCrawlMetrics creates crawl instruments from the given meter.
func NewCrawlMetrics(mt metric.Meter) (*CrawlMetrics, error) {
	months, err := mt.Int64Counter(metricMonthsTotal,
		metric.WithDescription("Months emitted as report rows"),
		metric.WithUnit("{month}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricMonthsTotal, err)
	}

	monthDuration, err := mt.Float64Histogram(metricMonthDuration,
		metric.WithDescription("Time to resolve, check out and measure one month"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(monthBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricMonthDuration, err)
	}

	filesRead, err := mt.Int64Counter(metricFilesReadTotal,
		metric.WithDescription("Files selected by file groups"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFilesReadTotal, err)
	}

	readFailures, err := mt.Int64Counter(metricReadFailuresTotal,
		metric.WithDescription("Selected files that could not be read"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricReadFailuresTotal, err)
	}

	return &CrawlMetrics{
		months:        months,
		monthDuration: monthDuration,
		filesRead:     filesRead,
		readFailures:  readFailures,
	}, nil
}

// RecordMonth records one emitted month. Safe to call on a nil receiver.
func (cm *CrawlMetrics) RecordMonth(ctx context.Context, duration time.Duration) {
	if cm == nil {
		return
	}

	cm.months.Add(ctx, 1)
	cm.monthDuration.Record(ctx, duration.Seconds())
}

// RecordGroup records the files of one group extraction. Safe to call on a nil receiver.
func (cm *CrawlMetrics) RecordGroup(ctx context.Context, group string, files, failed int) {
	if cm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrGroup, group))

	cm.filesRead.Add(ctx, int64(files), attrs)

	if failed > 0 {
		cm.readFailures.Add(ctx, int64(failed), attrs)
	}
}
