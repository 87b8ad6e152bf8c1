// Package loader buffers built activities and writes them to a store in threshold-sized batches.
package loader

import (
	"context"
	"fmt"
	"log"
	"time"

	"geolife-loader/internal/geolife"
)

// DefaultThreshold is the combined pending record count that triggers a flush.
const DefaultThreshold = 325000

// Sink receives bulk writes. Activities are always written before their trackpoints.
type Sink interface {
	InsertActivities(ctx context.Context, acts []geolife.Activity) error
	InsertTrackpoints(ctx context.Context, tps []geolife.Trackpoint) error
}

// Metrics observes flushes and buffer size.
type Metrics interface {
	FlushObserve(activities, trackpoints int, d time.Duration)
	PendingSet(n int)
}

// Notifier is told about every completed flush. Errors are logged and otherwise ignored.
type Notifier interface {
	PublishFlush(ctx context.Context, r FlushReport) error
}

// FlushReport describes one completed bulk write.
type FlushReport struct {
	Batch       int           `json:"batch"`
	Activities  int           `json:"activities"`
	Trackpoints int           `json:"trackpoints"`
	Elapsed     time.Duration `json:"elapsedNs"`
	Rate        float64       `json:"recordsPerSecond"`
}

// Records is the number of records written by the flush.
func (r FlushReport) Records() int { return r.Activities + r.Trackpoints }

// Totals are cumulative counters over the loader's lifetime.
type Totals struct {
	AppendedActivities  int
	AppendedTrackpoints int
	FlushedActivities   int
	FlushedTrackpoints  int
	Flushes             int
}

type Option func(*Loader)

// WithLogger overrides the logger used for flush reports.
func WithLogger(logger *log.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

func WithMetrics(m Metrics) Option {
	return func(l *Loader) {
		l.metrics = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(l *Loader) {
		l.notifier = n
	}
}

// Loader owns the pending buffers. It is not safe for concurrent use.
type Loader struct {
	sink      Sink
	threshold int
	logger    *log.Logger
	metrics   Metrics
	notifier  Notifier

	activities  []geolife.Activity
	trackpoints []geolife.Trackpoint
	totals      Totals
}

// New builds a loader. A non-positive threshold selects DefaultThreshold.
func New(sink Sink, threshold int, opts ...Option) *Loader {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	l := &Loader{sink: sink, threshold: threshold, logger: log.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) Threshold() int { return l.threshold }

// Pending returns the combined number of buffered records.
func (l *Loader) Pending() int { return len(l.activities) + len(l.trackpoints) }

func (l *Loader) Totals() Totals { return l.totals }

// Append buffers one activity with its trackpoints.
func (l *Loader) Append(a geolife.Activity, tps []geolife.Trackpoint) {
	l.activities = append(l.activities, a)
	l.trackpoints = append(l.trackpoints, tps...)
	l.totals.AppendedActivities++
	l.totals.AppendedTrackpoints += len(tps)
	if l.metrics != nil {
		l.metrics.PendingSet(l.Pending())
	}
}

// MaybeFlush writes the buffers when the pending count is strictly above the threshold.
func (l *Loader) MaybeFlush(ctx context.Context) (FlushReport, bool, error) {
	if l.Pending() <= l.threshold {
		return FlushReport{}, false, nil
	}
	r, err := l.flush(ctx)
	if err != nil {
		return FlushReport{}, false, err
	}
	return r, true, nil
}

// FlushRemainder writes whatever is still buffered. It is a no-op when nothing is pending.
func (l *Loader) FlushRemainder(ctx context.Context) (FlushReport, error) {
	if l.Pending() == 0 {
		return FlushReport{}, nil
	}
	return l.flush(ctx)
}

// flush is not retried: on error the failing batch is lost and the caller must abort the run.
func (l *Loader) flush(ctx context.Context) (FlushReport, error) {
	nActs, nTps := len(l.activities), len(l.trackpoints)
	l.logger.Printf("inserting %d activities and %d trackpoints", nActs, nTps)

	start := time.Now()
	if nActs > 0 {
		if err := l.sink.InsertActivities(ctx, l.activities); err != nil {
			return FlushReport{}, fmt.Errorf("insert activities: %w", err)
		}
	}
	if nTps > 0 {
		if err := l.sink.InsertTrackpoints(ctx, l.trackpoints); err != nil {
			return FlushReport{}, fmt.Errorf("insert trackpoints: %w", err)
		}
	}
	elapsed := time.Since(start)

	l.activities = l.activities[:0]
	l.trackpoints = l.trackpoints[:0]
	l.totals.FlushedActivities += nActs
	l.totals.FlushedTrackpoints += nTps
	l.totals.Flushes++

	r := FlushReport{
		Batch:       l.totals.Flushes,
		Activities:  nActs,
		Trackpoints: nTps,
		Elapsed:     elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		r.Rate = float64(r.Records()) / secs
	}
	l.logger.Printf("batch %d: insertion time %s, %.0f inserts/sec", r.Batch, elapsed.Round(time.Millisecond), r.Rate)

	if l.metrics != nil {
		l.metrics.FlushObserve(nActs, nTps, elapsed)
		l.metrics.PendingSet(0)
	}
	if l.notifier != nil {
		if err := l.notifier.PublishFlush(ctx, r); err != nil {
			l.logger.Printf("publish flush event: %v", err)
		}
	}
	return r, nil
}
