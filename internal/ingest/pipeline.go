// Package ingest drives one sequential pass over a GeoLife dataset into a store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"geolife-loader/internal/geolife"
	"geolife-loader/internal/loader"
)

// Skip reasons reported to Metrics.
const (
	SkipParse   = "parse"
	SkipID      = "id"
	SkipLabels  = "labels"
	SkipListing = "listing"
)

// Label results reported to Metrics.
const (
	LabelMatched    = "matched"
	LabelUnmatched  = "unmatched"
	LabelUnlabelled = "unlabelled"
)

// Store is the write side the pipeline needs besides the loader's sink.
type Store interface {
	InsertUsers(ctx context.Context, users []geolife.User) error
	RecordRun(ctx context.Context, run geolife.Run) error
}

type Metrics interface {
	UserProcessed()
	ActivityBuilt(labelResult string)
	Oversized()
	Skipped(reason string)
}

// RunNotifier is told about the finished run. Errors are logged only.
type RunNotifier interface {
	PublishRun(ctx context.Context, run geolife.Run) error
}

type Option func(*Pipeline)

func WithLogger(logger *log.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithRunNotifier(n RunNotifier) Option {
	return func(p *Pipeline) {
		p.notifier = n
	}
}

// WithProgress renders a progress bar over users to w.
func WithProgress(w io.Writer) Option {
	return func(p *Pipeline) {
		p.progress = w
	}
}

// WithLocation sets the zone raw timestamps are recorded in. Default UTC.
func WithLocation(loc *time.Location) Option {
	return func(p *Pipeline) {
		p.loc = loc
	}
}

type Pipeline struct {
	dataset *geolife.Dataset
	builder *geolife.Builder
	store   Store
	loader  *loader.Loader

	loc      *time.Location
	logger   *log.Logger
	metrics  Metrics
	notifier RunNotifier
	progress io.Writer
}

func New(ds *geolife.Dataset, b *geolife.Builder, st Store, ld *loader.Loader, opts ...Option) *Pipeline {
	p := &Pipeline{
		dataset: ds,
		builder: b,
		store:   st,
		loader:  ld,
		loc:     time.UTC,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type runState struct {
	oversized int
	skipped   int
}

// Run ingests every user. Unreadable inputs are skipped; store failures abort the run.
// The returned Run is populated even when err is non-nil.
func (p *Pipeline) Run(ctx context.Context) (geolife.Run, error) {
	run := geolife.Run{ID: uuid.NewString(), StartedAt: time.Now()}
	if n, ok := p.notifier.(interface{ SetRunID(string) }); ok {
		n.SetRunID(run.ID)
	}
	p.logger.Printf("ingestion run %s started", run.ID)

	var users []geolife.User
	it := p.dataset.Users()
	for it.Next() {
		users = append(users, it.User())
	}
	if err := it.Err(); err != nil {
		return run, err
	}
	if err := p.store.InsertUsers(ctx, users); err != nil {
		return run, fmt.Errorf("insert users: %w", err)
	}
	run.Users = len(users)
	p.logger.Printf("inserted %d users", len(users))

	var bar *progressbar.ProgressBar
	if p.progress != nil {
		bar = progressbar.NewOptions(len(users),
			progressbar.OptionSetWriter(p.progress),
			progressbar.OptionSetDescription("Loading users"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}

	var st runState
	for i, u := range users {
		if err := ctx.Err(); err != nil {
			return p.finish(run, st), err
		}
		if err := p.processUser(ctx, u, &st); err != nil {
			return p.finish(run, st), err
		}
		if p.metrics != nil {
			p.metrics.UserProcessed()
		}
		if bar != nil {
			_ = bar.Add(1)
		} else {
			p.logger.Printf("user %s processed (%d / %d), time elapsed %s", u.ID, i+1, len(users), time.Since(run.StartedAt).Round(time.Second))
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if _, err := p.loader.FlushRemainder(ctx); err != nil {
		return p.finish(run, st), fmt.Errorf("final flush: %w", err)
	}
	run = p.finish(run, st)

	if err := p.store.RecordRun(ctx, run); err != nil {
		return run, fmt.Errorf("record run: %w", err)
	}
	if p.notifier != nil {
		if err := p.notifier.PublishRun(ctx, run); err != nil {
			p.logger.Printf("publish run event: %v", err)
		}
	}

	elapsed := run.FinishedAt.Sub(run.StartedAt)
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(run.Activities+run.Trackpoints) / secs
	}
	p.logger.Printf("insertion complete: %d users, %d activities, %d trackpoints, %d oversized, %d skipped in %s (%.0f records/sec)",
		run.Users, run.Activities, run.Trackpoints, run.Oversized, run.Skipped, elapsed.Round(time.Millisecond), rate)
	return run, nil
}

func (p *Pipeline) finish(run geolife.Run, st runState) geolife.Run {
	tot := p.loader.Totals()
	run.FinishedAt = time.Now()
	run.Activities = tot.FlushedActivities
	run.Trackpoints = tot.FlushedTrackpoints
	run.Oversized = st.oversized
	run.Skipped = st.skipped
	return run
}

func (p *Pipeline) skip(st *runState, reason, what string, err error) {
	st.skipped++
	if p.metrics != nil {
		p.metrics.Skipped(reason)
	}
	p.logger.Printf("skipping %s: %v", what, err)
}

// processUser returns an error only when a flush fails.
func (p *Pipeline) processUser(ctx context.Context, u geolife.User, st *runState) error {
	var labels []geolife.LabelInterval
	if u.HasLabels {
		var err error
		labels, err = geolife.ReadLabelFile(geolife.LabelPath(u), u.ID, p.loc)
		if err != nil {
			p.skip(st, SkipLabels, "activities of user "+u.ID, err)
			return nil
		}
	}

	ai := p.dataset.Activities(u)
	for ai.Next() {
		f := ai.File()
		raw, err := geolife.ReadTrajectoryFile(f.Path, p.loc)
		if err != nil {
			p.skip(st, SkipParse, f.Path, err)
			continue
		}
		built, ok, err := p.builder.Build(u, f, raw, labels)
		if err != nil {
			reason := SkipParse
			if errors.Is(err, geolife.ErrInvalidActivityID) {
				reason = SkipID
			}
			p.skip(st, reason, f.Path, err)
			continue
		}
		if !ok {
			st.oversized++
			if p.metrics != nil {
				p.metrics.Oversized()
			}
			continue
		}

		p.loader.Append(built.Activity, built.Trackpoints)
		if p.metrics != nil {
			p.metrics.ActivityBuilt(labelResult(u, built.Activity))
		}
		if _, _, err := p.loader.MaybeFlush(ctx); err != nil {
			return err
		}
	}
	if err := ai.Err(); err != nil {
		p.skip(st, SkipListing, "trajectories of user "+u.ID, err)
	}
	return nil
}

func labelResult(u geolife.User, a geolife.Activity) string {
	switch {
	case a.TransportationMode != nil:
		return LabelMatched
	case u.HasLabels:
		return LabelUnmatched
	default:
		return LabelUnlabelled
	}
}
