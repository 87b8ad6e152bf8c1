// Package analytics answers the fixed GeoLife questions over a store.Reader.
//
// Every task is read-only. Sequential accumulators rely on the store returning
// trackpoints ordered by (activity_id, seq) and fail with ErrUnordered otherwise.
package analytics

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"geolife-loader/internal/geo"
	"geolife-loader/internal/report"
	"geolife-loader/internal/store"
)

// TaskCount is the number of tasks in the catalog.
const TaskCount = 11

// feetToMetres converts GeoLife altitudes.
const feetToMetres = 0.3048

// Params are the fixed inputs of the catalog.
type Params struct {
	TopN         int
	TaxiMode     string
	DistanceUser string
	DistanceMode string
	DistanceYear int
	Fence        orb.Bound
	FenceName    string
	InvalidGap   time.Duration
	Location     *time.Location // decides the calendar year of an activity; nil means UTC
}

func DefaultParams() Params {
	return Params{
		TopN:         20,
		TaxiMode:     "taxi",
		DistanceUser: "112",
		DistanceMode: "walk",
		DistanceYear: 2008,
		Fence:        geo.ForbiddenCity,
		FenceName:    "Forbidden City",
		InvalidGap:   5 * time.Minute,
	}
}

// TaskMetrics observes task execution.
type TaskMetrics interface {
	TaskObserve(task int, d time.Duration, err error)
}

type Option func(*Engine)

func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m TaskMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

type Engine struct {
	r       store.Reader
	p       Params
	logger  *log.Logger
	metrics TaskMetrics
}

func NewEngine(r store.Reader, p Params, opts ...Option) *Engine {
	if p.TopN <= 0 {
		p.TopN = 20
	}
	if p.InvalidGap <= 0 {
		p.InvalidGap = 5 * time.Minute
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	e := &Engine{r: r, p: p, logger: log.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ParseTasks turns "1,3,5-7" or "all" into task numbers.
func ParseTasks(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.EqualFold(s, "all") {
		out := make([]int, TaskCount)
		for i := range out {
			out[i] = i + 1
		}
		return out, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		lo, hi, err := parseTaskRange(part)
		if err != nil {
			return nil, err
		}
		for n := lo; n <= hi; n++ {
			if n < 1 || n > TaskCount {
				return nil, fmt.Errorf("task %d out of range 1-%d", n, TaskCount)
			}
			out = append(out, n)
		}
	}
	return out, nil
}

func parseTaskRange(part string) (int, int, error) {
	from, to, isRange := strings.Cut(part, "-")
	lo, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid task %q", part)
	}
	if !isRange {
		return lo, lo, nil
	}
	hi, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil || hi < lo {
		return 0, 0, fmt.Errorf("invalid task range %q", part)
	}
	return lo, hi, nil
}

// RunTask executes task n and returns its table.
func (e *Engine) RunTask(ctx context.Context, n int) (*report.Table, error) {
	start := time.Now()
	var (
		t   *report.Table
		err error
	)
	switch n {
	case 1:
		t, err = e.totals(ctx)
	case 2:
		t, err = e.averageActivities(ctx)
	case 3:
		t, err = e.topUsersByActivities(ctx)
	case 4:
		t, err = e.usersWithMode(ctx)
	case 5:
		t, err = e.modeCounts(ctx)
	case 6:
		t, err = e.busiestYear(ctx)
	case 7:
		t, err = e.distance(ctx)
	case 8:
		t, err = e.altitudeGain(ctx)
	case 9:
		t, err = e.invalidActivities(ctx)
	case 10:
		t, err = e.fenceUsers(ctx)
	case 11:
		t, err = e.mostUsedModes(ctx)
	default:
		return nil, fmt.Errorf("unknown task %d", n)
	}
	if e.metrics != nil {
		e.metrics.TaskObserve(n, time.Since(start), err)
	}
	if err != nil {
		return nil, fmt.Errorf("task %d: %w", n, err)
	}
	t.Task = n
	e.logger.Printf("task %d done in %s", n, time.Since(start).Round(time.Millisecond))
	return t, nil
}
