// Package store defines the persistence contract shared by the GeoLife backends.
//
// Trackpoint scans are always ordered by (activity_id, seq). The sequential analytics
// depend on that order, so every backend must sort or index on it explicitly.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/paulmach/orb"

	"geolife-loader/internal/geolife"
)

// ErrDuplicate is returned when a write would repeat an existing key.
var ErrDuplicate = errors.New("duplicate key")

// Writer is the write side used by ingestion.
type Writer interface {
	InsertUsers(ctx context.Context, users []geolife.User) error
	InsertActivities(ctx context.Context, acts []geolife.Activity) error
	InsertTrackpoints(ctx context.Context, tps []geolife.Trackpoint) error
	RecordRun(ctx context.Context, run geolife.Run) error
}

// Reader is the read side used by analytics.
type Reader interface {
	CountUsers(ctx context.Context) (int64, error)
	CountActivities(ctx context.Context) (int64, error)
	CountTrackpoints(ctx context.Context) (int64, error)

	// ScanActivities calls fn for every matching activity ordered by id.
	ScanActivities(ctx context.Context, f ActivityFilter, fn func(geolife.Activity) error) error
	// ScanTrackpoints calls fn for every matching trackpoint ordered by (activity_id, seq).
	ScanTrackpoints(ctx context.Context, f TrackpointFilter, fn func(geolife.Trackpoint) error) error

	// LatestRun returns the most recently started ingestion run; ok is false when none exists.
	LatestRun(ctx context.Context) (run geolife.Run, ok bool, err error)
}

// Store is a complete backend.
type Store interface {
	Writer
	Reader
	// Migrate creates collections, tables and indexes. It is safe to call repeatedly.
	Migrate(ctx context.Context) error
	// Drop removes every stored entity.
	Drop(ctx context.Context) error
	Close(ctx context.Context) error
}

// ActivityFilter narrows an activity scan. Zero fields do not filter.
type ActivityFilter struct {
	UserID   string
	Mode     string         // exact transportation mode
	HasMode  bool           // only labelled activities
	Year     int            // calendar year of start_time in Location
	Location *time.Location // year boundaries; nil means UTC
}

// YearRange returns the half-open interval covering f.Year in f.Location.
func (f ActivityFilter) YearRange() (time.Time, time.Time) {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	from := time.Date(f.Year, time.January, 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(1, 0, 0)
}

// Match applies the filter to a single activity. In-process backends use it directly.
func (f ActivityFilter) Match(a geolife.Activity) bool {
	if f.UserID != "" && a.UserID != f.UserID {
		return false
	}
	if f.Mode != "" && a.Mode() != f.Mode {
		return false
	}
	if f.HasMode && a.TransportationMode == nil {
		return false
	}
	if f.Year != 0 {
		from, to := f.YearRange()
		if a.StartTime.Before(from) || !a.StartTime.Before(to) {
			return false
		}
	}
	return true
}

// TrackpointFilter narrows a trackpoint scan. A nil ActivityIDs slice scans every activity;
// an empty non-nil slice matches nothing.
type TrackpointFilter struct {
	ActivityIDs []int64
	Bound       *orb.Bound
}

// MatchPoint applies the bounding box part of the filter.
func (f TrackpointFilter) MatchPoint(tp geolife.Trackpoint) bool {
	if f.Bound == nil {
		return true
	}
	return f.Bound.Contains(orb.Point{tp.Lon, tp.Lat})
}
