// Package memstore is an in-process Store used by tests and small local runs.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"geolife-loader/internal/geolife"
	"geolife-loader/internal/store"
)

// Store keeps every entity in maps guarded by a single RWMutex.
type Store struct {
	mu          sync.RWMutex
	users       map[string]geolife.User
	activities  map[int64]geolife.Activity
	trackpoints map[int64][]geolife.Trackpoint
	runs        []geolife.Run
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.users = make(map[string]geolife.User)
	s.activities = make(map[int64]geolife.Activity)
	s.trackpoints = make(map[int64][]geolife.Trackpoint)
	s.runs = nil
}

func (s *Store) Migrate(context.Context) error { return nil }
func (s *Store) Close(context.Context) error   { return nil }

func (s *Store) Drop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func (s *Store) InsertUsers(_ context.Context, users []geolife.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		if _, ok := s.users[u.ID]; ok {
			return fmt.Errorf("user %s: %w", u.ID, store.ErrDuplicate)
		}
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return nil
}

func (s *Store) InsertActivities(_ context.Context, acts []geolife.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range acts {
		if _, ok := s.activities[a.ID]; ok {
			return fmt.Errorf("activity %d: %w", a.ID, store.ErrDuplicate)
		}
	}
	for _, a := range acts {
		s.activities[a.ID] = a
	}
	return nil
}

func (s *Store) InsertTrackpoints(_ context.Context, tps []geolife.Trackpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	type key struct {
		act int64
		seq int
	}
	seen := make(map[key]bool, len(tps))
	for _, tp := range tps {
		k := key{tp.ActivityID, tp.Seq}
		if seen[k] {
			return fmt.Errorf("trackpoint %d/%d: %w", tp.ActivityID, tp.Seq, store.ErrDuplicate)
		}
		seen[k] = true
		for _, existing := range s.trackpoints[tp.ActivityID] {
			if existing.Seq == tp.Seq {
				return fmt.Errorf("trackpoint %d/%d: %w", tp.ActivityID, tp.Seq, store.ErrDuplicate)
			}
		}
	}
	for _, tp := range tps {
		s.trackpoints[tp.ActivityID] = append(s.trackpoints[tp.ActivityID], tp)
	}
	return nil
}

func (s *Store) RecordRun(_ context.Context, run geolife.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *Store) CountUsers(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func (s *Store) CountActivities(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.activities)), nil
}

func (s *Store) CountTrackpoints(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, tps := range s.trackpoints {
		n += int64(len(tps))
	}
	return n, nil
}

// ScanActivities snapshots the matching activities before calling fn, so fn may use the store.
func (s *Store) ScanActivities(ctx context.Context, f store.ActivityFilter, fn func(geolife.Activity) error) error {
	s.mu.RLock()
	var out []geolife.Activity
	for _, a := range s.activities {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	for _, a := range out {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ScanTrackpoints(ctx context.Context, f store.TrackpointFilter, fn func(geolife.Trackpoint) error) error {
	s.mu.RLock()
	var ids []int64
	if f.ActivityIDs != nil {
		for _, id := range f.ActivityIDs {
			if _, ok := s.trackpoints[id]; ok {
				ids = append(ids, id)
			}
		}
	} else {
		for id := range s.trackpoints {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	groups := make([][]geolife.Trackpoint, len(ids))
	for i, id := range ids {
		groups[i] = slices.Clone(s.trackpoints[id])
	}
	s.mu.RUnlock()

	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i].Seq < g[j].Seq })
		for _, tp := range g {
			if !f.MatchPoint(tp) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(tp); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) LatestRun(context.Context) (geolife.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return geolife.Run{}, false, nil
	}
	latest := s.runs[0]
	for _, r := range s.runs[1:] {
		if !r.StartedAt.Before(latest.StartedAt) {
			latest = r
		}
	}
	return latest, true, nil
}
