package analytics

import (
	"context"
	"fmt"
	"slices"

	"geolife-loader/internal/geolife"
	"geolife-loader/internal/report"
	"geolife-loader/internal/store"
)

func (e *Engine) totals(ctx context.Context) (*report.Table, error) {
	users, err := e.r.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	acts, err := e.r.CountActivities(ctx)
	if err != nil {
		return nil, err
	}
	tps, err := e.r.CountTrackpoints(ctx)
	if err != nil {
		return nil, err
	}
	t := &report.Table{Title: "Users, activities and trackpoints", Columns: []string{"users", "activities", "trackpoints"}}
	t.AddRow(users, acts, tps)
	return t, nil
}

func (e *Engine) averageActivities(ctx context.Context) (*report.Table, error) {
	users, err := e.r.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	acts, err := e.r.CountActivities(ctx)
	if err != nil {
		return nil, err
	}
	avg := 0.0
	if users > 0 {
		avg = float64(acts) / float64(users)
	}
	t := &report.Table{Title: "Average number of activities per user", Columns: []string{"users", "activities", "average"}}
	t.AddRow(users, acts, avg)
	return t, nil
}

func (e *Engine) activitiesPerUser(ctx context.Context, f store.ActivityFilter) (map[string]int, error) {
	counts := make(map[string]int)
	err := e.r.ScanActivities(ctx, f, func(a geolife.Activity) error {
		counts[a.UserID]++
		return nil
	})
	return counts, err
}

func (e *Engine) topUsersByActivities(ctx context.Context) (*report.Table, error) {
	counts, err := e.activitiesPerUser(ctx, store.ActivityFilter{})
	if err != nil {
		return nil, err
	}
	t := &report.Table{Title: fmt.Sprintf("Top %d users by number of activities", e.p.TopN), Columns: []string{"user_id", "activities"}}
	for _, r := range topK(counts, e.p.TopN) {
		t.AddRow(r.Key, r.Value)
	}
	return t, nil
}

func (e *Engine) usersWithMode(ctx context.Context) (*report.Table, error) {
	counts, err := e.activitiesPerUser(ctx, store.ActivityFilter{Mode: e.p.TaxiMode})
	if err != nil {
		return nil, err
	}
	t := &report.Table{Title: fmt.Sprintf("Users who have taken a %s", e.p.TaxiMode), Columns: []string{"user_id", "activities"}}
	for _, u := range sortedKeys(counts) {
		t.AddRow(u, counts[u])
	}
	return t, nil
}

func (e *Engine) modeCounts(ctx context.Context) (*report.Table, error) {
	counts := make(map[string]int)
	err := e.r.ScanActivities(ctx, store.ActivityFilter{HasMode: true}, func(a geolife.Activity) error {
		counts[a.Mode()]++
		return nil
	})
	if err != nil {
		return nil, err
	}
	t := &report.Table{Title: "Activities per transportation mode", Columns: []string{"transportation_mode", "activities"}}
	for _, r := range topK(counts, 0) {
		t.AddRow(r.Key, r.Value)
	}
	return t, nil
}

func (e *Engine) busiestYear(ctx context.Context) (*report.Table, error) {
	counts := make(map[int]int)
	hours := make(map[int]float64)
	err := e.r.ScanActivities(ctx, store.ActivityFilter{}, func(a geolife.Activity) error {
		y := a.StartTime.In(e.p.Location).Year()
		counts[y]++
		hours[y] += a.Duration().Hours()
		return nil
	})
	if err != nil {
		return nil, err
	}
	t := &report.Table{Title: "Year with the most activities and the most recorded hours", Columns: []string{"year", "activities", "hours"}}
	years := make([]int, 0, len(counts))
	for y := range counts {
		years = append(years, y)
	}
	slices.Sort(years)
	for _, y := range years {
		t.AddRow(y, counts[y], hours[y])
	}
	if len(years) == 0 {
		return t, nil
	}

	byCount, byHours := years[0], years[0]
	for _, y := range years[1:] {
		if counts[y] > counts[byCount] {
			byCount = y
		}
		if hours[y] > hours[byHours] {
			byHours = y
		}
	}
	t.Note("most activities: %d (%d)", byCount, counts[byCount])
	t.Note("most recorded hours: %d (%.1f h)", byHours, hours[byHours])
	if byCount == byHours {
		t.Note("the year with the most activities is also the year with the most recorded hours")
	} else {
		t.Note("the year with the most activities is not the year with the most recorded hours")
	}
	return t, nil
}

func (e *Engine) distance(ctx context.Context) (*report.Table, error) {
	f := store.ActivityFilter{UserID: e.p.DistanceUser, Mode: e.p.DistanceMode, Year: e.p.DistanceYear, Location: e.p.Location}
	ids := []int64{}
	err := e.r.ScanActivities(ctx, f, func(a geolife.Activity) error {
		ids = append(ids, a.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	var d Distance
	if len(ids) > 0 {
		if err := e.r.ScanTrackpoints(ctx, store.TrackpointFilter{ActivityIDs: ids}, d.Add); err != nil {
			return nil, err
		}
	}
	t := &report.Table{
		Title:   fmt.Sprintf("Distance (%s) in %d by user %s", e.p.DistanceMode, e.p.DistanceYear, e.p.DistanceUser),
		Columns: []string{"user_id", "activities", "km"},
	}
	t.AddRow(e.p.DistanceUser, len(ids), d.Km())
	return t, nil
}

func (e *Engine) owners(ctx context.Context) (Owners, error) {
	o := make(Owners)
	err := e.r.ScanActivities(ctx, store.ActivityFilter{}, func(a geolife.Activity) error {
		o[a.ID] = a.UserID
		return nil
	})
	return o, err
}

func (e *Engine) altitudeGain(ctx context.Context) (*report.Table, error) {
	owners, err := e.owners(ctx)
	if err != nil {
		return nil, err
	}
	acc := NewAltitudeGain(owners)
	if err := e.r.ScanTrackpoints(ctx, store.TrackpointFilter{}, acc.Add); err != nil {
		return nil, err
	}
	t := &report.Table{
		Title:   fmt.Sprintf("Top %d users by altitude gained", e.p.TopN),
		Columns: []string{"user_id", "gained_ft", "gained_m"},
	}
	for _, r := range topK(acc.Totals(), e.p.TopN) {
		t.AddRow(r.Key, fmt.Sprintf("%.0f", r.Value), fmt.Sprintf("%.0f", r.Value*feetToMetres))
	}
	return t, nil
}

func (e *Engine) invalidActivities(ctx context.Context) (*report.Table, error) {
	owners, err := e.owners(ctx)
	if err != nil {
		return nil, err
	}
	acc := NewInvalidActivities(owners, e.p.InvalidGap)
	if err := e.r.ScanTrackpoints(ctx, store.TrackpointFilter{}, acc.Add); err != nil {
		return nil, err
	}
	counts := acc.Counts()
	t := &report.Table{
		Title:   fmt.Sprintf("Users with invalid activities (gap > %s)", e.p.InvalidGap),
		Columns: []string{"user_id", "invalid_activities"},
	}
	for _, u := range sortedKeys(counts) {
		t.AddRow(u, counts[u])
	}
	return t, nil
}

func (e *Engine) fenceUsers(ctx context.Context) (*report.Table, error) {
	owners, err := e.owners(ctx)
	if err != nil {
		return nil, err
	}
	hits := make(map[string]int)
	b := e.p.Fence
	err = e.r.ScanTrackpoints(ctx, store.TrackpointFilter{Bound: &b}, func(tp geolife.Trackpoint) error {
		if u, ok := owners[tp.ActivityID]; ok {
			hits[u]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t := &report.Table{
		Title:   fmt.Sprintf("Users with trackpoints in the %s", e.p.FenceName),
		Columns: []string{"user_id", "trackpoints"},
	}
	for _, u := range sortedKeys(hits) {
		t.AddRow(u, hits[u])
	}
	return t, nil
}

func (e *Engine) mostUsedModes(ctx context.Context) (*report.Table, error) {
	perUser := make(map[string]*modeCounter)
	err := e.r.ScanActivities(ctx, store.ActivityFilter{HasMode: true}, func(a geolife.Activity) error {
		m := perUser[a.UserID]
		if m == nil {
			m = &modeCounter{}
			perUser[a.UserID] = m
		}
		m.add(a.Mode())
		return nil
	})
	if err != nil {
		return nil, err
	}
	t := &report.Table{Title: "Most used transportation mode per user", Columns: []string{"user_id", "most_used_transportation_mode", "activities"}}
	for _, u := range sortedKeys(perUser) {
		mode, n := perUser[u].top()
		t.AddRow(u, mode, n)
	}
	return t, nil
}
