// Package storetest is a contract suite every store.Store backend must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"geolife-loader/internal/geo"
	"geolife-loader/internal/geolife"
	"geolife-loader/internal/store"
)

// Run exercises s against the shared contract. s must be empty and migrated.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2008, 5, 1, 8, 0, 0, 0, time.UTC)
	walk, taxi := "walk", "taxi"

	users := []geolife.User{
		{ID: "010", HasLabels: true, SourcePath: "/data/010"},
		{ID: "112", HasLabels: true, SourcePath: "/data/112"},
	}
	acts := []geolife.Activity{
		{ID: 11200000000000002, UserID: "112", Seq: "2", TransportationMode: &walk, StartTime: base, EndTime: base.Add(time.Hour)},
		{ID: 1000000000000001, UserID: "010", Seq: "1", TransportationMode: &taxi, StartTime: base.AddDate(-1, 0, 0), EndTime: base.AddDate(-1, 0, 0).Add(time.Hour)},
		{ID: 11200000000000001, UserID: "112", Seq: "1", StartTime: base.Add(-time.Hour), EndTime: base},
	}
	alt := 100.0
	var tps []geolife.Trackpoint
	// Inserted out of order on purpose.
	for _, a := range []int64{11200000000000002, 1000000000000001} {
		for seq := 2; seq >= 0; seq-- {
			tp := geolife.Trackpoint{ActivityID: a, Seq: seq, Lat: 39.9 + float64(seq)*0.01, Lon: 116.3, DateDays: 39569, Timestamp: base.Add(time.Duration(seq) * time.Second)}
			if seq != 1 {
				tp.Altitude = &alt
			}
			tps = append(tps, tp)
		}
	}
	inBox := geolife.Trackpoint{ActivityID: 11200000000000001, Seq: 0, Lat: 39.9165, Lon: 116.3975, Timestamp: base.Add(-time.Hour)}
	tps = append(tps, inBox)

	require.NoError(t, s.InsertUsers(ctx, users))
	require.NoError(t, s.InsertActivities(ctx, acts))
	require.NoError(t, s.InsertTrackpoints(ctx, tps[:3]))
	require.NoError(t, s.InsertTrackpoints(ctx, tps[3:]))

	t.Run("counts", func(t *testing.T) {
		n, err := s.CountUsers(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 2, n)
		n, err = s.CountActivities(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 3, n)
		n, err = s.CountTrackpoints(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 7, n)
	})

	t.Run("activities ordered by id", func(t *testing.T) {
		var ids []int64
		require.NoError(t, s.ScanActivities(ctx, store.ActivityFilter{}, func(a geolife.Activity) error {
			ids = append(ids, a.ID)
			return nil
		}))
		require.Equal(t, []int64{1000000000000001, 11200000000000001, 11200000000000002}, ids)
	})

	t.Run("activity filters", func(t *testing.T) {
		var got []geolife.Activity
		require.NoError(t, s.ScanActivities(ctx, store.ActivityFilter{UserID: "112", Mode: "walk", Year: 2008}, func(a geolife.Activity) error {
			got = append(got, a)
			return nil
		}))
		require.Len(t, got, 1)
		require.Equal(t, int64(11200000000000002), got[0].ID)
		require.Equal(t, "walk", got[0].Mode())
		require.Equal(t, "2", got[0].Seq)
		require.True(t, base.Equal(got[0].StartTime))

		var labelled []int64
		require.NoError(t, s.ScanActivities(ctx, store.ActivityFilter{HasMode: true}, func(a geolife.Activity) error {
			labelled = append(labelled, a.ID)
			return nil
		}))
		require.Equal(t, []int64{1000000000000001, 11200000000000002}, labelled)

		var none int
		require.NoError(t, s.ScanActivities(ctx, store.ActivityFilter{Year: 2008, UserID: "010"}, func(geolife.Activity) error {
			none++
			return nil
		}))
		require.Zero(t, none)
	})

	t.Run("trackpoints ordered by activity and seq", func(t *testing.T) {
		type key struct {
			act int64
			seq int
		}
		var got []key
		var altitudes []*float64
		require.NoError(t, s.ScanTrackpoints(ctx, store.TrackpointFilter{}, func(tp geolife.Trackpoint) error {
			got = append(got, key{tp.ActivityID, tp.Seq})
			altitudes = append(altitudes, tp.Altitude)
			return nil
		}))
		require.Equal(t, []key{
			{1000000000000001, 0}, {1000000000000001, 1}, {1000000000000001, 2},
			{11200000000000001, 0},
			{11200000000000002, 0}, {11200000000000002, 1}, {11200000000000002, 2},
		}, got)
		require.NotNil(t, altitudes[0])
		require.Nil(t, altitudes[1], "unknown altitude must round-trip as absent")
		require.Nil(t, altitudes[3])
	})

	t.Run("trackpoints by activity ids", func(t *testing.T) {
		var n int
		require.NoError(t, s.ScanTrackpoints(ctx, store.TrackpointFilter{ActivityIDs: []int64{11200000000000002}}, func(tp geolife.Trackpoint) error {
			require.Equal(t, int64(11200000000000002), tp.ActivityID)
			n++
			return nil
		}))
		require.Equal(t, 3, n)

		n = 0
		require.NoError(t, s.ScanTrackpoints(ctx, store.TrackpointFilter{ActivityIDs: []int64{}}, func(geolife.Trackpoint) error {
			n++
			return nil
		}))
		require.Zero(t, n)
	})

	t.Run("trackpoints in bound", func(t *testing.T) {
		b := geo.ForbiddenCity
		var got []geolife.Trackpoint
		require.NoError(t, s.ScanTrackpoints(ctx, store.TrackpointFilter{Bound: &b}, func(tp geolife.Trackpoint) error {
			got = append(got, tp)
			return nil
		}))
		require.Len(t, got, 1)
		require.Equal(t, int64(11200000000000001), got[0].ActivityID)
	})

	t.Run("duplicate activity rejected", func(t *testing.T) {
		err := s.InsertActivities(ctx, acts[:1])
		require.Error(t, err)
	})

	t.Run("runs", func(t *testing.T) {
		_, ok, err := s.LatestRun(ctx)
		require.NoError(t, err)
		require.False(t, ok)

		first := geolife.Run{ID: "a", StartedAt: base, FinishedAt: base.Add(time.Minute), Users: 1}
		second := geolife.Run{ID: "b", StartedAt: base.Add(time.Hour), FinishedAt: base.Add(2 * time.Hour), Users: 2, Activities: 3, Trackpoints: 7, Oversized: 1, Skipped: 4}
		require.NoError(t, s.RecordRun(ctx, second))
		require.NoError(t, s.RecordRun(ctx, first))

		got, ok, err := s.LatestRun(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "b", got.ID)
		require.Equal(t, 7, got.Trackpoints)
		require.Equal(t, 4, got.Skipped)
		require.True(t, second.FinishedAt.Equal(got.FinishedAt))
	})

	t.Run("drop", func(t *testing.T) {
		require.NoError(t, s.Drop(ctx))
		require.NoError(t, s.Migrate(ctx))
		n, err := s.CountTrackpoints(ctx)
		require.NoError(t, err)
		require.Zero(t, n)
		n, err = s.CountUsers(ctx)
		require.NoError(t, err)
		require.Zero(t, n)
	})
}
