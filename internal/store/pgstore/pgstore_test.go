package pgstore

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"geolife-loader/internal/store"
)

func TestWithDBName(t *testing.T) {
	cases := []struct {
		dsn, db, want string
	}{
		{"postgres://u:p@h:5432/postgres?sslmode=disable", "geolife", "postgres://u:p@h:5432/geolife?sslmode=disable"},
		{"postgresql://h/x", "/geolife", "postgresql://h/geolife"},
		{"u@h:5432", "geolife", "postgres://u@h:5432/geolife"},
	}
	for _, c := range cases {
		got, err := WithDBName(c.dsn, c.db)
		require.NoError(t, err, c.dsn)
		require.Equal(t, c.want, got)
	}

	_, err := WithDBName("", "geolife")
	require.Error(t, err)
	_, err = WithDBName("postgres://h/x", "")
	require.Error(t, err)
	_, err = WithDBName("mysql://h/x", "geolife")
	require.Error(t, err)
}

func TestActivityQuery(t *testing.T) {
	q, args := activityQuery(store.ActivityFilter{})
	require.Equal(t, "SELECT id, user_id, seq, transportation_mode, start_date_time, end_date_time FROM activities ORDER BY id", q)
	require.Empty(t, args)

	q, args = activityQuery(store.ActivityFilter{UserID: "112", Mode: "walk", Year: 2008})
	require.Contains(t, q, " WHERE user_id = $1 AND transportation_mode = $2 AND start_date_time >= $3 AND start_date_time < $4 ORDER BY id")
	require.Equal(t, []any{"112", "walk", time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC)}, args)

	q, args = activityQuery(store.ActivityFilter{HasMode: true})
	require.Contains(t, q, " WHERE transportation_mode IS NOT NULL ORDER BY id")
	require.Empty(t, args)
}

func TestTrackpointQuery(t *testing.T) {
	b := orb.Bound{Min: orb.Point{116.397, 39.916}, Max: orb.Point{116.398, 39.917}}
	q, args := trackpointQuery(store.TrackpointFilter{ActivityIDs: []int64{7}, Bound: &b})
	require.Contains(t, q, " WHERE activity_id = ANY($1) AND lat BETWEEN $2 AND $3 AND lon BETWEEN $4 AND $5 ORDER BY activity_id, seq")
	require.Equal(t, []any{[]int64{7}, 39.916, 39.917, 116.397, 116.398}, args)

	q, _ = trackpointQuery(store.TrackpointFilter{})
	require.True(t, len(q) > 0)
	require.NotContains(t, q, "WHERE")
	require.Contains(t, q, "ORDER BY activity_id, seq")
}
