package geolife

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func rawTrack(n int, start time.Time, step time.Duration) []RawPoint {
	pts := make([]RawPoint, n)
	for i := range pts {
		pts[i] = RawPoint{
			Lat:         39.9 + float64(i)*0.0001,
			Lon:         116.3 + float64(i)*0.0001,
			AltitudeRaw: 100 + float64(i),
			DateDays:    39744 + float64(i)/86400,
			Timestamp:   start.Add(time.Duration(i) * step),
		}
	}
	return pts
}

func TestBuilderBuildsActivityAndTrackpoints(t *testing.T) {
	start := time.Date(2008, 10, 23, 2, 53, 4, 0, time.UTC)
	raw := rawTrack(4, start, 5*time.Second)
	raw[2].AltitudeRaw = AltitudeUnknown

	user := User{ID: "010", HasLabels: true}
	file := ActivityFile{UserID: "010", Seq: "20081023025304"}
	labels := []LabelInterval{{UserID: "010", Start: start, End: start.Add(15 * time.Second), Mode: "walk"}}

	b := NewBuilder(NewLabelMatcher(0), DefaultMaxTrackpoints)
	built, ok, err := b.Build(user, file, raw, labels)
	require.NoError(t, err)
	require.True(t, ok)

	act := built.Activity
	require.Equal(t, int64(1020081023025304), act.ID)
	require.Equal(t, "010", act.UserID)
	require.Equal(t, start, act.StartTime)
	require.Equal(t, start.Add(15*time.Second), act.EndTime)
	require.NotNil(t, act.TransportationMode)
	require.Equal(t, "walk", act.Mode())

	require.Len(t, built.Trackpoints, 4)
	for i, tp := range built.Trackpoints {
		require.Equal(t, act.ID, tp.ActivityID)
		require.Equal(t, i, tp.Seq)
	}
	require.Nil(t, built.Trackpoints[2].Altitude, "sentinel altitude must become unknown")
	require.NotNil(t, built.Trackpoints[3].Altitude)
	require.Equal(t, 103.0, *built.Trackpoints[3].Altitude)
}

func TestBuilderSkipsLabelsForUnlabelledUsers(t *testing.T) {
	start := time.Date(2008, 10, 23, 2, 53, 4, 0, time.UTC)
	raw := rawTrack(2, start, time.Second)
	labels := []LabelInterval{{Start: start, End: start.Add(time.Second), Mode: "bus"}}

	built, ok, err := NewBuilder(nil, 0).Build(User{ID: "011"}, ActivityFile{Seq: "20081023025304"}, raw, labels)
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, built.Activity.TransportationMode)
}

func TestBuilderDropsOversizedActivities(t *testing.T) {
	start := time.Date(2008, 10, 23, 2, 53, 4, 0, time.UTC)
	b := NewBuilder(NewLabelMatcher(0), DefaultMaxTrackpoints)
	user := User{ID: "010"}
	file := ActivityFile{Seq: "20081023025304"}

	built, ok, err := b.Build(user, file, rawTrack(DefaultMaxTrackpoints+1, start, time.Second), nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, built.Trackpoints)

	_, ok, err = b.Build(user, file, rawTrack(DefaultMaxTrackpoints, start, time.Second), nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBuilderErrors(t *testing.T) {
	b := NewBuilder(nil, 10)
	_, ok, err := b.Build(User{ID: "010"}, ActivityFile{Seq: "20081023025304"}, nil, nil)
	require.False(t, ok)
	require.ErrorIs(t, err, ErrMalformedRecord)

	raw := rawTrack(2, time.Now(), time.Second)
	_, ok, err = b.Build(User{ID: "bob"}, ActivityFile{Seq: "20081023025304"}, raw, nil)
	require.False(t, ok)
	require.ErrorIs(t, err, ErrInvalidActivityID)
}
