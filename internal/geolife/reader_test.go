package geolife

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const trajectoryHeader = `Geolife trajectory
WGS 84
Altitude is in Feet
Reserved 3
0,2,255,My Track,0,0,2,8421376
0
`

func TestReadTrajectorySkipsHeaderAndKeepsOrder(t *testing.T) {
	body := trajectoryHeader +
		"39.984702,116.318417,0,492,39744.1201851852,2008-10-23,02:53:04\n" +
		"39.984683,116.31845,0,-777,39744.1202546296,2008-10-23,02:53:10\n" +
		"\n" +
		"39.984686,116.318417,0,491,39744.1203125,2008-10-23,02:53:15\n"

	pts, err := ReadTrajectory(strings.NewReader(body), time.UTC)
	require.NoError(t, err)
	require.Len(t, pts, 3)

	require.InDelta(t, 39.984702, pts[0].Lat, 1e-9)
	require.InDelta(t, 116.318417, pts[0].Lon, 1e-9)
	require.Equal(t, 492.0, pts[0].AltitudeRaw)
	require.Equal(t, float64(AltitudeUnknown), pts[1].AltitudeRaw)
	require.InDelta(t, 39744.1203125, pts[2].DateDays, 1e-9)
	require.Equal(t, time.Date(2008, 10, 23, 2, 53, 4, 0, time.UTC), pts[0].Timestamp)
	require.Equal(t, time.Date(2008, 10, 23, 2, 53, 15, 0, time.UTC), pts[2].Timestamp)
}

func TestReadTrajectoryRejectsMalformedRows(t *testing.T) {
	cases := map[string]string{
		"short row":    "39.9,116.3,0,492\n",
		"bad latitude": "north,116.3,0,492,39744.1,2008-10-23,02:53:04\n",
		"bad time":     "39.9,116.3,0,492,39744.1,2008-10-23,25:99:00\n",
	}
	for name, row := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadTrajectory(strings.NewReader(trajectoryHeader+row), time.UTC)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrMalformedRecord))
			require.Contains(t, err.Error(), "line 7")
		})
	}
}

func TestReadTrajectoryHeaderOnly(t *testing.T) {
	pts, err := ReadTrajectory(strings.NewReader(trajectoryHeader), time.UTC)
	require.NoError(t, err)
	require.Empty(t, pts)
}

func TestReadTrajectoryFileMissing(t *testing.T) {
	_, err := ReadTrajectoryFile(filepath.Join(t.TempDir(), "nope.plt"), time.UTC)
	require.Error(t, err)
}

func TestReadLabels(t *testing.T) {
	body := "Start Time\tEnd Time\tTransportation Mode\n" +
		"2007/06/26 11:32:29\t2007/06/26 11:40:29\tbus\n" +
		"2008/03/28 14:52:54\t2008/03/28 15:59:59\ttrain\n"

	labels, err := ReadLabels(strings.NewReader(body), "010", time.UTC)
	require.NoError(t, err)
	require.Len(t, labels, 2)
	require.Equal(t, LabelInterval{
		UserID: "010",
		Start:  time.Date(2007, 6, 26, 11, 32, 29, 0, time.UTC),
		End:    time.Date(2007, 6, 26, 11, 40, 29, 0, time.UTC),
		Mode:   "bus",
	}, labels[0])
	require.Equal(t, "train", labels[1].Mode)
}

func TestReadLabelsWhitespaceFallback(t *testing.T) {
	body := "Start Time End Time Transportation Mode\n" +
		"2007/06/26 11:32:29   2007/06/26 11:40:29   walk\n"

	labels, err := ReadLabels(strings.NewReader(body), "010", time.UTC)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	require.Equal(t, "walk", labels[0].Mode)
}

func TestReadLabelsMalformed(t *testing.T) {
	body := "Start Time\tEnd Time\tTransportation Mode\n" +
		"yesterday\t2007/06/26 11:40:29\tbus\n"
	_, err := ReadLabels(strings.NewReader(body), "010", time.UTC)
	require.ErrorIs(t, err, ErrMalformedRecord)
}

func TestReadLabeledIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labeled_ids.txt")
	require.NoError(t, os.WriteFile(path, []byte("010\n020\n\n  085 \n"), 0o644))

	ids, err := ReadLabeledIDs(path)
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"010": true, "020": true, "085": true}, ids)
}
