package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"geolife-loader/internal/geolife"
	"geolife-loader/internal/loader"
	"geolife-loader/internal/store"
	"geolife-loader/internal/store/memstore"
)

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}

const pltHeader = "Geolife trajectory\nWGS 84\nAltitude is in Feet\nReserved 3\n0,2,255,My Track,0,0,2,8421376\n0\n"

// writePlt writes n rows one second apart starting at 02:53:04 on 2008-10-23.
func writePlt(t *testing.T, path string, n int) {
	t.Helper()
	var b strings.Builder
	b.WriteString(pltHeader)
	start := time.Date(2008, 10, 23, 2, 53, 4, 0, time.UTC)
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * time.Second)
		fmt.Fprintf(&b, "39.984702,116.318417,0,492,39744.1201851852,%s\n", ts.Format("2006-01-02,15:04:05"))
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// fixture lays out:
//
//	000: unlabelled, one good file (3 rows), one oversized file (2501 rows)
//	010: labelled, one good file (4 rows) matching a walk label, one malformed file, one non-numeric name
//	020: listed as labelled but labels.txt is missing
//	030: unlabelled, one good file (2 rows) left for the final flush
func fixture(t *testing.T) *geolife.Dataset {
	root := t.TempDir()
	writePlt(t, filepath.Join(root, "000", "Trajectory", "20081023025304.plt"), 3)
	writePlt(t, filepath.Join(root, "000", "Trajectory", "20081024020959.plt"), 2501)

	writePlt(t, filepath.Join(root, "010", "Trajectory", "20081023025304.plt"), 4)
	writeFile(t, filepath.Join(root, "010", "Trajectory", "20081101000000.plt"), pltHeader+"not,a,row\n")
	writePlt(t, filepath.Join(root, "010", "Trajectory", "track.plt"), 2)
	writeFile(t, filepath.Join(root, "010", "labels.txt"),
		"Start Time\tEnd Time\tTransportation Mode\n2008/10/23 02:53:04\t2008/10/23 02:53:07\twalk\n")

	writePlt(t, filepath.Join(root, "020", "Trajectory", "20081023025304.plt"), 2)

	writePlt(t, filepath.Join(root, "030", "Trajectory", "20081025101010.plt"), 2)

	return geolife.NewDataset(root, map[string]bool{"010": true, "020": true})
}

type fakeMetrics struct {
	users     int
	built     map[string]int
	oversized int
	skipped   map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{built: map[string]int{}, skipped: map[string]int{}}
}

func (m *fakeMetrics) UserProcessed()           { m.users++ }
func (m *fakeMetrics) ActivityBuilt(res string) { m.built[res]++ }
func (m *fakeMetrics) Oversized()               { m.oversized++ }
func (m *fakeMetrics) Skipped(reason string)    { m.skipped[reason]++ }

type fakeNotifier struct {
	runID string
	runs  []geolife.Run
	err   error
}

func (n *fakeNotifier) SetRunID(id string) { n.runID = id }

func (n *fakeNotifier) PublishRun(_ context.Context, run geolife.Run) error {
	n.runs = append(n.runs, run)
	return n.err
}

func TestPipelineRun(t *testing.T) {
	ctx := context.Background()
	logger := log.New(testWriter{t}, "", 0)
	st := memstore.New()
	ld := loader.New(st, 5, loader.WithLogger(logger))
	m := newFakeMetrics()
	n := &fakeNotifier{err: fmt.Errorf("nats down")}

	p := New(fixture(t), geolife.NewBuilder(geolife.NewLabelMatcher(0), 2500), st, ld,
		WithLogger(logger), WithMetrics(m), WithRunNotifier(n))
	run, err := p.Run(ctx)
	require.NoError(t, err)

	_, err = uuid.Parse(run.ID)
	require.NoError(t, err)
	require.Equal(t, run.ID, n.runID)
	require.Len(t, n.runs, 1)

	require.Equal(t, 4, run.Users)
	require.Equal(t, 3, run.Activities)
	require.Equal(t, 9, run.Trackpoints)
	require.Equal(t, 1, run.Oversized)
	require.Equal(t, 3, run.Skipped)
	require.False(t, run.FinishedAt.Before(run.StartedAt))

	users, err := st.CountUsers(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 4, users)
	acts, err := st.CountActivities(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, acts)
	tps, err := st.CountTrackpoints(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 9, tps)

	tot := ld.Totals()
	require.Equal(t, tot.AppendedActivities, tot.FlushedActivities)
	require.Equal(t, tot.AppendedTrackpoints, tot.FlushedTrackpoints)
	require.Zero(t, ld.Pending())
	// 000 and 010 cross the threshold together; 030 is written by the final flush.
	require.Equal(t, 2, tot.Flushes)

	modes := map[string]string{}
	require.NoError(t, st.ScanActivities(ctx, store.ActivityFilter{}, func(a geolife.Activity) error {
		modes[a.UserID] = a.Mode()
		return nil
	}))
	require.Equal(t, map[string]string{"000": "", "010": "walk", "030": ""}, modes)

	perUser := map[string]int{}
	for user := range modes {
		ids := []int64{}
		require.NoError(t, st.ScanActivities(ctx, store.ActivityFilter{UserID: user}, func(a geolife.Activity) error {
			ids = append(ids, a.ID)
			return nil
		}))
		perActivity := map[int64]int{}
		require.NoError(t, st.ScanTrackpoints(ctx, store.TrackpointFilter{ActivityIDs: ids}, func(tp geolife.Trackpoint) error {
			perActivity[tp.ActivityID]++
			perUser[user]++
			return nil
		}))
		require.Len(t, perActivity, len(ids))
		for _, n := range perActivity {
			require.LessOrEqual(t, n, 2500)
		}
	}
	require.Equal(t, map[string]int{"000": 3, "010": 4, "030": 2}, perUser)

	latest, ok, err := st.LatestRun(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, run.ID, latest.ID)

	require.Equal(t, 4, m.users)
	require.Equal(t, 1, m.oversized)
	require.Equal(t, map[string]int{LabelMatched: 1, LabelUnlabelled: 2}, m.built)
	require.Equal(t, map[string]int{SkipParse: 1, SkipID: 1, SkipLabels: 1}, m.skipped)
}

func TestPipelineProgressBar(t *testing.T) {
	st := memstore.New()
	logger := log.New(testWriter{t}, "", 0)
	var out strings.Builder
	p := New(fixture(t), geolife.NewBuilder(nil, 0), st, loader.New(st, 100, loader.WithLogger(logger)),
		WithLogger(logger), WithProgress(&out))

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, out.String(), "Loading users")
}

func TestPipelineMissingDataDir(t *testing.T) {
	st := memstore.New()
	p := New(geolife.NewDataset(filepath.Join(t.TempDir(), "nope"), nil), geolife.NewBuilder(nil, 0), st,
		loader.New(st, 10), WithLogger(log.New(testWriter{t}, "", 0)))

	_, err := p.Run(context.Background())
	require.Error(t, err)
	_, ok, err := st.LatestRun(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPipelineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st := memstore.New()
	logger := log.New(testWriter{t}, "", 0)
	p := New(fixture(t), geolife.NewBuilder(nil, 0), st, loader.New(st, 10, loader.WithLogger(logger)), WithLogger(logger))

	run, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, run.Activities)
}

type failingSink struct {
	*memstore.Store
}

func (failingSink) InsertTrackpoints(context.Context, []geolife.Trackpoint) error {
	return fmt.Errorf("disk full")
}

func TestPipelineFlushFailureAborts(t *testing.T) {
	st := memstore.New()
	logger := log.New(testWriter{t}, "", 0)
	ld := loader.New(failingSink{st}, 1, loader.WithLogger(logger))
	p := New(fixture(t), geolife.NewBuilder(nil, 0), st, ld, WithLogger(logger))

	_, err := p.Run(context.Background())
	require.ErrorContains(t, err, "disk full")
	_, ok, err := st.LatestRun(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}
