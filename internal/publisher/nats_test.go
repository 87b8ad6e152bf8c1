package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"geolife-loader/internal/geolife"
	"geolife-loader/internal/loader"
)

func TestSubjectPrefix(t *testing.T) {
	cases := map[string]string{
		"geolife.ingest":    "geolife.ingest",
		" geolife.ingest. ": "geolife.ingest",
		"geo life.*.>":      "geo_life._._",
		"":                  "_",
		"a..b":              "a._.b",
	}
	for in, want := range cases {
		require.Equal(t, want, subjectPrefix(in), in)
	}
}

func TestFlushMessageJSON(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	msg := newFlushMessage("run-1", loader.FlushReport{Batch: 2, Activities: 10, Trackpoints: 990, Elapsed: 1500 * time.Millisecond, Rate: 666.7}, now)

	b, err := json.Marshal(msg)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"runId": "run-1",
		"batch": 2,
		"activities": 10,
		"trackpoints": 990,
		"elapsedMs": 1500,
		"recordsPerSecond": 666.7,
		"timestamp": "2024-03-01T11:00:00Z"
	}`, string(b))
}

func TestRunMessage(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := newRunMessage(geolife.Run{ID: "r", StartedAt: start, FinishedAt: start.Add(time.Hour), Users: 182, Activities: 16048, Trackpoints: 9681756, Oversized: 2300, Skipped: 1})
	require.Equal(t, "r", msg.RunID)
	require.Equal(t, 182, msg.Users)
	require.Equal(t, 9681756, msg.Trackpoints)
	require.Equal(t, start.Add(time.Hour), msg.FinishedAt)
}
