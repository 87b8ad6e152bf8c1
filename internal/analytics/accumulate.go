package analytics

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"geolife-loader/internal/geo"
	"geolife-loader/internal/geolife"
)

// ErrUnordered is returned when trackpoints do not arrive ordered by (activity_id, seq).
var ErrUnordered = errors.New("trackpoints not ordered by activity and sequence")

// pairWalker yields consecutive trackpoint pairs that belong to the same activity.
// A change of activity starts a new chain; the crossing pair is never compared.
type pairWalker struct {
	prev geolife.Trackpoint
	has  bool
}

func (w *pairWalker) step(tp geolife.Trackpoint) (prev geolife.Trackpoint, paired bool, err error) {
	defer func() {
		if err == nil {
			w.prev, w.has = tp, true
		}
	}()
	if !w.has {
		return geolife.Trackpoint{}, false, nil
	}
	switch {
	case tp.ActivityID < w.prev.ActivityID:
		return geolife.Trackpoint{}, false, fmt.Errorf("%w: activity %d after %d", ErrUnordered, tp.ActivityID, w.prev.ActivityID)
	case tp.ActivityID > w.prev.ActivityID:
		return geolife.Trackpoint{}, false, nil
	case tp.Seq <= w.prev.Seq:
		return geolife.Trackpoint{}, false, fmt.Errorf("%w: activity %d seq %d after %d", ErrUnordered, tp.ActivityID, tp.Seq, w.prev.Seq)
	}
	return w.prev, true, nil
}

// Owners maps activity ids to user ids.
type Owners map[int64]string

// AltitudeGain sums positive altitude deltas per user. Pairs with an unknown altitude are skipped.
type AltitudeGain struct {
	owners Owners
	walker pairWalker
	totals map[string]float64
}

func NewAltitudeGain(owners Owners) *AltitudeGain {
	return &AltitudeGain{owners: owners, totals: make(map[string]float64)}
}

func (a *AltitudeGain) Add(tp geolife.Trackpoint) error {
	prev, ok, err := a.walker.step(tp)
	if err != nil || !ok {
		return err
	}
	if prev.Altitude == nil || tp.Altitude == nil {
		return nil
	}
	user, known := a.owners[tp.ActivityID]
	if !known {
		return nil
	}
	if d := *tp.Altitude - *prev.Altitude; d > 0 {
		a.totals[user] += d
	}
	return nil
}

// Totals returns the accumulated gain per user in the unit of the stored altitudes.
func (a *AltitudeGain) Totals() map[string]float64 { return a.totals }

// InvalidActivities flags activities that contain a gap strictly longer than the limit
// between consecutive trackpoints. Each activity is counted once.
type InvalidActivities struct {
	gap     time.Duration
	owners  Owners
	walker  pairWalker
	flagged map[string]map[int64]struct{}
}

func NewInvalidActivities(owners Owners, gap time.Duration) *InvalidActivities {
	return &InvalidActivities{gap: gap, owners: owners, flagged: make(map[string]map[int64]struct{})}
}

func (v *InvalidActivities) Add(tp geolife.Trackpoint) error {
	prev, ok, err := v.walker.step(tp)
	if err != nil || !ok {
		return err
	}
	if tp.Timestamp.Sub(prev.Timestamp) <= v.gap {
		return nil
	}
	user, known := v.owners[tp.ActivityID]
	if !known {
		return nil
	}
	set := v.flagged[user]
	if set == nil {
		set = make(map[int64]struct{})
		v.flagged[user] = set
	}
	set[tp.ActivityID] = struct{}{}
	return nil
}

// Counts returns the number of distinct invalid activities per user.
func (v *InvalidActivities) Counts() map[string]int {
	out := make(map[string]int, len(v.flagged))
	for u, set := range v.flagged {
		out[u] = len(set)
	}
	return out
}

// Distance sums haversine distances between consecutive same-activity trackpoints.
type Distance struct {
	walker pairWalker
	km     float64
}

func (d *Distance) Add(tp geolife.Trackpoint) error {
	prev, ok, err := d.walker.step(tp)
	if err != nil || !ok {
		return err
	}
	d.km += geo.Haversine(prev.Lat, prev.Lon, tp.Lat, tp.Lon)
	return nil
}

func (d *Distance) Km() float64 { return d.km }

// modeCounter counts modes and remembers first-seen order for tie breaks.
type modeCounter struct {
	order  []string
	counts map[string]int
}

func (m *modeCounter) add(mode string) {
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	if _, seen := m.counts[mode]; !seen {
		m.order = append(m.order, mode)
	}
	m.counts[mode]++
}

// top returns the most frequent mode. On a tie the mode seen first wins.
func (m *modeCounter) top() (string, int) {
	var best string
	n := 0
	for _, k := range m.order {
		if c := m.counts[k]; c > n {
			best, n = k, c
		}
	}
	return best, n
}

// MostUsedMode returns the most frequent value of modes, preferring the earliest on ties.
func MostUsedMode(modes []string) (string, int) {
	var m modeCounter
	for _, mode := range modes {
		m.add(mode)
	}
	return m.top()
}

type ranked[V cmp.Ordered] struct {
	Key   string
	Value V
}

// topK sorts by value descending then key ascending and keeps n entries. n <= 0 keeps all.
func topK[V cmp.Ordered](m map[string]V, n int) []ranked[V] {
	out := make([]ranked[V], 0, len(m))
	for k, v := range m {
		out = append(out, ranked[V]{k, v})
	}
	slices.SortFunc(out, func(a, b ranked[V]) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
