package geolife

import "time"

// LabelMatcher assigns a ground-truth transportation mode to an activity span.
type LabelMatcher struct {
	tolerance time.Duration
}

// NewLabelMatcher builds a matcher. A zero tolerance requires exact timestamp equality.
func NewLabelMatcher(tolerance time.Duration) *LabelMatcher {
	if tolerance < 0 {
		tolerance = -tolerance
	}
	return &LabelMatcher{tolerance: tolerance}
}

// Match scans labels in file order and returns the mode of the first interval whose start and
// end both lie within tolerance of the activity's start and end.
func (m *LabelMatcher) Match(start, end time.Time, labels []LabelInterval) (string, bool) {
	for _, l := range labels {
		if within(l.Start, start, m.tolerance) && within(l.End, end, m.tolerance) {
			return l.Mode, true
		}
	}
	return "", false
}

func within(t, ref time.Time, tol time.Duration) bool {
	return !t.Before(ref.Add(-tol)) && !t.After(ref.Add(tol))
}
