package geolife

import "fmt"

// DefaultMaxTrackpoints is the largest trajectory kept as an activity.
const DefaultMaxTrackpoints = 2500

// Built is a validated activity together with its ordered trackpoints.
type Built struct {
	Activity    Activity
	Trackpoints []Trackpoint
}

// Builder turns parsed trajectory rows into activities.
type Builder struct {
	matcher        *LabelMatcher
	maxTrackpoints int
}

func NewBuilder(matcher *LabelMatcher, maxTrackpoints int) *Builder {
	if matcher == nil {
		matcher = NewLabelMatcher(0)
	}
	if maxTrackpoints <= 0 {
		maxTrackpoints = DefaultMaxTrackpoints
	}
	return &Builder{matcher: matcher, maxTrackpoints: maxTrackpoints}
}

// Build returns ok=false with a nil error when the trajectory is over the size limit;
// such activities are dropped whole. Labels are consulted only for users that have them.
func (b *Builder) Build(u User, f ActivityFile, raw []RawPoint, labels []LabelInterval) (Built, bool, error) {
	if len(raw) > b.maxTrackpoints {
		return Built{}, false, nil
	}
	if len(raw) == 0 {
		return Built{}, false, fmt.Errorf("%s: %w: no trackpoints", f.Path, ErrMalformedRecord)
	}
	id, err := ActivityID(u.ID, f.Seq)
	if err != nil {
		return Built{}, false, fmt.Errorf("%s: %w", f.Path, err)
	}

	act := Activity{
		ID:        id,
		UserID:    u.ID,
		Seq:       f.Seq,
		StartTime: raw[0].Timestamp,
		EndTime:   raw[len(raw)-1].Timestamp,
	}
	if u.HasLabels && len(labels) > 0 {
		if mode, ok := b.matcher.Match(act.StartTime, act.EndTime, labels); ok {
			act.TransportationMode = &mode
		}
	}

	tps := make([]Trackpoint, len(raw))
	for i, r := range raw {
		tps[i] = Trackpoint{
			ActivityID: id,
			Seq:        i,
			Lat:        r.Lat,
			Lon:        r.Lon,
			Altitude:   normalizeAltitude(r.AltitudeRaw),
			DateDays:   r.DateDays,
			Timestamp:  r.Timestamp,
		}
	}
	return Built{Activity: act, Trackpoints: tps}, true, nil
}

func normalizeAltitude(v float64) *float64 {
	if v == AltitudeUnknown {
		return nil
	}
	return &v
}
