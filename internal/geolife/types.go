package geolife

import "time"

// AltitudeUnknown is the raw altitude value GeoLife writes when no reading exists.
const AltitudeUnknown = -777

type User struct {
	ID         string
	HasLabels  bool
	SourcePath string // user directory on disk
}

type LabelInterval struct {
	UserID string
	Start  time.Time
	End    time.Time
	Mode   string
}

type Activity struct {
	ID                 int64
	UserID             string
	Seq                string  // trajectory file stem, e.g. 20081023025304
	TransportationMode *string // nil when no label matched
	StartTime          time.Time
	EndTime            time.Time
}

// Mode returns the transportation mode or "" when unlabelled.
func (a Activity) Mode() string {
	if a.TransportationMode == nil {
		return ""
	}
	return *a.TransportationMode
}

// Duration is the recorded span of the activity.
func (a Activity) Duration() time.Duration { return a.EndTime.Sub(a.StartTime) }

type Trackpoint struct {
	ActivityID int64
	Seq        int // 0-based row order within the trajectory file
	Lat        float64
	Lon        float64
	Altitude   *float64 // nil when the raw value was the -777 sentinel
	DateDays   float64  // days since 1899-12-30, as recorded
	Timestamp  time.Time
}

// RawPoint is one parsed trajectory row before it is attached to an activity.
type RawPoint struct {
	Lat         float64
	Lon         float64
	AltitudeRaw float64
	DateDays    float64
	Timestamp   time.Time
}

// Run summarises one ingestion pass.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time
	Users       int
	Activities  int
	Trackpoints int
	Oversized   int
	Skipped     int
}
