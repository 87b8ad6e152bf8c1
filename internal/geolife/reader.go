// Package geolife reads GeoLife trajectory datasets and turns them into activities and trackpoints.
package geolife

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	trajectoryHeaderLines = 6
	trajectoryTimeLayout  = "2006-01-02 15:04:05"
	labelTimeLayout       = "2006/01/02 15:04:05"
)

var (
	// ErrMalformedRecord is returned when a trajectory or label row cannot be parsed.
	ErrMalformedRecord = errors.New("malformed record")
)

// ReadTrajectoryFile parses a .plt trajectory file.
func ReadTrajectoryFile(path string, loc *time.Location) ([]RawPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trajectory: %w", err)
	}
	defer f.Close()
	pts, err := ReadTrajectory(f, loc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pts, nil
}

// ReadTrajectory parses trajectory rows in file order after the fixed 6-line header.
// Row layout: lat,lon,unused,altitude,date_days,date,time.
func ReadTrajectory(r io.Reader, loc *time.Location) ([]RawPoint, error) {
	if loc == nil {
		loc = time.UTC
	}
	sc := bufio.NewScanner(r)
	var pts []RawPoint
	line := 0
	for sc.Scan() {
		line++
		if line <= trajectoryHeaderLines {
			continue
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		p, err := parseTrajectoryRow(text, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		pts = append(pts, p)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return pts, nil
}

func parseTrajectoryRow(text string, loc *time.Location) (RawPoint, error) {
	fields := strings.Split(text, ",")
	if len(fields) < 7 {
		return RawPoint{}, fmt.Errorf("%w: want 7 fields, got %d", ErrMalformedRecord, len(fields))
	}
	var p RawPoint
	var err error
	if p.Lat, err = parseFloatField(fields[0], "lat"); err != nil {
		return RawPoint{}, err
	}
	if p.Lon, err = parseFloatField(fields[1], "lon"); err != nil {
		return RawPoint{}, err
	}
	if p.AltitudeRaw, err = parseFloatField(fields[3], "altitude"); err != nil {
		return RawPoint{}, err
	}
	if p.DateDays, err = parseFloatField(fields[4], "date_days"); err != nil {
		return RawPoint{}, err
	}
	stamp := strings.TrimSpace(fields[5]) + " " + strings.TrimSpace(fields[6])
	p.Timestamp, err = time.ParseInLocation(trajectoryTimeLayout, stamp, loc)
	if err != nil {
		return RawPoint{}, fmt.Errorf("%w: timestamp %q: %v", ErrMalformedRecord, stamp, err)
	}
	return p, nil
}

func parseFloatField(s, name string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrMalformedRecord, name, s)
	}
	return v, nil
}

// ReadLabelFile parses a user's labels.txt.
func ReadLabelFile(path, userID string, loc *time.Location) ([]LabelInterval, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()
	labels, err := ReadLabels(f, userID, loc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return labels, nil
}

// ReadLabels parses a tab separated label table with a
// "Start Time / End Time / Transportation Mode" header row.
func ReadLabels(r io.Reader, userID string, loc *time.Location) ([]LabelInterval, error) {
	if loc == nil {
		loc = time.UTC
	}
	sc := bufio.NewScanner(r)
	var out []LabelInterval
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || (line == 1 && strings.HasPrefix(text, "Start Time")) {
			continue
		}
		start, end, mode, err := splitLabelRow(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		st, err := time.ParseInLocation(labelTimeLayout, start, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: start %q", line, ErrMalformedRecord, start)
		}
		et, err := time.ParseInLocation(labelTimeLayout, end, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: end %q", line, ErrMalformedRecord, end)
		}
		out = append(out, LabelInterval{UserID: userID, Start: st, End: et, Mode: mode})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func splitLabelRow(text string) (start, end, mode string, err error) {
	if parts := strings.Split(text, "\t"); len(parts) == 3 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]), nil
	}
	// date time date time mode
	fields := strings.Fields(text)
	if len(fields) != 5 {
		return "", "", "", fmt.Errorf("%w: label row %q", ErrMalformedRecord, text)
	}
	return fields[0] + " " + fields[1], fields[2] + " " + fields[3], fields[4], nil
}

// ReadLabeledIDs reads the newline separated list of users that ship a labels file.
func ReadLabeledIDs(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labeled ids: %w", err)
	}
	defer f.Close()

	ids := make(map[string]bool)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			ids[id] = true
		}
	}
	return ids, sc.Err()
}
