// Package pgstore stores GeoLife entities in PostgreSQL through a pgx pool.
// Bulk writes use COPY.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"geolife-loader/internal/geolife"
	"geolife-loader/internal/store"
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Open builds a pool and pings it so that connection problems surface before ingestion starts.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id          TEXT PRIMARY KEY,
    has_labels  BOOLEAN NOT NULL,
    path        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS activities (
    id                  BIGINT PRIMARY KEY,
    user_id             TEXT NOT NULL REFERENCES users (id),
    seq                 TEXT NOT NULL,
    transportation_mode TEXT,
    start_date_time     TIMESTAMPTZ NOT NULL,
    end_date_time       TIMESTAMPTZ NOT NULL,
    UNIQUE (user_id, seq)
);
CREATE INDEX IF NOT EXISTS activities_user_mode_idx ON activities (user_id, transportation_mode);
CREATE TABLE IF NOT EXISTS trackpoints (
    activity_id BIGINT NOT NULL REFERENCES activities (id),
    seq         INTEGER NOT NULL,
    lat         DOUBLE PRECISION NOT NULL,
    lon         DOUBLE PRECISION NOT NULL,
    altitude    DOUBLE PRECISION,
    date_days   DOUBLE PRECISION NOT NULL,
    date_time   TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (activity_id, seq)
);
CREATE INDEX IF NOT EXISTS trackpoints_lat_lon_idx ON trackpoints (lat, lon);
CREATE TABLE IF NOT EXISTS ingest_runs (
    id          TEXT PRIMARY KEY,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    users       INTEGER NOT NULL,
    activities  INTEGER NOT NULL,
    trackpoints INTEGER NOT NULL,
    oversized   INTEGER NOT NULL,
    skipped     INTEGER NOT NULL
);`

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Drop(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS trackpoints, activities, users, ingest_runs`); err != nil {
		return fmt.Errorf("drop tables: %w", err)
	}
	return nil
}

func (s *Store) copy(ctx context.Context, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := s.pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("copy into %s: %w: %v", table, store.ErrDuplicate, err)
		}
		return fmt.Errorf("copy into %s: %w", table, err)
	}
	return nil
}

func (s *Store) InsertUsers(ctx context.Context, users []geolife.User) error {
	rows := make([][]any, len(users))
	for i, u := range users {
		rows[i] = []any{u.ID, u.HasLabels, u.SourcePath}
	}
	return s.copy(ctx, "users", []string{"id", "has_labels", "path"}, rows)
}

func (s *Store) InsertActivities(ctx context.Context, acts []geolife.Activity) error {
	rows := make([][]any, len(acts))
	for i, a := range acts {
		rows[i] = []any{a.ID, a.UserID, a.Seq, a.TransportationMode, a.StartTime, a.EndTime}
	}
	return s.copy(ctx, "activities",
		[]string{"id", "user_id", "seq", "transportation_mode", "start_date_time", "end_date_time"}, rows)
}

func (s *Store) InsertTrackpoints(ctx context.Context, tps []geolife.Trackpoint) error {
	rows := make([][]any, len(tps))
	for i, tp := range tps {
		rows[i] = []any{tp.ActivityID, int32(tp.Seq), tp.Lat, tp.Lon, tp.Altitude, tp.DateDays, tp.Timestamp}
	}
	return s.copy(ctx, "trackpoints",
		[]string{"activity_id", "seq", "lat", "lon", "altitude", "date_days", "date_time"}, rows)
}

func (s *Store) RecordRun(ctx context.Context, run geolife.Run) error {
	const q = `INSERT INTO ingest_runs (id, started_at, finished_at, users, activities, trackpoints, oversized, skipped)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := s.pool.Exec(ctx, q, run.ID, run.StartedAt, run.FinishedAt, run.Users, run.Activities, run.Trackpoints, run.Oversized, run.Skipped)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM "+pgx.Identifier{table}.Sanitize()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error)       { return s.count(ctx, "users") }
func (s *Store) CountActivities(ctx context.Context) (int64, error)  { return s.count(ctx, "activities") }
func (s *Store) CountTrackpoints(ctx context.Context) (int64, error) { return s.count(ctx, "trackpoints") }

// where accumulates numbered predicates.
type where struct {
	preds []string
	args  []any
}

func (w *where) add(pred string, args ...any) {
	for _, a := range args {
		w.args = append(w.args, a)
		pred = strings.Replace(pred, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.preds = append(w.preds, pred)
}

func (w *where) String() string {
	if len(w.preds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.preds, " AND ")
}

func activityQuery(f store.ActivityFilter) (string, []any) {
	var w where
	if f.UserID != "" {
		w.add("user_id = ?", f.UserID)
	}
	switch {
	case f.Mode != "":
		w.add("transportation_mode = ?", f.Mode)
	case f.HasMode:
		w.add("transportation_mode IS NOT NULL")
	}
	if f.Year != 0 {
		from, to := f.YearRange()
		w.add("start_date_time >= ? AND start_date_time < ?", from, to)
	}
	return `SELECT id, user_id, seq, transportation_mode, start_date_time, end_date_time FROM activities` +
		w.String() + ` ORDER BY id`, w.args
}

func trackpointQuery(f store.TrackpointFilter) (string, []any) {
	var w where
	if f.ActivityIDs != nil {
		w.add("activity_id = ANY(?)", f.ActivityIDs)
	}
	if f.Bound != nil {
		w.add("lat BETWEEN ? AND ?", f.Bound.Min.Lat(), f.Bound.Max.Lat())
		w.add("lon BETWEEN ? AND ?", f.Bound.Min.Lon(), f.Bound.Max.Lon())
	}
	return `SELECT activity_id, seq, lat, lon, altitude, date_days, date_time FROM trackpoints` +
		w.String() + ` ORDER BY activity_id, seq`, w.args
}

func (s *Store) ScanActivities(ctx context.Context, f store.ActivityFilter, fn func(geolife.Activity) error) error {
	q, args := activityQuery(f)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a geolife.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.Seq, &a.TransportationMode, &a.StartTime, &a.EndTime); err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) ScanTrackpoints(ctx context.Context, f store.TrackpointFilter, fn func(geolife.Trackpoint) error) error {
	if f.ActivityIDs != nil && len(f.ActivityIDs) == 0 {
		return nil
	}
	q, args := trackpointQuery(f)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("query trackpoints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tp geolife.Trackpoint
		var seq int32
		if err := rows.Scan(&tp.ActivityID, &seq, &tp.Lat, &tp.Lon, &tp.Altitude, &tp.DateDays, &tp.Timestamp); err != nil {
			return err
		}
		tp.Seq = int(seq)
		if err := fn(tp); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) LatestRun(ctx context.Context) (geolife.Run, bool, error) {
	const q = `SELECT id, started_at, finished_at, users, activities, trackpoints, oversized, skipped
        FROM ingest_runs ORDER BY started_at DESC LIMIT 1`
	var r geolife.Run
	err := s.pool.QueryRow(ctx, q).Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Users, &r.Activities, &r.Trackpoints, &r.Oversized, &r.Skipped)
	if errors.Is(err, pgx.ErrNoRows) {
		return geolife.Run{}, false, nil
	}
	if err != nil {
		return geolife.Run{}, false, fmt.Errorf("latest run: %w", err)
	}
	return r, true, nil
}
