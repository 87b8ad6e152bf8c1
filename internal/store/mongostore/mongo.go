// Package mongostore stores GeoLife entities in MongoDB collections user, activity, trackpoint and ingest_run.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"geolife-loader/internal/geolife"
	"geolife-loader/internal/store"
)

const (
	userCollection       = "user"
	activityCollection   = "activity"
	trackpointCollection = "trackpoint"
	runCollection        = "ingest_run"

	scanBatchSize = 10000
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Store = (*Store)(nil)

// Open connects and pings the server so that a bad URI fails before any work starts.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

type userDoc struct {
	ID        string   `bson:"id"`
	HasLabels bool     `bson:"has_labels"`
	Meta      userMeta `bson:"meta"`
}

type userMeta struct {
	Path string `bson:"path"`
}

type activityDoc struct {
	ID                 int64     `bson:"id"`
	UserID             string    `bson:"user_id"`
	Seq                string    `bson:"seq"`
	TransportationMode *string   `bson:"transportation_mode"`
	StartDateTime      time.Time `bson:"start_date_time"`
	EndDateTime        time.Time `bson:"end_date_time"`
}

type trackpointDoc struct {
	ActivityID int64     `bson:"activity_id"`
	Seq        int       `bson:"seq"`
	Lat        float64   `bson:"lat"`
	Lon        float64   `bson:"lon"`
	Altitude   *float64  `bson:"altitude"`
	DateDays   float64   `bson:"date_days"`
	DateTime   time.Time `bson:"date_time"`
}

type runDoc struct {
	ID          string    `bson:"id"`
	StartedAt   time.Time `bson:"started_at"`
	FinishedAt  time.Time `bson:"finished_at"`
	Users       int       `bson:"users"`
	Activities  int       `bson:"activities"`
	Trackpoints int       `bson:"trackpoints"`
	Oversized   int       `bson:"oversized"`
	Skipped     int       `bson:"skipped"`
}

// Migrate creates the indexes the scans rely on. The unique keys make a repeated ingestion fail fast.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		userCollection: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		activityCollection: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "transportation_mode", Value: 1}}},
		},
		trackpointCollection: {
			{Keys: bson.D{{Key: "activity_id", Value: 1}, {Key: "seq", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "lat", Value: 1}, {Key: "lon", Value: 1}}},
		},
		runCollection: {
			{Keys: bson.D{{Key: "started_at", Value: -1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

func (s *Store) Drop(ctx context.Context) error {
	for _, coll := range []string{userCollection, activityCollection, trackpointCollection, runCollection} {
		if err := s.db.Collection(coll).Drop(ctx); err != nil {
			return fmt.Errorf("drop %s: %w", coll, err)
		}
	}
	return nil
}

func (s *Store) insert(ctx context.Context, coll string, docs []interface{}) error {
	if len(docs) == 0 {
		return nil
	}
	if _, err := s.db.Collection(coll).InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert into %s: %w: %v", coll, store.ErrDuplicate, err)
		}
		return fmt.Errorf("insert into %s: %w", coll, err)
	}
	return nil
}

func (s *Store) InsertUsers(ctx context.Context, users []geolife.User) error {
	docs := make([]interface{}, len(users))
	for i, u := range users {
		docs[i] = userDoc{ID: u.ID, HasLabels: u.HasLabels, Meta: userMeta{Path: u.SourcePath}}
	}
	return s.insert(ctx, userCollection, docs)
}

func (s *Store) InsertActivities(ctx context.Context, acts []geolife.Activity) error {
	docs := make([]interface{}, len(acts))
	for i, a := range acts {
		docs[i] = activityDoc{
			ID:                 a.ID,
			UserID:             a.UserID,
			Seq:                a.Seq,
			TransportationMode: a.TransportationMode,
			StartDateTime:      a.StartTime,
			EndDateTime:        a.EndTime,
		}
	}
	return s.insert(ctx, activityCollection, docs)
}

func (s *Store) InsertTrackpoints(ctx context.Context, tps []geolife.Trackpoint) error {
	docs := make([]interface{}, len(tps))
	for i, tp := range tps {
		docs[i] = trackpointDoc{
			ActivityID: tp.ActivityID,
			Seq:        tp.Seq,
			Lat:        tp.Lat,
			Lon:        tp.Lon,
			Altitude:   tp.Altitude,
			DateDays:   tp.DateDays,
			DateTime:   tp.Timestamp,
		}
	}
	return s.insert(ctx, trackpointCollection, docs)
}

func (s *Store) RecordRun(ctx context.Context, run geolife.Run) error {
	_, err := s.db.Collection(runCollection).InsertOne(ctx, runDoc(run))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) count(ctx context.Context, coll string) (int64, error) {
	n, err := s.db.Collection(coll).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", coll, err)
	}
	return n, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) { return s.count(ctx, userCollection) }
func (s *Store) CountActivities(ctx context.Context) (int64, error) {
	return s.count(ctx, activityCollection)
}
func (s *Store) CountTrackpoints(ctx context.Context) (int64, error) {
	return s.count(ctx, trackpointCollection)
}

func activityQuery(f store.ActivityFilter) bson.D {
	q := bson.D{}
	if f.UserID != "" {
		q = append(q, bson.E{Key: "user_id", Value: f.UserID})
	}
	switch {
	case f.Mode != "":
		q = append(q, bson.E{Key: "transportation_mode", Value: f.Mode})
	case f.HasMode:
		q = append(q, bson.E{Key: "transportation_mode", Value: bson.M{"$ne": nil}})
	}
	if f.Year != 0 {
		from, to := f.YearRange()
		q = append(q, bson.E{Key: "start_date_time", Value: bson.M{"$gte": from, "$lt": to}})
	}
	return q
}

func trackpointQuery(f store.TrackpointFilter) bson.D {
	q := bson.D{}
	if f.ActivityIDs != nil {
		q = append(q, bson.E{Key: "activity_id", Value: bson.M{"$in": f.ActivityIDs}})
	}
	if f.Bound != nil {
		q = append(q,
			bson.E{Key: "lat", Value: bson.M{"$gte": f.Bound.Min.Lat(), "$lte": f.Bound.Max.Lat()}},
			bson.E{Key: "lon", Value: bson.M{"$gte": f.Bound.Min.Lon(), "$lte": f.Bound.Max.Lon()}},
		)
	}
	return q
}

func (s *Store) ScanActivities(ctx context.Context, f store.ActivityFilter, fn func(geolife.Activity) error) error {
	opts := options.Find().SetSort(bson.D{{Key: "id", Value: 1}}).SetBatchSize(scanBatchSize)
	cursor, err := s.db.Collection(activityCollection).Find(ctx, activityQuery(f), opts)
	if err != nil {
		return fmt.Errorf("query activities: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc activityDoc
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("decode activity: %w", err)
		}
		if err := fn(geolife.Activity{
			ID:                 doc.ID,
			UserID:             doc.UserID,
			Seq:                doc.Seq,
			TransportationMode: doc.TransportationMode,
			StartTime:          doc.StartDateTime,
			EndTime:            doc.EndDateTime,
		}); err != nil {
			return err
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("cursor error: %w", err)
	}
	return nil
}

func (s *Store) ScanTrackpoints(ctx context.Context, f store.TrackpointFilter, fn func(geolife.Trackpoint) error) error {
	if f.ActivityIDs != nil && len(f.ActivityIDs) == 0 {
		return nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "activity_id", Value: 1}, {Key: "seq", Value: 1}}).
		SetBatchSize(scanBatchSize).
		SetAllowDiskUse(true)
	cursor, err := s.db.Collection(trackpointCollection).Find(ctx, trackpointQuery(f), opts)
	if err != nil {
		return fmt.Errorf("query trackpoints: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc trackpointDoc
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("decode trackpoint: %w", err)
		}
		if err := fn(geolife.Trackpoint{
			ActivityID: doc.ActivityID,
			Seq:        doc.Seq,
			Lat:        doc.Lat,
			Lon:        doc.Lon,
			Altitude:   doc.Altitude,
			DateDays:   doc.DateDays,
			Timestamp:  doc.DateTime,
		}); err != nil {
			return err
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("cursor error: %w", err)
	}
	return nil
}

func (s *Store) LatestRun(ctx context.Context) (geolife.Run, bool, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "started_at", Value: -1}})
	var doc runDoc
	err := s.db.Collection(runCollection).FindOne(ctx, bson.D{}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return geolife.Run{}, false, nil
	}
	if err != nil {
		return geolife.Run{}, false, fmt.Errorf("latest run: %w", err)
	}
	return geolife.Run(doc), true, nil
}
