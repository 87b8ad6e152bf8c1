package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	DataDir        string
	LabeledIDsPath string

	Backend     string
	Database    string
	MongoURI    string
	DatabaseURL string

	FlushThreshold int
	MaxTrackpoints int
	LabelTolerance time.Duration
	InvalidGap     time.Duration

	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool

	MetricsAddr string
	ReportDir   string
	Progress    bool
	Location    *time.Location
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:           getenvDefault("GEOLIFE_DATA_DIR", "./dataset/Data"),
		LabeledIDsPath:    getenvDefault("GEOLIFE_LABELED_IDS", "./dataset/labeled_ids.txt"),
		Database:          getenvDefault("GEOLIFE_DATABASE", "geolife"),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: getenvDefault("NATS_SUBJECT_PREFIX", "geolife.ingest"),
		MetricsAddr:       os.Getenv("METRICS_ADDR"),
		ReportDir:         os.Getenv("REPORT_DIR"),
	}

	cfg.Backend = strings.ToLower(getenvDefault("STORE_BACKEND", BackendMongo))
	switch cfg.Backend {
	case BackendMongo, BackendPostgres, BackendMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND: %q", cfg.Backend)
	}

	// Mongo URI: prefer MONGO_URI, else build from MONGO_* vars
	cfg.MongoURI = os.Getenv("MONGO_URI")
	if cfg.MongoURI == "" {
		host := getenvDefault("MONGO_HOST", "127.0.0.1:27017")
		user := os.Getenv("MONGO_USER")
		pass := os.Getenv("MONGO_PASSWORD")
		if user != "" {
			cfg.MongoURI = fmt.Sprintf("mongodb://%s:%s@%s/%s?authSource=admin", urlEscape(user), urlEscape(pass), host, cfg.Database)
		} else {
			cfg.MongoURI = fmt.Sprintf("mongodb://%s/%s", host, cfg.Database)
		}
	}

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, cfg.Database, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, cfg.Database, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	var err error
	if cfg.FlushThreshold, err = positiveInt("FLUSH_THRESHOLD", 325000); err != nil {
		return nil, err
	}
	if cfg.MaxTrackpoints, err = positiveInt("MAX_TRACKPOINTS", 2500); err != nil {
		return nil, err
	}

	// Label tolerance (Go duration). Zero means exact timestamp equality.
	if v := os.Getenv("LABEL_TOLERANCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid LABEL_TOLERANCE: %q", v)
		}
		cfg.LabelTolerance = d
	}

	if v := os.Getenv("INVALID_GAP"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid INVALID_GAP: %q", v)
		}
		cfg.InvalidGap = d
	} else {
		cfg.InvalidGap = 5 * time.Minute
	}

	// Debug logging for NATS publish subjects
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"), false)
	cfg.Progress = parseBool(os.Getenv("PROGRESS"), true)

	// Time zone of the raw timestamps. GeoLife records GMT.
	tzName := getenvDefault("TZ", "UTC")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TZ: %v", err)
	}
	cfg.Location = loc

	return cfg, nil
}

func positiveInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func parseBool(v string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return def
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
