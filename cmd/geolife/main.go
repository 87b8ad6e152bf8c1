package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geolife-loader/internal/analytics"
	"geolife-loader/internal/config"
	"geolife-loader/internal/geolife"
	"geolife-loader/internal/ingest"
	"geolife-loader/internal/loader"
	"geolife-loader/internal/metrics"
	"geolife-loader/internal/publisher"
	"geolife-loader/internal/store"
	"geolife-loader/internal/store/memstore"
	"geolife-loader/internal/store/mongostore"
	"geolife-loader/internal/store/pgstore"
)

func main() {
	doIngest := flag.Bool("ingest", true, "load the dataset into the store")
	tasks := flag.String("tasks", "all", `analytics tasks to run, e.g. "all", "1,3-5"; empty for none`)
	drop := flag.Bool("drop", false, "drop existing collections before ingesting")
	flag.Parse()

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	taskList, err := analytics.ParseTasks(*tasks)
	if err != nil {
		log.Fatalf("invalid -tasks: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *doIngest, *drop, taskList); err != nil {
		log.Printf("error: %v", err)
		cancel()
		os.Exit(1)
	}
	log.Println("done")
}

func run(ctx context.Context, cfg *config.Config, doIngest, drop bool, tasks []int) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	if drop {
		log.Printf("dropping existing data")
		if err := st.Drop(ctx); err != nil {
			return fmt.Errorf("drop: %w", err)
		}
	}
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.FlushThreshold, cfg.MaxTrackpoints)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// NATS is optional; without a URL no events are published.
	var pub *publisher.NATSPublisher
	if cfg.NATSURL != "" {
		pub, err = publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer pub.Close()
	}

	if doIngest {
		if err := ingestDataset(ctx, cfg, st, mcol, pub); err != nil {
			return err
		}
	} else if last, ok, err := st.LatestRun(ctx); err != nil {
		return fmt.Errorf("latest run: %w", err)
	} else if ok {
		log.Printf("using data from run %s finished %s (%d activities, %d trackpoints)",
			last.ID, last.FinishedAt.Format(time.RFC3339), last.Activities, last.Trackpoints)
	} else {
		log.Printf("no ingestion run recorded; tasks will see whatever the store holds")
	}

	return runTasks(ctx, cfg, st, mcol, tasks)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		log.Printf("using in-memory store")
		return memstore.New(), nil
	case config.BackendPostgres:
		if err := pgstore.EnsureDatabase(ctx, cfg.DatabaseURL, cfg.Database); err != nil {
			return nil, err
		}
		dsn, err := pgstore.WithDBName(cfg.DatabaseURL, cfg.Database)
		if err != nil {
			return nil, err
		}
		log.Printf("using postgres database %q", cfg.Database)
		return pgstore.Open(ctx, dsn)
	default:
		log.Printf("using mongo database %q", cfg.Database)
		return mongostore.Open(ctx, cfg.MongoURI, cfg.Database)
	}
}

func ingestDataset(ctx context.Context, cfg *config.Config, st store.Store, mcol *metrics.Collector, pub *publisher.NATSPublisher) error {
	labeled, err := geolife.ReadLabeledIDs(cfg.LabeledIDsPath)
	if err != nil {
		return err
	}

	var loaderOpts []loader.Option
	ingestOpts := []ingest.Option{ingest.WithLocation(cfg.Location)}
	if mcol != nil {
		loaderOpts = append(loaderOpts, loader.WithMetrics(mcol))
		ingestOpts = append(ingestOpts, ingest.WithMetrics(&ingestMetrics{c: mcol}))
	}
	if pub != nil {
		loaderOpts = append(loaderOpts, loader.WithNotifier(pub))
		ingestOpts = append(ingestOpts, ingest.WithRunNotifier(pub))
	}
	if cfg.Progress {
		ingestOpts = append(ingestOpts, ingest.WithProgress(os.Stderr))
	}

	ld := loader.New(st, cfg.FlushThreshold, loaderOpts...)
	builder := geolife.NewBuilder(geolife.NewLabelMatcher(cfg.LabelTolerance), cfg.MaxTrackpoints)
	p := ingest.New(geolife.NewDataset(cfg.DataDir, labeled), builder, st, ld, ingestOpts...)

	_, err = p.Run(ctx)
	return err
}

func runTasks(ctx context.Context, cfg *config.Config, st store.Reader, mcol *metrics.Collector, tasks []int) error {
	if len(tasks) == 0 {
		return nil
	}
	params := analytics.DefaultParams()
	params.InvalidGap = cfg.InvalidGap
	params.Location = cfg.Location

	var opts []analytics.Option
	if mcol != nil {
		opts = append(opts, analytics.WithMetrics(mcol))
	}
	eng := analytics.NewEngine(st, params, opts...)

	for _, n := range tasks {
		tbl, err := eng.RunTask(ctx, n)
		if err != nil {
			return err
		}
		if err := tbl.Render(os.Stdout); err != nil {
			return err
		}
		fmt.Println()
		if cfg.ReportDir != "" {
			path, err := tbl.Persist(cfg.ReportDir)
			if err != nil {
				return err
			}
			log.Printf("task %d written to %s", n, path)
		}
	}
	return nil
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}

type ingestMetrics struct{ c *metrics.Collector }

func (m *ingestMetrics) UserProcessed()        { m.c.UsersProcessed.Inc() }
func (m *ingestMetrics) Oversized()            { m.c.Oversized.Inc() }
func (m *ingestMetrics) Skipped(reason string) { m.c.Skipped.WithLabelValues(reason).Inc() }
func (m *ingestMetrics) ActivityBuilt(result string) {
	m.c.ActivitiesBuilt.Inc()
	m.c.LabelMatches.WithLabelValues(result).Inc()
}
