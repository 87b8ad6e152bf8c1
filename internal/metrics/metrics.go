package metrics

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	UsersProcessed  prometheus.Counter
	ActivitiesBuilt prometheus.Counter
	Oversized       prometheus.Counter
	Skipped         *prometheus.CounterVec // reason label: parse|id|labels|listing
	LabelMatches    *prometheus.CounterVec // result label: matched|unmatched|unlabelled

	RecordsFlushed *prometheus.CounterVec // collection label: activity|trackpoint
	Flushes        prometheus.Counter
	FlushDuration  prometheus.Histogram
	PendingRecords prometheus.Gauge
	FlushThreshold prometheus.Gauge
	MaxTrackpoints prometheus.Gauge

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	TaskDuration *prometheus.HistogramVec // task, status labels
}

func NewCollector(flushThreshold, maxTrackpoints int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		UsersProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geolife_users_processed_total",
			Help: "Users whose trajectory directory was processed.",
		}),
		ActivitiesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geolife_activities_built_total",
			Help: "Activities built and buffered for loading.",
		}),
		Oversized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geolife_activities_oversized_total",
			Help: "Trajectories dropped for exceeding the trackpoint limit.",
		}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geolife_inputs_skipped_total",
			Help: "Input units skipped because they could not be read.",
		}, []string{"reason"}),
		LabelMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geolife_label_matches_total",
			Help: "Label join results per built activity.",
		}, []string{"result"}),
		RecordsFlushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geolife_records_flushed_total",
			Help: "Records written to the store.",
		}, []string{"collection"}),
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geolife_flushes_total",
			Help: "Completed bulk flushes.",
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geolife_flush_duration_seconds",
			Help:    "Duration of one bulk flush.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
		PendingRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geolife_pending_records",
			Help: "Records buffered and not yet flushed.",
		}),
		FlushThreshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geolife_flush_threshold_records",
			Help: "Configured flush threshold.",
		}),
		MaxTrackpoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geolife_max_trackpoints",
			Help: "Largest trajectory kept as an activity.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geolife_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geolife_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geolife_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geolife_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geolife_task_duration_seconds",
			Help:    "Duration of analytics tasks.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
		}, []string{"task", "status"}),
	}

	// Register
	reg.MustRegister(
		c.UsersProcessed, c.ActivitiesBuilt, c.Oversized, c.Skipped, c.LabelMatches,
		c.RecordsFlushed, c.Flushes, c.FlushDuration, c.PendingRecords,
		c.FlushThreshold, c.MaxTrackpoints,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.TaskDuration,
	)

	c.FlushThreshold.Set(float64(flushThreshold))
	c.MaxTrackpoints.Set(float64(maxTrackpoints))

	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}

// FlushObserve records one completed flush. It satisfies loader.Metrics.
func (c *Collector) FlushObserve(activities, trackpoints int, d time.Duration) {
	c.Flushes.Inc()
	c.RecordsFlushed.WithLabelValues("activity").Add(float64(activities))
	c.RecordsFlushed.WithLabelValues("trackpoint").Add(float64(trackpoints))
	c.FlushDuration.Observe(d.Seconds())
}

func (c *Collector) PendingSet(n int) { c.PendingRecords.Set(float64(n)) }

// TaskObserve records one analytics task. It satisfies analytics.TaskMetrics.
func (c *Collector) TaskObserve(task int, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.TaskDuration.WithLabelValues(strconv.Itoa(task), status).Observe(d.Seconds())
}
