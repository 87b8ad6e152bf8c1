package publisher

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"geolife-loader/internal/geolife"
	"geolife-loader/internal/loader"
)

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	runID       string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("geolife-loader"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: subjectPrefix(prefix), logSubjects: logSubjects, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// SetRunID tags subsequent flush messages with the ingestion run id.
func (p *NATSPublisher) SetRunID(id string) { p.runID = id }

type FlushMessage struct {
	RunID            string    `json:"runId,omitempty"`
	Batch            int       `json:"batch"`
	Activities       int       `json:"activities"`
	Trackpoints      int       `json:"trackpoints"`
	ElapsedMs        int64     `json:"elapsedMs"`
	RecordsPerSecond float64   `json:"recordsPerSecond"`
	Timestamp        time.Time `json:"timestamp"`
}

type RunMessage struct {
	RunID       string    `json:"runId"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Users       int       `json:"users"`
	Activities  int       `json:"activities"`
	Trackpoints int       `json:"trackpoints"`
	Oversized   int       `json:"oversized"`
	Skipped     int       `json:"skipped"`
}

func newFlushMessage(runID string, r loader.FlushReport, now time.Time) FlushMessage {
	return FlushMessage{
		RunID:            runID,
		Batch:            r.Batch,
		Activities:       r.Activities,
		Trackpoints:      r.Trackpoints,
		ElapsedMs:        r.Elapsed.Milliseconds(),
		RecordsPerSecond: r.Rate,
		Timestamp:        now.UTC(),
	}
}

func newRunMessage(run geolife.Run) RunMessage {
	return RunMessage{
		RunID:       run.ID,
		StartedAt:   run.StartedAt.UTC(),
		FinishedAt:  run.FinishedAt.UTC(),
		Users:       run.Users,
		Activities:  run.Activities,
		Trackpoints: run.Trackpoints,
		Oversized:   run.Oversized,
		Skipped:     run.Skipped,
	}
}

// PublishFlush sends <prefix>.flush. It satisfies loader.Notifier.
func (p *NATSPublisher) PublishFlush(_ context.Context, r loader.FlushReport) error {
	return p.publish(p.prefix+".flush", newFlushMessage(p.runID, r, time.Now()))
}

// PublishRun sends <prefix>.run once ingestion has finished.
func (p *NATSPublisher) PublishRun(_ context.Context, run geolife.Run) error {
	return p.publish(p.prefix+".run", newRunMessage(run))
}

func (p *NATSPublisher) publish(subject string, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s", subject)
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// subjectPrefix sanitises each dot separated token of a configured prefix.
func subjectPrefix(prefix string) string {
	parts := strings.Split(strings.Trim(strings.TrimSpace(prefix), "."), ".")
	for i, part := range parts {
		parts[i] = subjectToken(part)
	}
	return strings.Join(parts, ".")
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
