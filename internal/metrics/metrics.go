package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/roman-kulish/rfnoc-capture/internal/receiver"
)

const (
	Namespace = "rfnoc_capture"

	// JobName is the push gateway job
	JobName = "rxfile"
)

// WithLogger sets the logger for the collector
func WithLogger(logger *slog.Logger) func(c *Collector) {
	return func(c *Collector) {
		c.logger = logger.With(slog.String("component", "metrics"))
	}
}

// WithLabels adds constant labels to every metric, e.g. the device
func WithLabels(labels prometheus.Labels) func(c *Collector) {
	return func(c *Collector) {
		c.labels = labels
	}
}

// Collector is a receiver.Observer exporting run progress as Prometheus metrics.
// Metrics live in a private registry so several collectors can coexist in tests.
type Collector struct {
	receiver.BaseObserver

	registry *prometheus.Registry
	labels   prometheus.Labels
	runID    string

	measurements    *prometheus.CounterVec // by status
	fetches         *prometheus.CounterVec // by chunk status
	samples         prometheus.Counter
	shortfall       prometheus.Counter
	bytes           prometheus.Counter
	overflows       prometheus.Counter
	clippedChunks   prometheus.Counter
	duration        prometheus.Histogram
	maxAmplitude    *prometheus.GaugeVec // by component
	runsCancelled   prometheus.Counter
	lastMeasurement prometheus.Gauge

	logger *slog.Logger
}

// New creates a new Collector instance with a discard logger
func New(options ...func(c *Collector)) *Collector {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	c := Collector{
		registry: prometheus.NewRegistry(),
		logger:   logger,
	}

	for _, option := range options {
		option(&c)
	}

	factory := promauto.With(c.registry)

	c.measurements = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "measurements_total",
		Help:        "Measurements taken, by outcome",
		ConstLabels: c.labels,
	}, []string{"status"})

	c.fetches = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "fetches_total",
		Help:        "Source fetches, by chunk status",
		ConstLabels: c.labels,
	}, []string{"status"})

	c.samples = factory.NewCounter(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "samples_total",
		Help:        "Samples accepted and written to sinks",
		ConstLabels: c.labels,
	})

	c.shortfall = factory.NewCounter(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "shortfall_samples_total",
		Help:        "Samples requested but not received",
		ConstLabels: c.labels,
	})

	c.bytes = factory.NewCounter(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "written_bytes_total",
		Help:        "Bytes written to sinks before compression",
		ConstLabels: c.labels,
	})

	c.overflows = factory.NewCounter(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "overflows_total",
		Help:        "Chunks that reported a device overflow",
		ConstLabels: c.labels,
	})

	c.clippedChunks = factory.NewCounter(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "clipped_chunks_total",
		Help:        "Chunks with a sample above the clipping threshold",
		ConstLabels: c.labels,
	})

	c.duration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace:   Namespace,
		Name:        "measurement_duration_seconds",
		Help:        "Host time spent per measurement",
		ConstLabels: c.labels,
		Buckets:     prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	c.maxAmplitude = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   Namespace,
		Name:        "max_amplitude",
		Help:        "Peak normalized amplitude of the last measurement",
		ConstLabels: c.labels,
	}, []string{"component"})

	c.runsCancelled = factory.NewCounter(prometheus.CounterOpts{
		Namespace:   Namespace,
		Name:        "runs_cancelled_total",
		Help:        "Runs cancelled before all measurements were taken",
		ConstLabels: c.labels,
	})

	c.lastMeasurement = factory.NewGauge(prometheus.GaugeOpts{
		Namespace:   Namespace,
		Name:        "last_measurement_timestamp_seconds",
		Help:        "Unix time the last measurement finished",
		ConstLabels: c.labels,
	})

	return &c
}

// Registry returns the registry holding the collector metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) OnRunStart(_ context.Context, info receiver.RunInfo) {
	c.runID = info.RunID
}

func (c *Collector) OnChunk(_ context.Context, info receiver.ChunkInfo) {
	c.fetches.WithLabelValues(info.Chunk.Status.String()).Inc()
}

func (c *Collector) OnMeasurementEnd(_ context.Context, m *receiver.MeasurementResult) {
	c.measurements.WithLabelValues(string(m.Status)).Inc()
	c.samples.Add(float64(m.Accepted))
	c.shortfall.Add(float64(m.Shortfall()))
	c.bytes.Add(float64(m.Bytes))
	c.overflows.Add(float64(m.Overflows))
	c.clippedChunks.Add(float64(m.ClippedChunks))
	c.duration.Observe(m.Duration().Seconds())
	c.maxAmplitude.WithLabelValues("i").Set(m.MaxI)
	c.maxAmplitude.WithLabelValues("q").Set(m.MaxQ)
	c.lastMeasurement.Set(float64(m.FinishedAt.Unix()))
}

func (c *Collector) OnRunEnd(_ context.Context, r *receiver.RunResult) {
	if r.Cancelled {
		c.runsCancelled.Inc()
	}
}

// Handler serves the collector registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	c.logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err = srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down metrics server: %w", err)
		}
		return nil

	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving metrics: %w", err)
	}
}

// Push sends the collector metrics to a push gateway, grouped by run ID.
// Constant labels travel on the metrics and must not be grouping keys.
func (c *Collector) Push(ctx context.Context, url string) error {
	pusher := push.New(url, JobName).Gatherer(c.registry)
	if c.runID != "" {
		pusher = pusher.Grouping("run_id", c.runID)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}

	c.logger.Info("metrics pushed", slog.String("url", url), slog.String("runID", c.runID))
	return nil
}
