package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for store operations.
type Observer interface {
	RecordDelete(duration time.Duration, err error)
	RecordList(duration time.Duration, err error)
	RecordUpload(duration time.Duration, sizeBytes int64, err error)
}

// PrometheusObserver exports store metrics to Prometheus.
type PrometheusObserver struct {
	duration    *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	uploadBytes prometheus.Counter
}

// NewPrometheusObserver registers the store metrics on reg.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "imagekit"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of calls to the external image store.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed calls to the external image store, by operation and kind.",
		}, []string{"operation", "kind"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes pushed directly to the external image store.",
		}),
	}
	for _, c := range []prometheus.Collector{o.duration, o.errors, o.uploadBytes} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register storage metric: %w", err)
		}
	}
	return o, nil
}

func (o *PrometheusObserver) RecordDelete(duration time.Duration, err error) {
	o.record("delete", duration, err)
}

func (o *PrometheusObserver) RecordList(duration time.Duration, err error) {
	o.record("list", duration, err)
}

// RecordUpload tracks upload latency, size, and failures.
func (o *PrometheusObserver) RecordUpload(duration time.Duration, sizeBytes int64, err error) {
	o.record("upload", duration, err)
	if err == nil && o != nil && sizeBytes > 0 {
		o.uploadBytes.Add(float64(sizeBytes))
	}
}

func (o *PrometheusObserver) record(op string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		o.errors.WithLabelValues(op, errorKind(err)).Inc()
	}
}

// errorKind buckets an error for the metric label. Not-found deletes are
// counted so idempotent retries stay visible.
func errorKind(err error) string {
	var upstream *UpstreamError
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &upstream):
		return "upstream"
	default:
		return "transport"
	}
}

type nopObserver struct{}

func (nopObserver) RecordDelete(time.Duration, error) {}

func (nopObserver) RecordList(time.Duration, error) {}

func (nopObserver) RecordUpload(time.Duration, int64, error) {}
