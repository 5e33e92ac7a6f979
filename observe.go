package metastore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/metastore/internal/metrics"
)

// clientMetrics holds prometheus metrics registered for the client.
type clientMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func newClientMetrics(reg prometheus.Registerer) (*clientMetrics, error) {
	m := &clientMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metastore",
			Subsystem: "sdk",
			Name:      "operations_total",
			Help:      "Total data object operations by type and status.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "metastore",
			Subsystem: "sdk",
			Name:      "operation_duration_seconds",
			Help:      "Data object operation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if err := metrics.RegisterOrReuse(reg, &m.operations); err != nil {
		return nil, err
	}
	if err := metrics.RegisterOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

// observer provides logging and metrics for client operations.
type observer struct {
	logger  *zap.Logger
	metrics *clientMetrics
}

func newObserver(logger *zap.Logger, reg prometheus.Registerer) (*observer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var m *clientMetrics
	if reg != nil {
		var err error
		m, err = newClientMetrics(reg)
		if err != nil {
			return nil, err
		}
	}
	return &observer{logger: logger, metrics: m}, nil
}

// observe records one finished operation. The status label is the HTTP-style
// code of err, so conflicts and bad requests are told apart from faults.
func (o *observer) observe(op string, r DataObjectRequest, start time.Time, err error) {
	if o == nil {
		return
	}
	dur := time.Since(start)

	if o.metrics != nil {
		status := "ok"
		if err != nil {
			status = statusLabel(StatusOf(err))
		}
		o.metrics.operations.WithLabelValues(op, status).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(dur.Seconds())
	}

	fields := []zap.Field{
		zap.String("op", op),
		zap.Duration("duration", dur),
	}
	if r != nil {
		fields = append(fields, zap.String("index", r.Index()))
		if id := r.ID(); id != "" {
			fields = append(fields, zap.String("id", id))
		}
	}
	if err != nil {
		o.logger.Warn("operation failed", append(fields, zap.Error(err))...)
		return
	}
	o.logger.Debug("operation completed", fields...)
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "error"
	case code == 409:
		return "conflict"
	default:
		return "rejected"
	}
}
