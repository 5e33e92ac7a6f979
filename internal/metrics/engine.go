package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/metastore/internal/db"
)

// engineMetrics holds per-driver engine call metrics.
type engineMetrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	bulkItems *prometheus.CounterVec
}

func newEngineMetrics(reg prometheus.Registerer) (*engineMetrics, error) {
	m := &engineMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metastore",
				Subsystem: "engine",
				Name:      "requests_total",
				Help:      "Total number of engine calls",
			},
			[]string{"driver", "op", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "metastore",
				Subsystem: "engine",
				Name:      "request_duration_seconds",
				Help:      "Engine call duration in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"driver", "op"},
		),
		bulkItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metastore",
				Subsystem: "engine",
				Name:      "bulk_items_total",
				Help:      "Bulk items by action and outcome",
			},
			[]string{"driver", "action", "result"},
		),
	}
	if err := RegisterOrReuse(reg, &m.requests); err != nil {
		return nil, err
	}
	if err := RegisterOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	if err := RegisterOrReuse(reg, &m.bulkItems); err != nil {
		return nil, err
	}
	return m, nil
}

// InstrumentEngine wraps e so that every call is counted and timed under
// the given driver label.
func InstrumentEngine(e db.Engine, driver string, reg prometheus.Registerer) (db.Engine, error) {
	m, err := newEngineMetrics(reg)
	if err != nil {
		return nil, err
	}
	return &instrumented{next: e, driver: driver, m: m}, nil
}

type instrumented struct {
	next   db.Engine
	driver string
	m      *engineMetrics
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.m.requests.WithLabelValues(i.driver, op, outcome(err)).Inc()
	i.m.duration.WithLabelValues(i.driver, op).Observe(time.Since(start).Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, db.ErrVersionConflict):
		return "conflict"
	case errors.Is(err, db.ErrDocumentNotFound), errors.Is(err, db.ErrIndexNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (i *instrumented) Ping(ctx context.Context) error {
	start := time.Now()
	err := i.next.Ping(ctx)
	i.observe(db.OpPing, start, err)
	return err
}

func (i *instrumented) Close() error { return i.next.Close() }

func (i *instrumented) Write(ctx context.Context, op *db.WriteOp) (*db.WriteResult, error) {
	start := time.Now()
	res, err := i.next.Write(ctx, op)
	i.observe(db.OpWrite, start, err)
	return res, err
}

func (i *instrumented) Get(ctx context.Context, op *db.GetOp) (*db.GetResult, error) {
	start := time.Now()
	res, err := i.next.Get(ctx, op)
	i.observe(db.OpGet, start, err)
	return res, err
}

func (i *instrumented) Update(ctx context.Context, op *db.UpdateOp) (*db.WriteResult, error) {
	start := time.Now()
	res, err := i.next.Update(ctx, op)
	i.observe(db.OpUpdate, start, err)
	return res, err
}

func (i *instrumented) Delete(ctx context.Context, op *db.DeleteOp) (*db.WriteResult, error) {
	start := time.Now()
	res, err := i.next.Delete(ctx, op)
	i.observe(db.OpDelete, start, err)
	return res, err
}

func (i *instrumented) Bulk(ctx context.Context, op *db.BulkOp) (*db.BulkResult, error) {
	start := time.Now()
	res, err := i.next.Bulk(ctx, op)
	i.observe(db.OpBulk, start, err)
	if res != nil {
		for _, it := range res.Items {
			if it == nil {
				continue
			}
			result := string(it.Result)
			if it.Failed() {
				result = "failed"
			}
			i.m.bulkItems.WithLabelValues(i.driver, string(it.Action), result).Inc()
		}
	}
	return res, err
}

func (i *instrumented) Search(ctx context.Context, op *db.SearchOp) (*db.SearchResult, error) {
	start := time.Now()
	res, err := i.next.Search(ctx, op)
	i.observe(db.OpSearch, start, err)
	return res, err
}
