package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/metastore/internal/metrics"
)

// Pool errors.
var (
	ErrPoolNotStarted     = errors.New("async: pool not started")
	ErrPoolAlreadyStarted = errors.New("async: pool already started")
	ErrPoolStopped        = errors.New("async: pool stopped")
	ErrQueueFull          = errors.New("async: queue full")
	ErrStopTimeout        = errors.New("async: stop timed out")
)

const (
	defaultWorkers   = 10
	defaultQueueSize = 1000
)

// Pool is a bounded worker pool implementing Executor. Execute never blocks:
// it fails with ErrQueueFull when the queue is at capacity.
type Pool struct {
	workers   int
	queueSize int

	tasks   chan func()
	quit    chan struct{}
	wg      sync.WaitGroup
	metrics *poolMetrics
	reg     prometheus.Registerer

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted atomic.Int64
	processed atomic.Int64
	panicked  atomic.Int64
	dropped   atomic.Int64
	busy      atomic.Int64
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Busy       int64 `json:"busy"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Panicked   int64 `json:"panicked"`
	Dropped    int64 `json:"dropped"`
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithRegisterer exports pool metrics to reg.
func WithRegisterer(reg prometheus.Registerer) PoolOption {
	return func(p *Pool) { p.reg = reg }
}

type poolMetrics struct {
	queueDepth prometheus.Gauge
	busy       prometheus.Gauge
	tasks      *prometheus.CounterVec
	duration   prometheus.Histogram
}

// NewPool creates a pool. Non-positive sizes fall back to defaults.
func NewPool(workers, queueSize int, opts ...PoolOption) (*Pool, error) {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	p := &Pool{
		workers:   workers,
		queueSize: queueSize,
		tasks:     make(chan func(), queueSize),
		quit:      make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	if p.reg != nil {
		m, err := newPoolMetrics(p.reg)
		if err != nil {
			return nil, err
		}
		p.metrics = m
	}
	return p, nil
}

func newPoolMetrics(reg prometheus.Registerer) (*poolMetrics, error) {
	m := &poolMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "metastore",
			Subsystem: "executor",
			Name:      "queue_depth",
			Help:      "Tasks waiting in the executor queue.",
		}),
		busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "metastore",
			Subsystem: "executor",
			Name:      "busy_workers",
			Help:      "Workers currently running a task.",
		}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metastore",
			Subsystem: "executor",
			Name:      "tasks_total",
			Help:      "Executor tasks by outcome.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "metastore",
			Subsystem: "executor",
			Name:      "task_duration_seconds",
			Help:      "Time spent running executor tasks.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
	}
	if err := metrics.RegisterOrReuse(reg, &m.queueDepth); err != nil {
		return nil, err
	}
	if err := metrics.RegisterOrReuse(reg, &m.busy); err != nil {
		return nil, err
	}
	if err := metrics.RegisterOrReuse(reg, &m.tasks); err != nil {
		return nil, err
	}
	if err := metrics.RegisterOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

// Start launches the workers. Cancelling ctx stops intake; queued tasks
// still run.
func (p *Pool) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.started = true

	go func() {
		select {
		case <-ctx.Done():
			p.closeIntake()
		case <-p.quit:
		}
	}()
	return nil
}

// Execute implements Executor.
func (p *Pool) Execute(task func()) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.tasks <- task:
		p.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.tasks.WithLabelValues("submitted").Inc()
			p.metrics.queueDepth.Set(float64(len(p.tasks)))
		}
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.tasks.WithLabelValues("dropped").Inc()
		}
		return ErrQueueFull
	}
}

// Stop stops intake and waits up to timeout for queued tasks to finish.
func (p *Pool) Stop(timeout time.Duration) error {
	if !p.closeIntake() {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// closeIntake reports whether the pool was running.
func (p *Pool) closeIntake() bool {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started || p.stopped {
		return p.started
	}
	p.stopped = true
	close(p.tasks)
	close(p.quit)
	return true
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.tasks),
		Busy:       p.busy.Load(),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Panicked:   p.panicked.Load(),
		Dropped:    p.dropped.Load(),
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	start := time.Now()
	p.busy.Add(1)
	if p.metrics != nil {
		p.metrics.busy.Inc()
		p.metrics.queueDepth.Set(float64(len(p.tasks)))
	}

	status := "processed"
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			status = "panicked"
		}
		p.processed.Add(1)
		p.busy.Add(-1)
		if p.metrics != nil {
			p.metrics.busy.Dec()
			p.metrics.tasks.WithLabelValues(status).Inc()
			p.metrics.duration.Observe(time.Since(start).Seconds())
		}
	}()
	task()
}
