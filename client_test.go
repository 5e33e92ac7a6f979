package metastore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/metastore/async"
	"github.com/kailas-cloud/metastore/internal/db"
)

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := New(context.Background(), append([]Option{WithSQLite("")}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newMockClient(t *testing.T, e *mockEngine, opts ...Option) *Client {
	t.Helper()
	c, err := New(context.Background(), append([]Option{WithEngine(e)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_DefaultsToSQLite(t *testing.T) {
	c := newTestClient(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if c.MultiTenancy() {
		t.Error("multi-tenancy should be off by default")
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	cfg := &clientConfig{driver: "unknown", addrs: []string{"localhost:1234"}}
	_, err := createEngine(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestNew_ValkeyWithoutAddress(t *testing.T) {
	cfg := &clientConfig{driver: driverValkey}
	if _, err := createEngine(context.Background(), cfg); err == nil {
		t.Fatal("expected error when no address provided")
	}
}

func TestNew_WithEngineTakesOwnership(t *testing.T) {
	e := &mockEngine{
		getFn: func(context.Context, *db.GetOp) (*db.GetResult, error) {
			return &db.GetResult{Index: "widgets", ID: "1"}, nil
		},
	}
	c := newMockClient(t, e)
	if _, err := c.Get(context.Background(), mustGet(t, "widgets", "1")); err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.calls.Load() != 1 || e.unelevated.Load() != 0 {
		t.Errorf("calls = %d, unelevated = %d", e.calls.Load(), e.unelevated.Load())
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !e.closed.Load() {
		t.Error("engine not closed with the client")
	}
}

func TestClientOptions(t *testing.T) {
	cfg := &clientConfig{}

	WithValkey("localhost:6379", "secret").apply(cfg)
	if cfg.driver != driverValkey {
		t.Errorf("driver = %q, want valkey", cfg.driver)
	}
	if len(cfg.addrs) != 1 || cfg.addrs[0] != "localhost:6379" {
		t.Errorf("addrs = %v", cfg.addrs)
	}
	if cfg.password != "secret" {
		t.Errorf("password = %q", cfg.password)
	}

	WithElastic("http://localhost:9200", "elastic", "changeme").apply(cfg)
	if cfg.driver != driverElastic || cfg.username != "elastic" {
		t.Errorf("elastic option not applied: %+v", cfg)
	}

	WithSQLite("/tmp/meta.db").apply(cfg)
	if cfg.driver != driverSQLite || cfg.dsn != "/tmp/meta.db" {
		t.Errorf("sqlite option not applied: %+v", cfg)
	}

	WithKeyPrefix("app:").apply(cfg)
	WithMultiTenancy(true).apply(cfg)
	WithExecutor(async.Inline).apply(cfg)
	if cfg.prefix != "app:" || !cfg.multiTenancy || cfg.executor == nil {
		t.Errorf("options not applied: %+v", cfg)
	}
}

func TestClient_Close_NilEngine(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestObserver_NilSafe(t *testing.T) {
	var obs *observer
	obs.observe("test", nil, time.Now(), nil)
	obs.observe("test", nil, time.Now(), errors.New("err"))
}

func TestObserver_WithPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := newObserver(nil, reg)
	if err != nil {
		t.Fatalf("newObserver: %v", err)
	}

	obs.observe(opGet, nil, time.Now().Add(-10*time.Millisecond), nil)
	obs.observe(opGet, nil, time.Now(), errors.New("fail"))
	obs.observe(opGet, nil, time.Now(), invalidRequest("bad"))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "metastore_sdk_operations_total" {
			found = true
			if len(f.GetMetric()) != 3 {
				t.Errorf("expected 3 metric samples, got %d", len(f.GetMetric()))
			}
		}
	}
	if !found {
		t.Error("metastore_sdk_operations_total not found")
	}
}

func TestObserver_ReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := newObserver(nil, reg); err != nil {
		t.Fatalf("first newObserver: %v", err)
	}
	if _, err := newObserver(nil, reg); err != nil {
		t.Fatalf("second newObserver: %v", err)
	}
}

func TestObserver_WithLogger(t *testing.T) {
	obs, err := newObserver(zap.NewExample(), nil)
	if err != nil {
		t.Fatalf("newObserver: %v", err)
	}
	req, _ := NewDeleteDataObjectRequest(DeleteInput{Index: "widgets", ID: "1"})
	obs.observe("test.op", req, time.Now(), nil)
	obs.observe("test.op", req, time.Now(), errors.New("test error"))
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{500, "error"},
		{409, "conflict"},
		{400, "rejected"},
		{404, "rejected"},
	}
	for _, tt := range tests {
		if got := statusLabel(tt.code); got != tt.want {
			t.Errorf("statusLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestNew_WithPrometheusInstrumentsEngine(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newTestClient(t, WithPrometheus(reg))

	req, err := NewPutDataObjectRequest(PutInput{Index: "widgets", ID: "1", DataObject: map[string]any{"a": 1}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Put(context.Background(), req); err != nil {
		t.Fatalf("Put: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	want := map[string]bool{
		"metastore_sdk_operations_total":            false,
		"metastore_engine_requests_total":           false,
		"metastore_engine_request_duration_seconds": false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
		if f.GetName() != "metastore_engine_requests_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["driver"] != driverSQLite || labels["op"] != "write" || labels["status"] != "ok" {
				t.Errorf("unexpected engine sample labels %v", labels)
			}
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("metric family %s not registered", name)
		}
	}
}

func TestClientOptions_AddressesAndReadiness(t *testing.T) {
	cfg := &clientConfig{}
	WithValkey("a:6379", "").apply(cfg)
	WithAddresses("a:6379", "b:6379").apply(cfg)
	WithReadinessTimeout(3 * time.Second).apply(cfg)

	if len(cfg.addrs) != 2 || cfg.addrs[1] != "b:6379" {
		t.Errorf("addrs = %v, want both nodes", cfg.addrs)
	}
	if cfg.readinessTimeout != 3*time.Second {
		t.Errorf("readinessTimeout = %v", cfg.readinessTimeout)
	}
}
