package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newRouter(t *testing.T) (*chi.Mux, *HTTP) {
	t.Helper()
	m, err := NewHTTP(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	r := chi.NewRouter()
	r.Use(m.Middleware())
	return r, m
}

func TestMetricsMiddleware_RecordsDurationAndCount(t *testing.T) {
	r, m := newRouter(t)
	r.Get("/v1/indices/{index}/docs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest("GET", "/v1/indices/widgets/docs/1", http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	requestsVal := testutil.ToFloat64(m.total.WithLabelValues("GET", "/v1/indices/{index}/docs/{id}", "200"))
	if requestsVal != 1 {
		t.Errorf("expected http_requests_total == 1, got %f", requestsVal)
	}

	if n := testutil.CollectAndCount(m.duration); n == 0 {
		t.Error("expected http_request_duration_seconds to have observations")
	}
	if v := testutil.ToFloat64(m.inFlight); v != 0 {
		t.Errorf("in-flight gauge = %f after request, want 0", v)
	}
}

func TestMetricsMiddleware_DifferentStatusCodes(t *testing.T) {
	r, m := newRouter(t)

	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/notfound", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/conflict", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.WriteHeader(http.StatusInternalServerError)
	})

	tests := []struct {
		path           string
		expectedStatus string
	}{
		{"/ok", "200"},
		{"/notfound", "404"},
		{"/conflict", "409"},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, http.NoBody)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			val := testutil.ToFloat64(m.total.WithLabelValues("GET", tc.path, tc.expectedStatus))
			if val != 1 {
				t.Errorf("requests_total for %s with status %s = %f, want 1", tc.path, tc.expectedStatus, val)
			}
		})
	}
}

func TestMetricsMiddleware_UnmatchedRoute(t *testing.T) {
	r, m := newRouter(t)
	r.Get("/known", func(w http.ResponseWriter, r *http.Request) {})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/missing/42", http.NoBody))

	if v := testutil.ToFloat64(m.total.WithLabelValues("GET", "unknown", "404")); v != 1 {
		t.Errorf("unmatched route counted %f times under unknown, want 1", v)
	}
}

func TestNewHTTP_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewHTTP(reg)
	if err != nil {
		t.Fatalf("first NewHTTP: %v", err)
	}
	second, err := NewHTTP(reg)
	if err != nil {
		t.Fatalf("second NewHTTP: %v", err)
	}
	if first.total != second.total {
		t.Error("expected second NewHTTP to reuse the registered counter")
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "unknown"},
		{"/v1/indices/{index}/docs", "/v1/indices/{index}/docs"},
		{"/health", "/health"},
	}

	for _, tc := range tests {
		result := normalizePath(tc.input)
		if result != tc.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tc.input, result, tc.expected)
		}
	}
}
