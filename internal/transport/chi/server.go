// Package chi exposes a metastore Client over HTTP with an
// Elasticsearch-compatible document API.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/metastore"
	"github.com/kailas-cloud/metastore/internal/metrics"
	"github.com/kailas-cloud/metastore/query"
)

const healthTimeout = 2 * time.Second

// Server serves the document API on top of a metastore Client.
type Server struct {
	client *metastore.Client
	logger *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(client *metastore.Client, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{client: client, logger: logger}
}

// RouterConfig configures the middleware stack.
type RouterConfig struct {
	APIKeys      []string
	MaxBodyBytes int64
	// Metrics records request metrics when set.
	Metrics *metrics.HTTP
	// Gatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// Router builds the chi router with every route and middleware mounted.
func (s *Server) Router(cfg RouterConfig) http.Handler {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(cfg.APIKeys))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(limitBody(cfg.MaxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, typeIllegalArgument,
			fmt.Sprintf("no handler found for uri [%s] and method [%s]", r.URL.Path, r.Method))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, typeIllegalArgument,
			fmt.Sprintf("method [%s] is not allowed for uri [%s]", r.Method, r.URL.Path))
	})

	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Post("/_bulk", s.Bulk)

	r.Route("/{index}", func(r chi.Router) {
		r.Post("/_bulk", s.Bulk)
		r.Post("/_doc", s.CreateWithID)
		r.Put("/_doc/{id}", s.PutDocument)
		r.Post("/_doc/{id}", s.PutDocument)
		r.Put("/_create/{id}", s.CreateDocument)
		r.Post("/_create/{id}", s.CreateDocument)
		r.Get("/_doc/{id}", s.GetDocument)
		r.Delete("/_doc/{id}", s.DeleteDocument)
		r.Post("/_update/{id}", s.UpdateDocument)
		r.Get("/_search", s.Search)
		r.Post("/_search", s.Search)
	})
	return r
}

// PutDocument handles PUT /{index}/_doc/{id}. op_type=create rejects an
// existing document.
func (s *Server) PutDocument(w http.ResponseWriter, r *http.Request) {
	overwrite := true
	switch opType := r.URL.Query().Get("op_type"); opType {
	case "", "index":
	case "create":
		overwrite = false
	default:
		writeError(w, http.StatusBadRequest, typeIllegalArgument,
			fmt.Sprintf("opType must be 'create' or 'index', found: [%s]", opType))
		return
	}
	s.put(w, r, chi.URLParam(r, "id"), overwrite)
}

// CreateDocument handles PUT /{index}/_create/{id}.
func (s *Server) CreateDocument(w http.ResponseWriter, r *http.Request) {
	s.put(w, r, chi.URLParam(r, "id"), false)
}

// CreateWithID handles POST /{index}/_doc; the engine assigns the id.
func (s *Server) CreateWithID(w http.ResponseWriter, r *http.Request) {
	s.put(w, r, "", false)
}

func (s *Server) put(w http.ResponseWriter, r *http.Request, id string, overwrite bool) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	req, err := metastore.NewPutDataObjectRequest(metastore.PutInput{
		Index:             chi.URLParam(r, "index"),
		ID:                id,
		TenantID:          r.Header.Get(TenantHeader),
		DataObject:        json.RawMessage(body),
		OverwriteIfExists: overwrite,
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	resp, err := s.client.Put(r.Context(), req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	status := http.StatusOK
	if resp.Result() == metastore.ResultCreated {
		status = http.StatusCreated
		w.Header().Set("Location", fmt.Sprintf("/%s/_doc/%s", req.Index(), resp.ID()))
	}
	writeContent(w, status, resp.Content(), writeSummary(req.Index(), &resp.WriteResponse))
}

// GetDocument handles GET /{index}/_doc/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	index, id := chi.URLParam(r, "index"), chi.URLParam(r, "id")
	req, err := metastore.NewGetDataObjectRequest(metastore.GetInput{
		Index:       index,
		ID:          id,
		TenantID:    r.Header.Get(TenantHeader),
		FetchSource: sourceFilterFromQuery(r),
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	resp, err := s.client.Get(r.Context(), req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	status := http.StatusOK
	if !resp.Found() {
		status = http.StatusNotFound
	}
	writeContent(w, status, resp.Content(), map[string]any{
		"_index": index,
		"_id":    resp.ID(),
		"found":  resp.Found(),
	})
}

// UpdateDocument handles POST /{index}/_update/{id} with a {"doc": {...}} body.
func (s *Server) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var payload struct {
		Doc json.RawMessage `json:"doc"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, typeParsing, "failed to parse update body: "+err.Error())
		return
	}
	if len(payload.Doc) == 0 {
		writeError(w, http.StatusBadRequest, typeParsing, "update request must contain [doc]")
		return
	}

	in := metastore.UpdateInput{
		Index:      chi.URLParam(r, "index"),
		ID:         chi.URLParam(r, "id"),
		TenantID:   r.Header.Get(TenantHeader),
		DataObject: payload.Doc,
	}
	if err := updateParamsFromQuery(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, typeIllegalArgument, err.Error())
		return
	}

	req, err := metastore.NewUpdateDataObjectRequest(in)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	resp, err := s.client.Update(r.Context(), req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeContent(w, http.StatusOK, resp.Content(), writeSummary(req.Index(), &resp.WriteResponse))
}

// DeleteDocument handles DELETE /{index}/_doc/{id}. A missing document is
// reported with status 404 and result not_found.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	req, err := metastore.NewDeleteDataObjectRequest(metastore.DeleteInput{
		Index:    chi.URLParam(r, "index"),
		ID:       chi.URLParam(r, "id"),
		TenantID: r.Header.Get(TenantHeader),
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	resp, err := s.client.Delete(r.Context(), req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	status := http.StatusOK
	if resp.Result() == metastore.ResultNotFound {
		status = http.StatusNotFound
	}
	writeContent(w, status, resp.Content(), writeSummary(req.Index(), &resp.WriteResponse))
}

// Bulk handles POST /_bulk and POST /{index}/_bulk.
func (s *Server) Bulk(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	reqs, err := parseBulk(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, typeIllegalArgument, err.Error())
		return
	}
	req, err := metastore.NewBulkDataObjectRequest(metastore.BulkInput{
		GlobalIndex: chi.URLParam(r, "index"),
		Requests:    reqs,
		TenantID:    r.Header.Get(TenantHeader),
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	resp, err := s.client.Bulk(r.Context(), req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if resp.HasFailures() {
		requestLogger(r).Warn("bulk completed with failures", zap.Error(resp.Err()))
	}
	writeContent(w, http.StatusOK, resp.Content(), map[string]any{
		"took":   resp.Took().Milliseconds(),
		"errors": resp.HasFailures(),
		"items":  []any{},
	})
}

// Search handles GET|POST /{indices}/_search. Indices are comma separated;
// size and from query parameters override the body.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	src, err := query.ParseSearchSource(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, typeParsing, err.Error())
		return
	}
	if err := pagingFromQuery(r, src); err != nil {
		writeError(w, http.StatusBadRequest, typeIllegalArgument, err.Error())
		return
	}

	req, err := metastore.NewSearchDataObjectRequest(metastore.SearchInput{
		Indices:  strings.Split(chi.URLParam(r, "index"), ","),
		Source:   src,
		TenantID: r.Header.Get(TenantHeader),
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	resp, err := s.client.Search(r.Context(), req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeContent(w, http.StatusOK, resp.Content(), map[string]any{
		"took":      resp.Took().Milliseconds(),
		"timed_out": false,
		"hits":      map[string]any{"total": map[string]any{"value": 0, "relation": "eq"}, "hits": []any{}},
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.client.Ping(ctx); err != nil {
		requestLogger(r).Warn("health check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, typeServiceUnavailable, "engine unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"multi_tenancy": s.client.MultiTenancy(),
	})
}

// readBody reads the whole request body. On failure the error response has
// already been written.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err == nil {
		return body, true
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		writeError(w, http.StatusRequestEntityTooLarge, typeRequestTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", mbe.Limit))
		return nil, false
	}
	writeError(w, http.StatusBadRequest, typeParsing, "failed to read request body: "+err.Error())
	return nil, false
}

// writeContent renders engine content, or fallback when the engine returned
// no result.
func writeContent(w http.ResponseWriter, status int, c *metastore.Content, fallback any) {
	if c == nil {
		writeJSON(w, status, fallback)
		return
	}
	writeJSON(w, status, c)
}

func writeSummary(index string, resp *metastore.WriteResponse) map[string]any {
	return map[string]any{
		"_index":   index,
		"_id":      resp.ID(),
		"result":   resp.Result(),
		"_version": resp.Version(),
	}
}

func sourceFilterFromQuery(r *http.Request) *query.SourceFilter {
	q := r.URL.Query()
	f := &query.SourceFilter{}
	switch v := q.Get("_source"); v {
	case "", "true":
	case "false":
		f.Disabled = true
	default:
		f.Includes = splitList(v)
	}
	f.Includes = append(f.Includes, splitList(q.Get("_source_includes"))...)
	f.Excludes = splitList(q.Get("_source_excludes"))
	if f.IsZero() {
		return nil
	}
	return f
}

func updateParamsFromQuery(r *http.Request, in *metastore.UpdateInput) error {
	q := r.URL.Query()
	if v := q.Get("if_seq_no"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid if_seq_no [%s]", v)
		}
		in.IfSeqNo = &n
	}
	if v := q.Get("if_primary_term"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid if_primary_term [%s]", v)
		}
		in.IfPrimaryTerm = &n
	}
	if v := q.Get("retry_on_conflict"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid retry_on_conflict [%s]", v)
		}
		in.RetryOnConflict = n
	}
	return nil
}

func pagingFromQuery(r *http.Request, src *query.SearchSource) error {
	q := r.URL.Query()
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid size [%s]", v)
		}
		src.Size = &n
	}
	if v := q.Get("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid from [%s]", v)
		}
		src.From = n
	}
	return nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
