// Package elastic is a document engine backed by Elasticsearch or
// OpenSearch over the REST API.
package elastic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/metastore/internal/db"
)

// Compile-time check: Store implements db.Engine.
var _ db.Engine = (*Store)(nil)

// Config holds connection parameters for an Elasticsearch cluster.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
}

// Store implements db.Engine via esapi requests.
type Store struct {
	transport esapi.Transport
}

// NewStore creates an Elasticsearch store.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("addresses is required")
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &Store{transport: client}, nil
}

// NewStoreForTest creates a Store over the provided transport (test-only).
func NewStoreForTest(t esapi.Transport) *Store {
	return &Store{transport: t}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	res, err := esapi.PingRequest{}.Do(ctx, s.transport)
	if err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		return &db.Error{Op: db.OpPing, Err: fmt.Errorf("unexpected status %d", res.StatusCode)}
	}
	return nil
}

// Close is a no-op: the HTTP transport holds no resources that need release.
func (s *Store) Close() error { return nil }

// WaitForReady polls Ping until the cluster responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

type errorBody struct {
	Error  json.RawMessage `json:"error"`
	Status int             `json:"status"`
}

// decode reads a response body into v, converting error responses into
// engine errors.
func decode(res *esapi.Response, v any) error {
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if res.IsError() {
		return responseError(res.StatusCode, body)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func responseError(status int, body []byte) error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || len(eb.Error) == 0 {
		return fmt.Errorf("status %d: %s", status, body)
	}
	cause := &db.ErrorCause{}
	if err := json.Unmarshal(eb.Error, cause); err != nil {
		// some errors are rendered as a plain string
		var reason string
		_ = json.Unmarshal(eb.Error, &reason)
		cause = &db.ErrorCause{Type: "engine_exception", Reason: reason}
	}
	if sentinel := sentinelFor(cause.Type, status); sentinel != nil {
		return fmt.Errorf("%w: %w", cause, sentinel)
	}
	return cause
}

func sentinelFor(typ string, status int) error {
	switch typ {
	case "version_conflict_engine_exception":
		return db.ErrVersionConflict
	case "document_missing_exception":
		return db.ErrDocumentNotFound
	case "index_not_found_exception":
		return db.ErrIndexNotFound
	case "mapper_parsing_exception", "document_parsing_exception":
		return db.ErrInvalidDocument
	}
	if status == http.StatusConflict {
		return db.ErrVersionConflict
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, db.ErrIndexNotFound)
}

func intPtr(v *int64) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
