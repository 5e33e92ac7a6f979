// Package valkey is a document engine on Valkey/Redis with JSON documents.
//
// Key layout per collection c and document id:
//
//	<prefix>{c}:<id>          JSON document (the source)
//	<prefix>_meta:{c}:<id>    hash: version, seq_no, primary_term
//	<prefix>_seq:{c}          per-collection sequence counter
//	<prefix>idx:<c>           FT index over <prefix>{c}: (managed externally)
//
// All keys of a collection share a hash slot so scripts touching a document,
// its metadata and the sequence counter run atomically in cluster mode.
package valkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/metastore/internal/db"
)

// Compile-time check: Store implements db.Engine.
var _ db.Engine = (*Store)(nil)

// DefaultPrefix namespaces all keys written by the engine.
const DefaultPrefix = "metastore:"

const primaryTerm = 1

// Config holds connection parameters for a Valkey store.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	Prefix   string
}

// Store implements db.Engine via rueidis.
type Store struct {
	client rueidis.Client
	prefix string
}

// NewStore creates a Valkey store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{client: client, prefix: prefixOrDefault(cfg.Prefix)}, nil
}

func prefixOrDefault(p string) string {
	if p == "" {
		return DefaultPrefix
	}
	return p
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.b().Ping().Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}

// WaitForReady polls Ping until the store responds or timeout expires.
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

func (s *Store) docKey(collection, id string) string {
	return s.prefix + "{" + collection + "}:" + id
}

func (s *Store) metaKey(collection, id string) string {
	return s.prefix + "_meta:{" + collection + "}:" + id
}

func (s *Store) seqKey(collection string) string {
	return s.prefix + "_seq:{" + collection + "}"
}

// IndexName returns the FT index expected to cover a collection.
func (s *Store) IndexName(collection string) string {
	return s.prefix + "idx:" + collection
}

// idFromKey strips the document key prefix of collection.
func (s *Store) idFromKey(collection, key string) string {
	return strings.TrimPrefix(key, s.prefix+"{"+collection+"}:")
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

// isRedisErr checks if err is a Redis server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return containsIgnoreCase(re.Error(), substr)
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
