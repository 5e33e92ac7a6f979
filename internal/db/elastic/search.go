package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/metastore/internal/db"
	"github.com/kailas-cloud/metastore/query"
)

// Search posts the search source as query DSL. Missing indices are ignored.
func (s *Store) Search(ctx context.Context, op *db.SearchOp) (*db.SearchResult, error) {
	if len(op.Indices) == 0 {
		return nil, &db.Error{Op: db.OpSearch, Err: db.ErrIndexNotFound}
	}
	target := strings.Join(op.Indices, ",")
	src := op.Source
	if src == nil {
		src = query.NewSearchSource(nil)
	}
	body, err := json.Marshal(src)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Index: target, Err: err}
	}
	yes := true
	req := esapi.SearchRequest{
		Index:             op.Indices,
		Body:              bytes.NewReader(body),
		IgnoreUnavailable: &yes,
		AllowNoIndices:    &yes,
	}
	res, err := req.Do(ctx, s.transport)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Index: target, Err: err}
	}
	var out db.SearchResult
	if err := decode(res, &out); err != nil {
		return nil, &db.Error{Op: db.OpSearch, Index: target, Err: err}
	}
	if out.Hits.Hits == nil {
		out.Hits.Hits = []db.SearchHit{}
	}
	return &out, nil
}
