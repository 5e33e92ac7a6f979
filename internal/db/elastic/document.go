package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/metastore/internal/db"
)

// Write creates or replaces a document. An empty id lets the cluster assign one.
func (s *Store) Write(ctx context.Context, op *db.WriteOp) (*db.WriteResult, error) {
	if err := db.ValidateSource(op.Source); err != nil {
		return nil, &db.Error{Op: db.OpWrite, Index: op.Index, ID: op.ID, Err: err}
	}
	req := esapi.IndexRequest{
		Index:      op.Index,
		DocumentID: op.ID,
		Body:       bytes.NewReader(op.Source),
		OpType:     string(op.Action()),
		Refresh:    string(op.Refresh),
	}
	res, err := req.Do(ctx, s.transport)
	if err != nil {
		return nil, &db.Error{Op: db.OpWrite, Index: op.Index, ID: op.ID, Err: err}
	}
	var out db.WriteResult
	if err := decode(res, &out); err != nil {
		return nil, &db.Error{Op: db.OpWrite, Index: op.Index, ID: op.ID, Err: err}
	}
	return &out, nil
}

// Update sends a partial-document update. Token checks and conflict retries
// are performed by the cluster.
func (s *Store) Update(ctx context.Context, op *db.UpdateOp) (*db.WriteResult, error) {
	if err := db.ValidateSource(op.Doc); err != nil {
		return nil, &db.Error{Op: db.OpUpdate, Index: op.Index, ID: op.ID, Err: err}
	}
	body, err := json.Marshal(map[string]json.RawMessage{"doc": op.Doc})
	if err != nil {
		return nil, &db.Error{Op: db.OpUpdate, Index: op.Index, ID: op.ID, Err: err}
	}
	req := esapi.UpdateRequest{
		Index:         op.Index,
		DocumentID:    op.ID,
		Body:          bytes.NewReader(body),
		IfSeqNo:       intPtr(op.IfSeqNo),
		IfPrimaryTerm: intPtr(op.IfPrimaryTerm),
		Refresh:       string(op.Refresh),
	}
	if op.RetryOnConflict > 0 {
		n := op.RetryOnConflict
		req.RetryOnConflict = &n
	}
	res, err := req.Do(ctx, s.transport)
	if err != nil {
		return nil, &db.Error{Op: db.OpUpdate, Index: op.Index, ID: op.ID, Err: err}
	}
	var out db.WriteResult
	if err := decode(res, &out); err != nil {
		return nil, &db.Error{Op: db.OpUpdate, Index: op.Index, ID: op.ID, Err: err}
	}
	return &out, nil
}

// Delete removes a document. The cluster answers 404 with result not_found
// for missing ids, which is reported as a result rather than an error.
func (s *Store) Delete(ctx context.Context, op *db.DeleteOp) (*db.WriteResult, error) {
	req := esapi.DeleteRequest{Index: op.Index, DocumentID: op.ID, Refresh: string(op.Refresh)}
	res, err := req.Do(ctx, s.transport)
	if err != nil {
		return nil, &db.Error{Op: db.OpDelete, Index: op.Index, ID: op.ID, Err: err}
	}
	var out db.WriteResult
	if res.StatusCode == http.StatusNotFound {
		err = decodeNotFound(res, &out)
	} else {
		err = decode(res, &out)
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpDelete, Index: op.Index, ID: op.ID, Err: err}
	}
	return &out, nil
}

// Get fetches a document. A missing document or index yields Found=false.
func (s *Store) Get(ctx context.Context, op *db.GetOp) (*db.GetResult, error) {
	req := esapi.GetRequest{Index: op.Index, DocumentID: op.ID}
	if f := op.Source; !f.IsZero() {
		if f.Disabled {
			req.Source = []string{"false"}
		} else {
			req.SourceIncludes = f.Includes
			req.SourceExcludes = f.Excludes
		}
	}
	res, err := req.Do(ctx, s.transport)
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Index: op.Index, ID: op.ID, Err: err}
	}
	var out db.GetResult
	if res.StatusCode == http.StatusNotFound {
		err = decodeNotFound(res, &out)
		if isNotFound(err) {
			return &db.GetResult{Index: op.Index, ID: op.ID}, nil
		}
	} else {
		err = decode(res, &out)
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Index: op.Index, ID: op.ID, Err: err}
	}
	return &out, nil
}

// decodeNotFound decodes a 404 body that carries a regular document
// response, falling back to error handling when it carries an error.
func decodeNotFound(res *esapi.Response, v any) error {
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	var probe errorBody
	if json.Unmarshal(body, &probe) == nil && len(probe.Error) > 0 {
		return responseError(res.StatusCode, body)
	}
	return json.Unmarshal(body, v)
}
