package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/metastore/internal/db"
)

var errEmptyBulk = errors.New("no requests added")

type bulkMeta struct {
	Index           string `json:"_index,omitempty"`
	ID              string `json:"_id,omitempty"`
	IfSeqNo         *int64 `json:"if_seq_no,omitempty"`
	IfPrimaryTerm   *int64 `json:"if_primary_term,omitempty"`
	RetryOnConflict int    `json:"retry_on_conflict,omitempty"`
}

// Bulk sends the batch as one NDJSON request.
func (s *Store) Bulk(ctx context.Context, op *db.BulkOp) (*db.BulkResult, error) {
	if len(op.Items) == 0 {
		return nil, &db.Error{Op: db.OpBulk, Err: errEmptyBulk}
	}
	body, err := encodeBulk(op.Items)
	if err != nil {
		return nil, &db.Error{Op: db.OpBulk, Err: err}
	}
	res, err := esapi.BulkRequest{Body: bytes.NewReader(body), Refresh: string(op.Refresh)}.Do(ctx, s.transport)
	if err != nil {
		return nil, &db.Error{Op: db.OpBulk, Err: err}
	}
	var out db.BulkResult
	if err := decode(res, &out); err != nil {
		return nil, &db.Error{Op: db.OpBulk, Err: err}
	}
	if len(out.Items) != len(op.Items) {
		return nil, &db.Error{Op: db.OpBulk, Err: fmt.Errorf("got %d items for %d requests", len(out.Items), len(op.Items))}
	}
	return &out, nil
}

func encodeBulk(items []db.BulkItem) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		index, id := item.Target()
		meta := bulkMeta{Index: index, ID: id}
		var doc any
		switch it := item.(type) {
		case *db.WriteOp:
			doc = json.RawMessage(it.Source)
		case *db.UpdateOp:
			meta.IfSeqNo, meta.IfPrimaryTerm = it.IfSeqNo, it.IfPrimaryTerm
			meta.RetryOnConflict = it.RetryOnConflict
			doc = map[string]json.RawMessage{"doc": it.Doc}
		case *db.DeleteOp:
		default:
			return nil, fmt.Errorf("unsupported bulk item %T", item)
		}
		if err := enc.Encode(map[db.OpType]bulkMeta{item.Action(): meta}); err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode %s %s/%s: %w", item.Action(), index, id, err)
		}
	}
	return buf.Bytes(), nil
}
