package valkey

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/metastore/internal/db"
)

type storedDoc struct {
	source      []byte
	version     int64
	seqNo       int64
	primaryTerm int64
}

// Write creates or replaces a document.
func (s *Store) Write(ctx context.Context, op *db.WriteOp) (*db.WriteResult, error) {
	id := op.ID
	if id == "" {
		id = db.NewID()
	}
	if err := db.ValidateSource(op.Source); err != nil {
		return nil, &db.Error{Op: db.OpWrite, Index: op.Index, ID: id, Err: err}
	}
	res, err := parseScriptResult(s.do(ctx, s.writeCmd(op, id)), op.Index, id)
	if err != nil {
		return nil, &db.Error{Op: db.OpWrite, Index: op.Index, ID: id, Err: err}
	}
	return res, nil
}

// Update merges op.Doc into the stored document with optimistic concurrency:
// the merge happens client side and is committed only if the document's
// seq_no is unchanged. A lost race is retried RetryOnConflict times unless
// the caller pinned IfSeqNo/IfPrimaryTerm.
func (s *Store) Update(ctx context.Context, op *db.UpdateOp) (*db.WriteResult, error) {
	if err := db.ValidateSource(op.Doc); err != nil {
		return nil, &db.Error{Op: db.OpUpdate, Index: op.Index, ID: op.ID, Err: err}
	}
	for attempt := 0; ; attempt++ {
		res, err := s.updateOnce(ctx, op)
		if err == nil {
			return res, nil
		}
		pinned := op.IfSeqNo != nil && op.IfPrimaryTerm != nil
		if pinned || attempt >= op.RetryOnConflict || !errors.Is(err, db.ErrVersionConflict) {
			return nil, &db.Error{Op: db.OpUpdate, Index: op.Index, ID: op.ID, Err: err}
		}
	}
}

func (s *Store) updateOnce(ctx context.Context, op *db.UpdateOp) (*db.WriteResult, error) {
	cur, err := s.load(ctx, op.Index, op.ID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, fmt.Errorf("[%s]: document missing: %w", op.ID, db.ErrDocumentNotFound)
	}
	if op.IfSeqNo != nil && op.IfPrimaryTerm != nil &&
		(*op.IfSeqNo != cur.seqNo || *op.IfPrimaryTerm != cur.primaryTerm) {
		return nil, fmt.Errorf(
			"[%s]: version conflict, required seqNo [%d], primary term [%d]. current document has seqNo [%d] and primary term [%d]: %w",
			op.ID, *op.IfSeqNo, *op.IfPrimaryTerm, cur.seqNo, cur.primaryTerm, db.ErrVersionConflict)
	}

	merged, changed, err := db.MergeSource(cur.source, op.Doc)
	if err != nil {
		return nil, err
	}
	if !changed {
		return &db.WriteResult{
			Index:       op.Index,
			ID:          op.ID,
			Version:     cur.version,
			Result:      db.ResultNoop,
			SeqNo:       cur.seqNo,
			PrimaryTerm: cur.primaryTerm,
		}, nil
	}
	return parseScriptResult(s.do(ctx, s.updateCmd(op, cur.seqNo, merged)), op.Index, op.ID)
}

// Delete removes a document. Missing documents report ResultNotFound.
func (s *Store) Delete(ctx context.Context, op *db.DeleteOp) (*db.WriteResult, error) {
	res, err := parseScriptResult(s.do(ctx, s.deleteCmd(op)), op.Index, op.ID)
	if err != nil {
		return nil, &db.Error{Op: db.OpDelete, Index: op.Index, ID: op.ID, Err: err}
	}
	return res, nil
}

// Get fetches a document.
func (s *Store) Get(ctx context.Context, op *db.GetOp) (*db.GetResult, error) {
	cur, err := s.load(ctx, op.Index, op.ID)
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Index: op.Index, ID: op.ID, Err: err}
	}
	if cur == nil {
		return &db.GetResult{Index: op.Index, ID: op.ID}, nil
	}
	src, err := db.FilterSource(cur.source, op.Source)
	if err != nil {
		return nil, &db.Error{Op: db.OpGet, Index: op.Index, ID: op.ID, Err: err}
	}
	return &db.GetResult{
		Index:       op.Index,
		ID:          op.ID,
		Version:     cur.version,
		SeqNo:       cur.seqNo,
		PrimaryTerm: cur.primaryTerm,
		Found:       true,
		Source:      src,
	}, nil
}

// load reads a document and its metadata in one round trip. It returns nil
// when the document does not exist.
func (s *Store) load(ctx context.Context, collection, id string) (*storedDoc, error) {
	resps := s.client.DoMulti(ctx,
		s.b().Arbitrary("JSON.GET").Keys(s.docKey(collection, id)).Build(),
		s.b().Hmget().Key(s.metaKey(collection, id)).Field("version", "seq_no", "primary_term").Build(),
	)
	raw, err := resps[0].ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	meta, err := resps[1].ToArray()
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	if len(meta) != 3 {
		return nil, fmt.Errorf("unexpected meta length %d", len(meta))
	}
	d := &storedDoc{source: []byte(raw)}
	for i, dst := range []*int64{&d.version, &d.seqNo, &d.primaryTerm} {
		v, err := meta[i].AsInt64()
		if err != nil {
			return nil, fmt.Errorf("parse meta: %w", err)
		}
		*dst = v
	}
	return d, nil
}
