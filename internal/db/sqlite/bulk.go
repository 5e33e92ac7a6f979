package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/metastore/internal/db"
)

var errEmptyBulk = errors.New("no requests added")

// Bulk applies each item in its own transaction. A failing item does not
// affect the others.
func (e *Engine) Bulk(ctx context.Context, op *db.BulkOp) (*db.BulkResult, error) {
	if len(op.Items) == 0 {
		return nil, &db.Error{Op: db.OpBulk, Err: errEmptyBulk}
	}
	start := time.Now()
	out := &db.BulkResult{Items: make([]*db.BulkItemResult, 0, len(op.Items))}

	for _, item := range op.Items {
		if err := ctx.Err(); err != nil {
			return nil, &db.Error{Op: db.OpBulk, Err: err}
		}
		index, id := item.Target()
		res, err := e.apply(ctx, item)
		if err != nil {
			out.Items = append(out.Items, db.ItemFailure(item.Action(), index, id, err))
			out.Errors = true
			continue
		}
		out.Items = append(out.Items, db.ItemSuccess(item.Action(), res))
	}
	out.Took = time.Since(start).Milliseconds()
	return out, nil
}

func (e *Engine) apply(ctx context.Context, item db.BulkItem) (*db.WriteResult, error) {
	switch it := item.(type) {
	case *db.WriteOp:
		return e.Write(ctx, it)
	case *db.UpdateOp:
		return e.Update(ctx, it)
	case *db.DeleteOp:
		return e.Delete(ctx, it)
	default:
		return nil, fmt.Errorf("unsupported bulk item %T", item)
	}
}
