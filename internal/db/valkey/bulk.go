package valkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/metastore/internal/db"
)

var errEmptyBulk = errors.New("no requests added")

type pendingItem struct {
	pos   int
	item  db.BulkItem
	index string
	id    string
}

// Bulk pipelines consecutive writes and deletes in a single DoMulti. Updates
// need a read before the write and run one at a time, which keeps item
// effects in request order.
func (s *Store) Bulk(ctx context.Context, op *db.BulkOp) (*db.BulkResult, error) {
	if len(op.Items) == 0 {
		return nil, &db.Error{Op: db.OpBulk, Err: errEmptyBulk}
	}
	start := time.Now()
	items := make([]*db.BulkItemResult, len(op.Items))

	var (
		batch []pendingItem
		cmds  rueidis.Commands
	)
	flush := func() {
		if len(cmds) == 0 {
			return
		}
		for i, resp := range s.client.DoMulti(ctx, cmds...) {
			p := batch[i]
			res, err := parseScriptResult(resp, p.index, p.id)
			items[p.pos] = itemResult(p.item.Action(), p.index, p.id, res, err)
		}
		batch, cmds = batch[:0], cmds[:0]
	}

	for i, item := range op.Items {
		if err := ctx.Err(); err != nil {
			return nil, &db.Error{Op: db.OpBulk, Err: err}
		}
		index, id := item.Target()
		switch it := item.(type) {
		case *db.WriteOp:
			if id == "" {
				id = db.NewID()
			}
			if err := db.ValidateSource(it.Source); err != nil {
				items[i] = db.ItemFailure(it.Action(), index, id, err)
				continue
			}
			batch = append(batch, pendingItem{pos: i, item: it, index: index, id: id})
			cmds = append(cmds, s.writeCmd(it, id))
		case *db.DeleteOp:
			batch = append(batch, pendingItem{pos: i, item: it, index: index, id: id})
			cmds = append(cmds, s.deleteCmd(it))
		case *db.UpdateOp:
			flush()
			res, err := s.Update(ctx, it)
			items[i] = itemResult(db.OpTypeUpdate, index, id, res, err)
		default:
			items[i] = db.ItemFailure(item.Action(), index, id, fmt.Errorf("unsupported bulk item %T", item))
		}
	}
	flush()

	out := &db.BulkResult{Items: items, Took: time.Since(start).Milliseconds()}
	out.Errors = out.HasFailures()
	return out, nil
}

func itemResult(action db.OpType, index, id string, res *db.WriteResult, err error) *db.BulkItemResult {
	if err != nil {
		return db.ItemFailure(action, index, id, err)
	}
	return db.ItemSuccess(action, res)
}
