package privilege

import (
	"context"

	"github.com/kailas-cloud/metastore/internal/db"
)

// Guard wraps an engine so that every data call requires an elevated context.
// Ping and Close are not guarded.
func Guard(e db.Engine) db.Engine {
	if g, ok := e.(*guarded); ok {
		return g
	}
	return &guarded{next: e}
}

type guarded struct {
	next db.Engine
}

func (g *guarded) Ping(ctx context.Context) error { return g.next.Ping(ctx) }

func (g *guarded) Close() error { return g.next.Close() }

func (g *guarded) Write(ctx context.Context, op *db.WriteOp) (*db.WriteResult, error) {
	if err := Check(ctx); err != nil {
		return nil, &db.Error{Op: db.OpWrite, Index: op.Index, ID: op.ID, Err: err}
	}
	return g.next.Write(ctx, op)
}

func (g *guarded) Get(ctx context.Context, op *db.GetOp) (*db.GetResult, error) {
	if err := Check(ctx); err != nil {
		return nil, &db.Error{Op: db.OpGet, Index: op.Index, ID: op.ID, Err: err}
	}
	return g.next.Get(ctx, op)
}

func (g *guarded) Update(ctx context.Context, op *db.UpdateOp) (*db.WriteResult, error) {
	if err := Check(ctx); err != nil {
		return nil, &db.Error{Op: db.OpUpdate, Index: op.Index, ID: op.ID, Err: err}
	}
	return g.next.Update(ctx, op)
}

func (g *guarded) Delete(ctx context.Context, op *db.DeleteOp) (*db.WriteResult, error) {
	if err := Check(ctx); err != nil {
		return nil, &db.Error{Op: db.OpDelete, Index: op.Index, ID: op.ID, Err: err}
	}
	return g.next.Delete(ctx, op)
}

func (g *guarded) Bulk(ctx context.Context, op *db.BulkOp) (*db.BulkResult, error) {
	if err := Check(ctx); err != nil {
		return nil, &db.Error{Op: db.OpBulk, Err: err}
	}
	return g.next.Bulk(ctx, op)
}

func (g *guarded) Search(ctx context.Context, op *db.SearchOp) (*db.SearchResult, error) {
	if err := Check(ctx); err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	return g.next.Search(ctx, op)
}
