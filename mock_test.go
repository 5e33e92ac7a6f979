package metastore

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/kailas-cloud/metastore/internal/db"
	"github.com/kailas-cloud/metastore/internal/privilege"
)

var errUnexpectedCall = errors.New("unexpected engine call")

// --- db.Engine mock ---

type mockEngine struct {
	writeFn  func(ctx context.Context, op *db.WriteOp) (*db.WriteResult, error)
	getFn    func(ctx context.Context, op *db.GetOp) (*db.GetResult, error)
	updateFn func(ctx context.Context, op *db.UpdateOp) (*db.WriteResult, error)
	deleteFn func(ctx context.Context, op *db.DeleteOp) (*db.WriteResult, error)
	bulkFn   func(ctx context.Context, op *db.BulkOp) (*db.BulkResult, error)
	searchFn func(ctx context.Context, op *db.SearchOp) (*db.SearchResult, error)

	calls      atomic.Int32
	unelevated atomic.Int32
	closed     atomic.Bool
}

func (m *mockEngine) record(ctx context.Context) {
	m.calls.Add(1)
	if !privilege.Elevated(ctx) {
		m.unelevated.Add(1)
	}
}

func (m *mockEngine) Ping(context.Context) error { return nil }

func (m *mockEngine) Close() error {
	m.closed.Store(true)
	return nil
}

func (m *mockEngine) Write(ctx context.Context, op *db.WriteOp) (*db.WriteResult, error) {
	m.record(ctx)
	if m.writeFn == nil {
		return nil, errUnexpectedCall
	}
	return m.writeFn(ctx, op)
}

func (m *mockEngine) Get(ctx context.Context, op *db.GetOp) (*db.GetResult, error) {
	m.record(ctx)
	if m.getFn == nil {
		return nil, errUnexpectedCall
	}
	return m.getFn(ctx, op)
}

func (m *mockEngine) Update(ctx context.Context, op *db.UpdateOp) (*db.WriteResult, error) {
	m.record(ctx)
	if m.updateFn == nil {
		return nil, errUnexpectedCall
	}
	return m.updateFn(ctx, op)
}

func (m *mockEngine) Delete(ctx context.Context, op *db.DeleteOp) (*db.WriteResult, error) {
	m.record(ctx)
	if m.deleteFn == nil {
		return nil, errUnexpectedCall
	}
	return m.deleteFn(ctx, op)
}

func (m *mockEngine) Bulk(ctx context.Context, op *db.BulkOp) (*db.BulkResult, error) {
	m.record(ctx)
	if m.bulkFn == nil {
		return nil, errUnexpectedCall
	}
	return m.bulkFn(ctx, op)
}

func (m *mockEngine) Search(ctx context.Context, op *db.SearchOp) (*db.SearchResult, error) {
	m.record(ctx)
	if m.searchFn == nil {
		return nil, errUnexpectedCall
	}
	return m.searchFn(ctx, op)
}
