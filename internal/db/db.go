package db

import "context"

// Engine is the document engine facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Engine interface {
	Pinger
	Writer
	Reader
	BulkWriter
	Searcher
	Close() error
}

// Pinger checks engine connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Writer provides single-document mutations.
type Writer interface {
	// Write creates or replaces a document depending on op.OpType.
	Write(ctx context.Context, op *WriteOp) (*WriteResult, error)
	// Update merges a partial document into an existing one.
	Update(ctx context.Context, op *UpdateOp) (*WriteResult, error)
	// Delete removes a document. A missing document yields ResultNotFound.
	Delete(ctx context.Context, op *DeleteOp) (*WriteResult, error)
}

// Reader fetches documents by id.
type Reader interface {
	// Get returns the document. A nil result with a nil error means the
	// engine produced no result at all.
	Get(ctx context.Context, op *GetOp) (*GetResult, error)
}

// BulkWriter executes heterogeneous batches with per-item outcomes.
type BulkWriter interface {
	Bulk(ctx context.Context, op *BulkOp) (*BulkResult, error)
}

// Searcher runs structured queries.
type Searcher interface {
	Search(ctx context.Context, op *SearchOp) (*SearchResult, error)
}
