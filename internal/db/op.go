package db

import "github.com/kailas-cloud/metastore/query"

// OpType is the engine action of a write.
type OpType string

// Write actions as named in bulk responses.
const (
	OpTypeCreate OpType = "create"
	OpTypeIndex  OpType = "index"
	OpTypeUpdate OpType = "update"
	OpTypeDelete OpType = "delete"
)

// Refresh controls write visibility to subsequent searches.
type Refresh string

// Refresh policies.
const (
	RefreshNone      Refresh = ""
	RefreshImmediate Refresh = "true"
	RefreshWaitFor   Refresh = "wait_for"
)

// WriteOp creates (OpTypeCreate) or upserts (OpTypeIndex) a document.
// An empty ID asks the engine to assign one.
type WriteOp struct {
	Index   string
	ID      string
	OpType  OpType
	Source  []byte
	Refresh Refresh
}

// UpdateOp merges Doc into an existing document. IfSeqNo and IfPrimaryTerm
// are both set or both nil.
type UpdateOp struct {
	Index           string
	ID              string
	Doc             []byte
	IfSeqNo         *int64
	IfPrimaryTerm   *int64
	RetryOnConflict int
	Refresh         Refresh
}

// DeleteOp removes a document by id.
type DeleteOp struct {
	Index   string
	ID      string
	Refresh Refresh
}

// GetOp fetches a document by id with optional source projection.
type GetOp struct {
	Index  string
	ID     string
	Source *query.SourceFilter
}

// BulkItem is one member of a batch: *WriteOp, *UpdateOp or *DeleteOp.
type BulkItem interface {
	Action() OpType
	Target() (index, id string)
	bulkItem()
}

// Action implements BulkItem.
func (o *WriteOp) Action() OpType {
	if o.OpType == "" {
		return OpTypeIndex
	}
	return o.OpType
}

// Target implements BulkItem.
func (o *WriteOp) Target() (string, string) { return o.Index, o.ID }
func (*WriteOp) bulkItem() {}

// Action implements BulkItem.
func (*UpdateOp) Action() OpType { return OpTypeUpdate }

// Target implements BulkItem.
func (o *UpdateOp) Target() (string, string) { return o.Index, o.ID }
func (*UpdateOp) bulkItem() {}

// Action implements BulkItem.
func (*DeleteOp) Action() OpType { return OpTypeDelete }

// Target implements BulkItem.
func (o *DeleteOp) Target() (string, string) { return o.Index, o.ID }
func (*DeleteOp) bulkItem() {}

// BulkOp is an ordered batch. Item outcomes are independent.
type BulkOp struct {
	Items   []BulkItem
	Refresh Refresh
}

// SearchOp queries one or more indices.
type SearchOp struct {
	Indices []string
	Source  *query.SearchSource
}
