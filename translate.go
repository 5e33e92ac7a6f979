package metastore

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kailas-cloud/metastore/internal/db"
	"github.com/kailas-cloud/metastore/query"
)

// ContentMarshaler is implemented by data objects that render their own
// JSON document.
type ContentMarshaler interface {
	ToContent() ([]byte, error)
}

// serialize renders a data object as a JSON object.
func serialize(op string, v any) ([]byte, error) {
	var (
		raw []byte
		err error
	)
	switch d := v.(type) {
	case ContentMarshaler:
		raw, err = d.ToContent()
	case json.RawMessage:
		raw = d
	case []byte:
		raw = d
	default:
		raw, err = json.Marshal(v)
	}
	if err != nil {
		return nil, serializationError(fmt.Sprintf("%s: failed to render data object", op), err)
	}
	if err := db.ValidateSource(raw); err != nil {
		return nil, serializationError(fmt.Sprintf("%s: data object is not a JSON object", op), err)
	}
	return raw, nil
}

func requireIndex(op string, r DataObjectRequest) error {
	if r.Index() == "" {
		return invalidRequest("%s: index is required", op)
	}
	return nil
}

func translatePut(r *PutDataObjectRequest) (*db.WriteOp, error) {
	if r == nil {
		return nil, invalidRequest("put: nil request")
	}
	if err := requireIndex("put", r); err != nil {
		return nil, err
	}
	return putOp(r)
}

func putOp(r *PutDataObjectRequest) (*db.WriteOp, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	src, err := serialize("put", r.dataObject)
	if err != nil {
		return nil, err
	}
	opType := db.OpTypeCreate
	if r.overwriteIfExists {
		opType = db.OpTypeIndex
	}
	return &db.WriteOp{
		Index:   r.index,
		ID:      r.id,
		OpType:  opType,
		Source:  src,
		Refresh: db.RefreshImmediate,
	}, nil
}

func translateGet(r *GetDataObjectRequest) (*db.GetOp, error) {
	if r == nil {
		return nil, invalidRequest("get: nil request")
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &db.GetOp{Index: r.index, ID: r.id, Source: copyFilter(r.fetchSource)}, nil
}

func translateUpdate(r *UpdateDataObjectRequest) (*db.UpdateOp, error) {
	if r == nil {
		return nil, invalidRequest("update: nil request")
	}
	if err := requireIndex("update", r); err != nil {
		return nil, err
	}
	return updateOp(r)
}

func updateOp(r *UpdateDataObjectRequest) (*db.UpdateOp, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	doc, err := serialize("update", r.dataObject)
	if err != nil {
		return nil, err
	}
	op := &db.UpdateOp{
		Index:         r.index,
		ID:            r.id,
		Doc:           doc,
		IfSeqNo:       copyInt(r.ifSeqNo),
		IfPrimaryTerm: copyInt(r.ifPrimaryTerm),
	}
	if r.retryOnConflict > 0 {
		op.RetryOnConflict = r.retryOnConflict
	}
	return op, nil
}

func translateDelete(r *DeleteDataObjectRequest) (*db.DeleteOp, error) {
	if r == nil {
		return nil, invalidRequest("delete: nil request")
	}
	if err := requireIndex("delete", r); err != nil {
		return nil, err
	}
	return deleteOp(r)
}

func deleteOp(r *DeleteDataObjectRequest) (*db.DeleteOp, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &db.DeleteOp{Index: r.index, ID: r.id, Refresh: db.RefreshImmediate}, nil
}

func translateBulk(r *BulkDataObjectRequest) (*db.BulkOp, error) {
	if r == nil {
		return nil, invalidRequest("bulk: nil request")
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	items := make([]db.BulkItem, 0, len(r.requests))
	for i, wr := range r.requests {
		var (
			item db.BulkItem
			err  error
		)
		switch m := wr.(type) {
		case *PutDataObjectRequest:
			item, err = putOp(m)
		case *UpdateDataObjectRequest:
			item, err = updateOp(m)
		case *DeleteDataObjectRequest:
			item, err = deleteOp(m)
		default:
			err = invalidRequest("bulk: unsupported request %T at %d", wr, i)
		}
		if err != nil {
			return nil, err
		}
		items = append(items, stripRefresh(item))
	}
	return &db.BulkOp{Items: items, Refresh: db.RefreshImmediate}, nil
}

// stripRefresh clears per-item refresh; a batch refreshes once.
func stripRefresh(item db.BulkItem) db.BulkItem {
	switch op := item.(type) {
	case *db.WriteOp:
		op.Refresh = db.RefreshNone
	case *db.DeleteOp:
		op.Refresh = db.RefreshNone
	}
	return item
}

// translateSearch builds the engine query, restricted to the caller's
// tenant when multi-tenancy is on. The request is never modified.
func translateSearch(r *SearchDataObjectRequest, multiTenancy bool) (*db.SearchOp, error) {
	if r == nil {
		return nil, invalidRequest("search: nil request")
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	src := r.source.Clone()
	if multiTenancy {
		if r.tenantID == "" {
			return nil, &StatusError{Status: http.StatusBadRequest, Kind: ErrTenantRequired, Msg: "search: tenant id is required when multi-tenancy is enabled"}
		}
		src = query.WithTenant(src, r.tenantID)
	}
	return &db.SearchOp{Indices: r.Indices(), Source: src}, nil
}
