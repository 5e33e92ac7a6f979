package metastore

import (
	"context"
	"fmt"
)

// TypedIndex is a generic, struct-first view of one index backed by a
// metastore Client. T is stored as its JSON encoding; the field tagged
// `metastore:"id"` carries the document id and an optional field tagged
// `metastore:"tenant"` the tenant.
type TypedIndex[T any] struct {
	name   string
	client *Client
	meta   *schemaMeta
}

// NewIndex creates a typed index handle for the given index name.
// T must be a struct with a metastore id tag. Schema is parsed once.
func NewIndex[T any](client *Client, name string) (*TypedIndex[T], error) {
	meta, err := parseSchema[T]()
	if err != nil {
		return nil, fmt.Errorf("new index %q: %w", name, err)
	}
	return &TypedIndex[T]{name: name, client: client, meta: meta}, nil
}

// Name is the backing index.
func (idx *TypedIndex[T]) Name() string { return idx.name }

// Create stores item only if no document with its id exists. An empty id
// lets the engine assign one, which is returned.
func (idx *TypedIndex[T]) Create(ctx context.Context, item T) (string, error) {
	return idx.put(ctx, item, false)
}

// Upsert creates or replaces item. Returns the document id.
func (idx *TypedIndex[T]) Upsert(ctx context.Context, item T) (string, error) {
	return idx.put(ctx, item, true)
}

func (idx *TypedIndex[T]) put(ctx context.Context, item T, overwrite bool) (string, error) {
	req, err := idx.putRequest(item, overwrite)
	if err != nil {
		return "", err
	}
	resp, err := idx.client.Put(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.ID(), nil
}

func (idx *TypedIndex[T]) putRequest(item T, overwrite bool) (*PutDataObjectRequest, error) {
	return NewPutDataObjectRequest(PutInput{
		Index:             idx.name,
		ID:                idx.meta.id(item),
		TenantID:          idx.meta.tenant(item),
		DataObject:        item,
		OverwriteIfExists: overwrite,
	})
}

// UpsertBatch creates or replaces items in one bulk. Per-item failures are
// returned by the response's Err.
func (idx *TypedIndex[T]) UpsertBatch(ctx context.Context, items []T) (*BulkDataObjectResponse, error) {
	reqs := make([]WriteRequest, len(items))
	for i, item := range items {
		r, err := idx.putRequest(item, true)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		reqs[i] = r
	}
	req, err := NewBulkDataObjectRequest(BulkInput{GlobalIndex: idx.name, Requests: reqs})
	if err != nil {
		return nil, err
	}
	return idx.client.Bulk(ctx, req)
}

// Get retrieves a typed item by id. ok is false when the document does
// not exist.
func (idx *TypedIndex[T]) Get(ctx context.Context, id string) (item T, ok bool, err error) {
	req, err := NewGetDataObjectRequest(GetInput{Index: idx.name, ID: id})
	if err != nil {
		return item, false, err
	}
	resp, err := idx.client.Get(ctx, req)
	if err != nil {
		return item, false, fmt.Errorf("get: %w", err)
	}
	src := resp.SourceContent()
	if !resp.Found() || src == nil {
		return item, false, nil
	}
	if err := src.Decode(&item); err != nil {
		return item, false, fmt.Errorf("get: decode %s: %w", id, err)
	}
	idx.meta.setID(&item, resp.ID())
	return item, true, nil
}

// Patch merges the given fields into the stored document.
func (idx *TypedIndex[T]) Patch(ctx context.Context, id string, fields map[string]any) (*UpdateDataObjectResponse, error) {
	req, err := NewUpdateDataObjectRequest(UpdateInput{Index: idx.name, ID: id, DataObject: fields})
	if err != nil {
		return nil, err
	}
	return idx.client.Update(ctx, req)
}

// Delete removes an item by id. Returns false when it did not exist.
func (idx *TypedIndex[T]) Delete(ctx context.Context, id string) (bool, error) {
	req, err := NewDeleteDataObjectRequest(DeleteInput{Index: idx.name, ID: id})
	if err != nil {
		return false, err
	}
	resp, err := idx.client.Delete(ctx, req)
	if err != nil {
		return false, err
	}
	return resp.Result() == ResultDeleted, nil
}

// Search returns a fluent search builder for this index.
func (idx *TypedIndex[T]) Search() *SearchBuilder[T] {
	return &SearchBuilder[T]{idx: idx}
}
