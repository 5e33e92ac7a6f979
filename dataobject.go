package metastore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/metastore/async"
	"github.com/kailas-cloud/metastore/internal/db"
	"github.com/kailas-cloud/metastore/internal/privilege"
)

// Operation names used in logs and metrics.
const (
	opPut    = "put"
	opGet    = "get"
	opUpdate = "update"
	opDelete = "delete"
	opBulk   = "bulk"
	opSearch = "search"
)

// PutDataObjectAsync writes a whole document. A nil exec uses the client's
// executor. The engine call runs on exec with elevated privileges.
func (c *Client) PutDataObjectAsync(
	ctx context.Context, req *PutDataObjectRequest, exec async.Executor,
) *async.Future[*PutDataObjectResponse] {
	start := time.Now()
	op, err := translatePut(req)
	if err != nil {
		c.obs.observe(opPut, nilIfNil(req), start, err)
		return async.Failed[*PutDataObjectResponse](err)
	}
	return async.Supply(c.exec(exec), func() (*PutDataObjectResponse, error) {
		resp, err := c.put(ctx, op)
		c.obs.observe(opPut, req, start, err)
		return resp, err
	})
}

func (c *Client) put(ctx context.Context, op *db.WriteOp) (*PutDataObjectResponse, error) {
	res, err := privilege.Run(ctx, func(ctx context.Context) (*db.WriteResult, error) {
		return c.engine.Write(ctx, op)
	})
	if err != nil {
		return nil, engineError(opPut, op.Index, op.ID, err)
	}
	w, err := newWriteResponse(res, op.ID)
	if err != nil {
		return nil, renderError(opPut, err)
	}
	return &PutDataObjectResponse{w}, nil
}

// GetDataObjectAsync fetches one document by id. A missing document is a
// successful response with Found false.
func (c *Client) GetDataObjectAsync(
	ctx context.Context, req *GetDataObjectRequest, exec async.Executor,
) *async.Future[*GetDataObjectResponse] {
	start := time.Now()
	op, err := translateGet(req)
	if err != nil {
		c.obs.observe(opGet, nilIfNil(req), start, err)
		return async.Failed[*GetDataObjectResponse](err)
	}
	return async.Supply(c.exec(exec), func() (*GetDataObjectResponse, error) {
		resp, err := c.get(ctx, op)
		c.obs.observe(opGet, req, start, err)
		return resp, err
	})
}

func (c *Client) get(ctx context.Context, op *db.GetOp) (*GetDataObjectResponse, error) {
	res, err := privilege.Run(ctx, func(ctx context.Context) (*db.GetResult, error) {
		return c.engine.Get(ctx, op)
	})
	if err != nil {
		return nil, engineError(opGet, op.Index, op.ID, err)
	}
	resp, err := newGetResponse(res, op.ID)
	if err != nil {
		return nil, renderError(opGet, err)
	}
	return resp, nil
}

// UpdateDataObjectAsync merges a partial document into an existing one.
func (c *Client) UpdateDataObjectAsync(
	ctx context.Context, req *UpdateDataObjectRequest, exec async.Executor,
) *async.Future[*UpdateDataObjectResponse] {
	start := time.Now()
	op, err := translateUpdate(req)
	if err != nil {
		c.obs.observe(opUpdate, nilIfNil(req), start, err)
		return async.Failed[*UpdateDataObjectResponse](err)
	}
	return async.Supply(c.exec(exec), func() (*UpdateDataObjectResponse, error) {
		resp, err := c.update(ctx, op)
		c.obs.observe(opUpdate, req, start, err)
		return resp, err
	})
}

func (c *Client) update(ctx context.Context, op *db.UpdateOp) (*UpdateDataObjectResponse, error) {
	res, err := privilege.Run(ctx, func(ctx context.Context) (*db.WriteResult, error) {
		return c.engine.Update(ctx, op)
	})
	if err != nil {
		return nil, engineError(opUpdate, op.Index, op.ID, err)
	}
	w, err := newWriteResponse(res, op.ID)
	if err != nil {
		return nil, renderError(opUpdate, err)
	}
	return &UpdateDataObjectResponse{w}, nil
}

// DeleteDataObjectAsync removes one document by id. Deleting a missing
// document succeeds with ResultNotFound.
func (c *Client) DeleteDataObjectAsync(
	ctx context.Context, req *DeleteDataObjectRequest, exec async.Executor,
) *async.Future[*DeleteDataObjectResponse] {
	start := time.Now()
	op, err := translateDelete(req)
	if err != nil {
		c.obs.observe(opDelete, nilIfNil(req), start, err)
		return async.Failed[*DeleteDataObjectResponse](err)
	}
	return async.Supply(c.exec(exec), func() (*DeleteDataObjectResponse, error) {
		resp, err := c.remove(ctx, op)
		c.obs.observe(opDelete, req, start, err)
		return resp, err
	})
}

func (c *Client) remove(ctx context.Context, op *db.DeleteOp) (*DeleteDataObjectResponse, error) {
	res, err := privilege.Run(ctx, func(ctx context.Context) (*db.WriteResult, error) {
		return c.engine.Delete(ctx, op)
	})
	if err != nil {
		return nil, engineError(opDelete, op.Index, op.ID, err)
	}
	w, err := newWriteResponse(res, op.ID)
	if err != nil {
		return nil, renderError(opDelete, err)
	}
	return &DeleteDataObjectResponse{w}, nil
}

// BulkDataObjectAsync executes a batch. Member failures are reported in
// band; the future fails only when the batch as a whole could not run.
func (c *Client) BulkDataObjectAsync(
	ctx context.Context, req *BulkDataObjectRequest, exec async.Executor,
) *async.Future[*BulkDataObjectResponse] {
	start := time.Now()
	op, err := translateBulk(req)
	if err != nil {
		c.obs.observe(opBulk, nilIfNil(req), start, err)
		return async.Failed[*BulkDataObjectResponse](err)
	}
	reqs := req.Requests()
	return async.Supply(c.exec(exec), func() (*BulkDataObjectResponse, error) {
		resp, err := c.bulk(ctx, op, reqs)
		c.obs.observe(opBulk, req, start, err)
		return resp, err
	})
}

func (c *Client) bulk(ctx context.Context, op *db.BulkOp, reqs []WriteRequest) (*BulkDataObjectResponse, error) {
	res, err := privilege.Run(ctx, func(ctx context.Context) (*db.BulkResult, error) {
		return c.engine.Bulk(ctx, op)
	})
	if err != nil {
		return nil, engineError(opBulk, bulkIndex(reqs), "", err)
	}
	resp, err := aggregateBulk(reqs, res)
	if err != nil {
		return nil, err
	}
	c.obs.logger.Info("Bulk action complete",
		zap.Int("items", resp.Len()),
		zap.Bool("has_failures", resp.HasFailures()),
		zap.Duration("took", resp.Took()),
	)
	return resp, nil
}

// SearchDataObjectAsync queries one or more indices. With multi-tenancy on,
// the query is restricted to the request's tenant before dispatch.
func (c *Client) SearchDataObjectAsync(
	ctx context.Context, req *SearchDataObjectRequest, exec async.Executor,
) *async.Future[*SearchDataObjectResponse] {
	start := time.Now()
	op, err := translateSearch(req, c.multiTenancy)
	if err != nil {
		c.obs.observe(opSearch, nilIfNil(req), start, err)
		return async.Failed[*SearchDataObjectResponse](err)
	}
	e := c.exec(exec)
	raw := async.Supply(e, func() (*db.SearchResult, error) {
		res, err := privilege.Run(ctx, func(ctx context.Context) (*db.SearchResult, error) {
			return c.engine.Search(ctx, op)
		})
		if err != nil {
			err = engineError(opSearch, req.Index(), "", err)
			c.obs.observe(opSearch, req, start, err)
			return nil, err
		}
		return res, nil
	})
	return async.Then(raw, e, func(res *db.SearchResult) (*SearchDataObjectResponse, error) {
		resp, err := newSearchResponse(res)
		if err != nil {
			err = renderError(opSearch, err)
		} else {
			c.obs.logger.Info("Search returned hits",
				zap.String("index", req.Index()),
				zap.Int64("total", resp.TotalHits()),
			)
		}
		c.obs.observe(opSearch, req, start, err)
		return resp, err
	})
}

// Put is PutDataObjectAsync awaited with ctx.
func (c *Client) Put(ctx context.Context, req *PutDataObjectRequest) (*PutDataObjectResponse, error) {
	return c.PutDataObjectAsync(ctx, req, nil).Await(ctx)
}

// Get is GetDataObjectAsync awaited with ctx.
func (c *Client) Get(ctx context.Context, req *GetDataObjectRequest) (*GetDataObjectResponse, error) {
	return c.GetDataObjectAsync(ctx, req, nil).Await(ctx)
}

// Update is UpdateDataObjectAsync awaited with ctx.
func (c *Client) Update(ctx context.Context, req *UpdateDataObjectRequest) (*UpdateDataObjectResponse, error) {
	return c.UpdateDataObjectAsync(ctx, req, nil).Await(ctx)
}

// Delete is DeleteDataObjectAsync awaited with ctx.
func (c *Client) Delete(ctx context.Context, req *DeleteDataObjectRequest) (*DeleteDataObjectResponse, error) {
	return c.DeleteDataObjectAsync(ctx, req, nil).Await(ctx)
}

// Bulk is BulkDataObjectAsync awaited with ctx.
func (c *Client) Bulk(ctx context.Context, req *BulkDataObjectRequest) (*BulkDataObjectResponse, error) {
	return c.BulkDataObjectAsync(ctx, req, nil).Await(ctx)
}

// Search is SearchDataObjectAsync awaited with ctx.
func (c *Client) Search(ctx context.Context, req *SearchDataObjectRequest) (*SearchDataObjectResponse, error) {
	return c.SearchDataObjectAsync(ctx, req, nil).Await(ctx)
}

func bulkIndex(reqs []WriteRequest) string {
	b := BulkDataObjectRequest{requests: reqs}
	return b.Index()
}

// nilIfNil keeps a typed nil request from becoming a non-nil interface.
func nilIfNil[T DataObjectRequest](r T) DataObjectRequest {
	var zero T
	if any(r) == any(zero) {
		return nil
	}
	return r
}
