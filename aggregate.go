package metastore

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/kailas-cloud/metastore/internal/db"
)

// aggregateBulk pairs engine items with the originating requests, by
// position, and builds one typed response per member.
func aggregateBulk(reqs []WriteRequest, res *db.BulkResult) (*BulkDataObjectResponse, error) {
	if res == nil {
		return nil, aggregationError("bulk: engine returned no result for %d requests", len(reqs))
	}
	if len(res.Items) != len(reqs) {
		return nil, aggregationError("bulk: got %d items for %d requests", len(res.Items), len(reqs))
	}
	content, err := newContent(res)
	if err != nil {
		return nil, &StatusError{Status: http.StatusInternalServerError, Kind: ErrInternalAggregation, Msg: "bulk: render batch result", Err: err}
	}

	out := &BulkDataObjectResponse{
		responses:  make([]DataObjectResponse, 0, len(reqs)),
		took:       time.Duration(res.Took) * time.Millisecond,
		ingestTook: time.Duration(res.IngestTook) * time.Millisecond,
		content:    content,
	}
	for i, item := range res.Items {
		if item == nil {
			return nil, aggregationError("bulk: item %d is missing", i)
		}
		resp, err := itemResponse(reqs[i], item)
		if err != nil {
			return nil, err
		}
		if resp.Failed() {
			out.hasFailures = true
			out.errs = multierror.Append(out.errs, itemError(i, reqs[i], item))
		}
		out.responses = append(out.responses, resp)
	}
	return out, nil
}

func itemResponse(req WriteRequest, item *db.BulkItemResult) (DataObjectResponse, error) {
	var want db.OpType
	switch req.(type) {
	case *PutDataObjectRequest:
		if item.Action != db.OpTypeCreate && item.Action != db.OpTypeIndex {
			return nil, aggregationError("bulk: %q item for a put request [%s]", item.Action, req.ID())
		}
		want = item.Action
	case *UpdateDataObjectRequest:
		want = db.OpTypeUpdate
	case *DeleteDataObjectRequest:
		want = db.OpTypeDelete
	default:
		return nil, aggregationError("bulk: unsupported request %T", req)
	}
	if item.Action != want {
		return nil, aggregationError("bulk: %q item for a %s request [%s]", item.Action, want, req.ID())
	}

	w, err := newBulkWriteResponse(item, req.ID())
	if err != nil {
		return nil, &StatusError{Status: http.StatusInternalServerError, Kind: ErrInternalAggregation, Msg: "bulk: render item " + req.ID(), Err: err}
	}
	switch item.Action {
	case db.OpTypeCreate, db.OpTypeIndex:
		return &PutDataObjectResponse{w}, nil
	case db.OpTypeUpdate:
		return &UpdateDataObjectResponse{w}, nil
	default:
		return &DeleteDataObjectResponse{w}, nil
	}
}

func itemError(pos int, req WriteRequest, item *db.BulkItemResult) *ItemError {
	e := &ItemError{
		Position: pos,
		Action:   string(item.Action),
		Index:    firstNonEmpty(item.Index, req.Index()),
		ID:       firstNonEmpty(item.ID, req.ID()),
		Status:   item.Status,
	}
	if item.Error != nil {
		e.Reason = item.Error.Error()
	}
	return e
}
