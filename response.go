package metastore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/kailas-cloud/metastore/internal/db"
)

// Content is an engine result rendered as JSON. It is parsed at most once;
// every accessor can be called any number of times.
type Content struct {
	raw []byte

	once   sync.Once
	parsed map[string]any
	err    error
}

func newContent(v any) (*Content, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Content{raw: raw}, nil
}

// Raw returns a copy of the JSON bytes. A nil Content returns nil.
func (c *Content) Raw() []byte {
	if c == nil {
		return nil
	}
	return bytes.Clone(c.raw)
}

// Decode unmarshals the content into v.
func (c *Content) Decode(v any) error {
	if c == nil {
		return fmt.Errorf("metastore: decode nil content")
	}
	return json.Unmarshal(c.raw, v)
}

// Map returns the content as a generic JSON object. The result is cached
// and shared between calls; callers must not modify it.
func (c *Content) Map() (map[string]any, error) {
	if c == nil {
		return nil, nil
	}
	c.once.Do(func() {
		c.err = json.Unmarshal(c.raw, &c.parsed)
	})
	return c.parsed, c.err
}

// MarshalJSON renders the raw content.
func (c *Content) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	return c.raw, nil
}

func (c *Content) String() string {
	if c == nil {
		return "null"
	}
	return string(c.raw)
}

// Result is the outcome of a write.
type Result string

// Write outcomes.
const (
	ResultCreated  Result = "created"
	ResultUpdated  Result = "updated"
	ResultDeleted  Result = "deleted"
	ResultNotFound Result = "not_found"
	ResultNoop     Result = "noop"
)

// DataObjectResponse is implemented by the put, get, update and delete
// responses.
type DataObjectResponse interface {
	// ID is the document id.
	ID() string
	// Failed reports an in-band bulk item failure. Always false outside a bulk.
	Failed() bool
	// Content is the engine result, nil when the engine returned none.
	Content() *Content
	dataObjectResponse()
}

// WriteResponse carries the metadata common to put, update and delete.
type WriteResponse struct {
	id      string
	failed  bool
	content *Content
	res     db.WriteResult
	status  int
	cause   *db.ErrorCause
}

func newWriteResponse(res *db.WriteResult, fallbackID string) (WriteResponse, error) {
	if res == nil {
		return WriteResponse{id: fallbackID}, nil
	}
	content, err := newContent(res)
	if err != nil {
		return WriteResponse{}, err
	}
	return WriteResponse{id: firstNonEmpty(res.ID, fallbackID), content: content, res: *res}, nil
}

func newBulkWriteResponse(item *db.BulkItemResult, fallbackID string) (WriteResponse, error) {
	content, err := newContent(item)
	if err != nil {
		return WriteResponse{}, err
	}
	return WriteResponse{
		id:      firstNonEmpty(item.ID, fallbackID),
		failed:  item.Failed(),
		content: content,
		res:     item.WriteResult,
		status:  item.Status,
		cause:   item.Error,
	}, nil
}

// ID is the document id.
func (r *WriteResponse) ID() string { return r.id }

// Failed reports an in-band bulk item failure.
func (r *WriteResponse) Failed() bool { return r.failed }

// Content is the engine result, nil when the engine returned none.
func (r *WriteResponse) Content() *Content { return r.content }

// Result is the write outcome, empty for failed items.
func (r *WriteResponse) Result() Result { return Result(r.res.Result) }

// Version is the document version after the write.
func (r *WriteResponse) Version() int64 { return r.res.Version }

// SeqNo is the sequence number assigned to the write.
func (r *WriteResponse) SeqNo() int64 { return r.res.SeqNo }

// PrimaryTerm is the primary term of the write.
func (r *WriteResponse) PrimaryTerm() int64 { return r.res.PrimaryTerm }

// Status is the bulk item status, zero outside a bulk.
func (r *WriteResponse) Status() int { return r.status }

// FailureReason describes a failed bulk item, empty otherwise.
func (r *WriteResponse) FailureReason() string {
	if r.cause == nil {
		return ""
	}
	return r.cause.Error()
}

func (*WriteResponse) dataObjectResponse() {}

// PutDataObjectResponse is the outcome of a put.
type PutDataObjectResponse struct{ WriteResponse }

// UpdateDataObjectResponse is the outcome of an update. Content is nil when
// the engine produced no result.
type UpdateDataObjectResponse struct{ WriteResponse }

// DeleteDataObjectResponse is the outcome of a delete. A missing document is
// reported with ResultNotFound, not as an error.
type DeleteDataObjectResponse struct{ WriteResponse }

// GetDataObjectResponse is the outcome of a get. When the engine produced no
// result, Content and Source are nil and Found is false; callers must check
// before dereferencing.
type GetDataObjectResponse struct {
	id      string
	content *Content
	res     *db.GetResult
	source  *Content
}

func newGetResponse(res *db.GetResult, fallbackID string) (*GetDataObjectResponse, error) {
	if res == nil {
		return &GetDataObjectResponse{id: fallbackID}, nil
	}
	content, err := newContent(res)
	if err != nil {
		return nil, err
	}
	r := &GetDataObjectResponse{id: firstNonEmpty(res.ID, fallbackID), content: content, res: res}
	if res.Found && len(res.Source) > 0 {
		r.source = &Content{raw: res.Source}
	}
	return r, nil
}

// ID is the document id.
func (r *GetDataObjectResponse) ID() string { return r.id }

// Failed is always false.
func (r *GetDataObjectResponse) Failed() bool { return false }

// Content is the engine result, nil when the engine returned none.
func (r *GetDataObjectResponse) Content() *Content { return r.content }

// Found reports whether the document exists.
func (r *GetDataObjectResponse) Found() bool { return r.res != nil && r.res.Found }

// Source returns the stored document, nil when not found or not fetched.
func (r *GetDataObjectResponse) Source() map[string]any {
	m, err := r.source.Map()
	if err != nil {
		return nil
	}
	return m
}

// SourceContent returns the stored document as content, nil when absent.
func (r *GetDataObjectResponse) SourceContent() *Content { return r.source }

// Version is the document version, zero when not found.
func (r *GetDataObjectResponse) Version() int64 {
	if !r.Found() {
		return 0
	}
	return r.res.Version
}

// SeqNo is the sequence number of the last write, zero when not found.
func (r *GetDataObjectResponse) SeqNo() int64 {
	if !r.Found() {
		return 0
	}
	return r.res.SeqNo
}

// PrimaryTerm is the primary term of the last write, zero when not found.
func (r *GetDataObjectResponse) PrimaryTerm() int64 {
	if !r.Found() {
		return 0
	}
	return r.res.PrimaryTerm
}

func (*GetDataObjectResponse) dataObjectResponse() {}

// ItemError describes one failed bulk item.
type ItemError struct {
	Position int
	Action   string
	Index    string
	ID       string
	Status   int
	Reason   string
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %s [%s/%s] failed with status %s: %s",
		e.Position, e.Action, e.Index, e.ID, strconv.Itoa(e.Status), e.Reason)
}

// BulkDataObjectResponse holds one response per bulk member, in request order.
type BulkDataObjectResponse struct {
	responses   []DataObjectResponse
	took        time.Duration
	ingestTook  time.Duration
	hasFailures bool
	content     *Content
	errs        *multierror.Error
}

// Responses returns the member responses in request order.
func (r *BulkDataObjectResponse) Responses() []DataObjectResponse {
	out := make([]DataObjectResponse, len(r.responses))
	copy(out, r.responses)
	return out
}

// Len is the number of member responses.
func (r *BulkDataObjectResponse) Len() int { return len(r.responses) }

// At returns the i-th member response.
func (r *BulkDataObjectResponse) At(i int) DataObjectResponse { return r.responses[i] }

// Took is the engine time spent on the batch.
func (r *BulkDataObjectResponse) Took() time.Duration { return r.took }

// IngestTook is the engine time spent in ingest pipelines.
func (r *BulkDataObjectResponse) IngestTook() time.Duration { return r.ingestTook }

// HasFailures reports whether any member failed.
func (r *BulkDataObjectResponse) HasFailures() bool { return r.hasFailures }

// Content is the whole engine batch result.
func (r *BulkDataObjectResponse) Content() *Content { return r.content }

// Err joins the member failures, nil when every member succeeded.
func (r *BulkDataObjectResponse) Err() error { return r.errs.ErrorOrNil() }

// SearchDataObjectResponse wraps the engine search result. Callers decode
// Content lazily.
type SearchDataObjectResponse struct {
	content *Content
	total   int64
	took    time.Duration
}

func newSearchResponse(res *db.SearchResult) (*SearchDataObjectResponse, error) {
	if res == nil {
		return &SearchDataObjectResponse{}, nil
	}
	content, err := newContent(res)
	if err != nil {
		return nil, err
	}
	return &SearchDataObjectResponse{
		content: content,
		total:   res.Hits.Total.Value,
		took:    time.Duration(res.Took) * time.Millisecond,
	}, nil
}

// Content is the engine search result, nil when the engine returned none.
func (r *SearchDataObjectResponse) Content() *Content { return r.content }

// TotalHits is the number of matching documents.
func (r *SearchDataObjectResponse) TotalHits() int64 { return r.total }

// Took is the engine search time.
func (r *SearchDataObjectResponse) Took() time.Duration { return r.took }

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
