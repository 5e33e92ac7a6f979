package metastore

import (
	"net/http"
	"slices"
	"strings"

	"github.com/kailas-cloud/metastore/query"
)

// DataObjectRequest is implemented by the six request types of this package.
type DataObjectRequest interface {
	// Index is the target collection. Search and bulk requests return the
	// comma-joined list of their indices.
	Index() string
	// ID is the target document id, empty when not applicable.
	ID() string
	// TenantID is the caller's tenant, empty when absent.
	TenantID() string
	dataObjectRequest()
}

// WriteRequest is a request that can be part of a bulk: put, update or delete.
type WriteRequest interface {
	DataObjectRequest
	withIndex(index string) WriteRequest
	writeRequest()
}

type target struct {
	index    string
	id       string
	tenantID string
}

func (t target) Index() string    { return t.index }
func (t target) ID() string       { return t.id }
func (t target) TenantID() string { return t.tenantID }

// PutInput describes a put. An empty ID lets the engine assign one.
type PutInput struct {
	Index             string
	ID                string
	TenantID          string
	DataObject        any
	OverwriteIfExists bool
}

// PutDataObjectRequest writes a whole document, create-only unless
// OverwriteIfExists.
type PutDataObjectRequest struct {
	target
	dataObject        any
	overwriteIfExists bool
}

// NewPutDataObjectRequest validates in and builds a put request.
func NewPutDataObjectRequest(in PutInput) (*PutDataObjectRequest, error) {
	r := &PutDataObjectRequest{
		target:            target{index: in.Index, id: in.ID, tenantID: in.TenantID},
		dataObject:        in.DataObject,
		overwriteIfExists: in.OverwriteIfExists,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// DataObject returns the payload to store.
func (r *PutDataObjectRequest) DataObject() any { return r.dataObject }

// OverwriteIfExists reports upsert semantics.
func (r *PutDataObjectRequest) OverwriteIfExists() bool { return r.overwriteIfExists }

func (r *PutDataObjectRequest) validate() error {
	if r.dataObject == nil {
		return invalidRequest("put: data object is required")
	}
	return nil
}

func (r *PutDataObjectRequest) withIndex(index string) WriteRequest {
	cp := *r
	cp.index = index
	return &cp
}

func (*PutDataObjectRequest) dataObjectRequest() {}
func (*PutDataObjectRequest) writeRequest()      {}

// GetInput describes a get. FetchSource projects the returned source; nil
// returns the whole document.
type GetInput struct {
	Index       string
	ID          string
	TenantID    string
	FetchSource *query.SourceFilter
}

// GetDataObjectRequest fetches one document by id.
type GetDataObjectRequest struct {
	target
	fetchSource *query.SourceFilter
}

// NewGetDataObjectRequest validates in and builds a get request.
func NewGetDataObjectRequest(in GetInput) (*GetDataObjectRequest, error) {
	r := &GetDataObjectRequest{
		target:      target{index: in.Index, id: in.ID, tenantID: in.TenantID},
		fetchSource: copyFilter(in.FetchSource),
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// FetchSource returns a copy of the source projection, nil for none.
func (r *GetDataObjectRequest) FetchSource() *query.SourceFilter { return copyFilter(r.fetchSource) }

func (r *GetDataObjectRequest) validate() error {
	if r.index == "" {
		return invalidRequest("get: index is required")
	}
	if r.id == "" {
		return invalidRequest("get: id is required")
	}
	return nil
}

func (*GetDataObjectRequest) dataObjectRequest() {}

// UpdateInput describes a partial update. IfSeqNo and IfPrimaryTerm must be
// set together.
type UpdateInput struct {
	Index           string
	ID              string
	TenantID        string
	DataObject      any
	IfSeqNo         *int64
	IfPrimaryTerm   *int64
	RetryOnConflict int
}

// UpdateDataObjectRequest merges a partial document into an existing one.
type UpdateDataObjectRequest struct {
	target
	dataObject      any
	ifSeqNo         *int64
	ifPrimaryTerm   *int64
	retryOnConflict int
}

// NewUpdateDataObjectRequest validates in and builds an update request.
func NewUpdateDataObjectRequest(in UpdateInput) (*UpdateDataObjectRequest, error) {
	r := &UpdateDataObjectRequest{
		target:          target{index: in.Index, id: in.ID, tenantID: in.TenantID},
		dataObject:      in.DataObject,
		ifSeqNo:         copyInt(in.IfSeqNo),
		ifPrimaryTerm:   copyInt(in.IfPrimaryTerm),
		retryOnConflict: in.RetryOnConflict,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// DataObject returns the partial document.
func (r *UpdateDataObjectRequest) DataObject() any { return r.dataObject }

// IfSeqNo returns the expected sequence number and whether one was set.
func (r *UpdateDataObjectRequest) IfSeqNo() (int64, bool) { return deref(r.ifSeqNo) }

// IfPrimaryTerm returns the expected primary term and whether one was set.
func (r *UpdateDataObjectRequest) IfPrimaryTerm() (int64, bool) { return deref(r.ifPrimaryTerm) }

// RetryOnConflict is the number of engine-side retries on a lost race.
func (r *UpdateDataObjectRequest) RetryOnConflict() int { return r.retryOnConflict }

func (r *UpdateDataObjectRequest) validate() error {
	if r.id == "" {
		return invalidRequest("update: id is required")
	}
	if r.dataObject == nil {
		return invalidRequest("update: data object is required")
	}
	if (r.ifSeqNo == nil) != (r.ifPrimaryTerm == nil) {
		return invalidRequest("update: if_seq_no and if_primary_term must be set together")
	}
	if r.ifSeqNo != nil && (*r.ifSeqNo < 0 || *r.ifPrimaryTerm < 1) {
		return invalidRequest("update: invalid concurrency tokens [%d, %d]", *r.ifSeqNo, *r.ifPrimaryTerm)
	}
	if r.retryOnConflict < 0 {
		return invalidRequest("update: retry_on_conflict must be >= 0, got %d", r.retryOnConflict)
	}
	return nil
}

func (r *UpdateDataObjectRequest) withIndex(index string) WriteRequest {
	cp := *r
	cp.index = index
	return &cp
}

func (*UpdateDataObjectRequest) dataObjectRequest() {}
func (*UpdateDataObjectRequest) writeRequest()      {}

// DeleteInput describes a delete.
type DeleteInput struct {
	Index    string
	ID       string
	TenantID string
}

// DeleteDataObjectRequest removes one document by id.
type DeleteDataObjectRequest struct {
	target
}

// NewDeleteDataObjectRequest validates in and builds a delete request.
func NewDeleteDataObjectRequest(in DeleteInput) (*DeleteDataObjectRequest, error) {
	r := &DeleteDataObjectRequest{target: target{index: in.Index, id: in.ID, tenantID: in.TenantID}}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *DeleteDataObjectRequest) validate() error {
	if r.id == "" {
		return invalidRequest("delete: id is required")
	}
	return nil
}

func (r *DeleteDataObjectRequest) withIndex(index string) WriteRequest {
	cp := *r
	cp.index = index
	return &cp
}

func (*DeleteDataObjectRequest) dataObjectRequest() {}
func (*DeleteDataObjectRequest) writeRequest()      {}

// SearchInput describes a search. A nil Source matches all documents.
type SearchInput struct {
	Indices  []string
	Source   *query.SearchSource
	TenantID string
}

// SearchDataObjectRequest queries one or more indices.
type SearchDataObjectRequest struct {
	indices  []string
	source   *query.SearchSource
	tenantID string
}

// NewSearchDataObjectRequest validates in and builds a search request.
// Duplicate indices are dropped, keeping first occurrence order.
func NewSearchDataObjectRequest(in SearchInput) (*SearchDataObjectRequest, error) {
	r := &SearchDataObjectRequest{
		indices:  dedupe(in.Indices),
		source:   in.Source.Clone(),
		tenantID: in.TenantID,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Index returns the comma-joined target indices.
func (r *SearchDataObjectRequest) Index() string { return strings.Join(r.indices, ",") }

// ID is always empty for searches.
func (r *SearchDataObjectRequest) ID() string { return "" }

// TenantID returns the caller's tenant.
func (r *SearchDataObjectRequest) TenantID() string { return r.tenantID }

// Indices returns a copy of the target indices in request order.
func (r *SearchDataObjectRequest) Indices() []string { return slices.Clone(r.indices) }

// Source returns a copy of the search source.
func (r *SearchDataObjectRequest) Source() *query.SearchSource { return r.source.Clone() }

func (r *SearchDataObjectRequest) validate() error {
	if len(r.indices) == 0 {
		return invalidRequest("search: at least one index is required")
	}
	for _, idx := range r.indices {
		if idx == "" {
			return invalidRequest("search: empty index name")
		}
	}
	if r.source == nil {
		return nil
	}
	if err := r.source.Validate(); err != nil {
		return &StatusError{Status: http.StatusBadRequest, Kind: ErrInvalidRequest, Msg: "search", Err: err}
	}
	return nil
}

func (*SearchDataObjectRequest) dataObjectRequest() {}

// BulkInput describes a batch. GlobalIndex fills members without an index.
type BulkInput struct {
	GlobalIndex string
	Requests    []WriteRequest
	TenantID    string
}

// BulkDataObjectRequest is an ordered batch of puts, updates and deletes.
type BulkDataObjectRequest struct {
	requests []WriteRequest
	tenantID string
}

// NewBulkDataObjectRequest validates in and builds a bulk request.
func NewBulkDataObjectRequest(in BulkInput) (*BulkDataObjectRequest, error) {
	reqs := make([]WriteRequest, len(in.Requests))
	for i, wr := range in.Requests {
		if wr == nil {
			return nil, invalidRequest("bulk: request %d is nil", i)
		}
		if wr.Index() == "" && in.GlobalIndex != "" {
			wr = wr.withIndex(in.GlobalIndex)
		}
		reqs[i] = wr
	}
	r := &BulkDataObjectRequest{requests: reqs, tenantID: in.TenantID}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Index returns the comma-joined member indices.
func (r *BulkDataObjectRequest) Index() string { return strings.Join(r.Indices(), ",") }

// ID is always empty for bulks.
func (r *BulkDataObjectRequest) ID() string { return "" }

// TenantID returns the caller's tenant.
func (r *BulkDataObjectRequest) TenantID() string { return r.tenantID }

// Indices returns the sorted union of member indices.
func (r *BulkDataObjectRequest) Indices() []string {
	out := make([]string, 0, len(r.requests))
	for _, wr := range r.requests {
		out = append(out, wr.Index())
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Requests returns the members in order.
func (r *BulkDataObjectRequest) Requests() []WriteRequest { return slices.Clone(r.requests) }

// Len is the number of members.
func (r *BulkDataObjectRequest) Len() int { return len(r.requests) }

func (r *BulkDataObjectRequest) validate() error {
	if len(r.requests) == 0 {
		return invalidRequest("bulk: at least one request is required")
	}
	for i, wr := range r.requests {
		if wr == nil {
			return invalidRequest("bulk: request %d is nil", i)
		}
		if wr.Index() == "" {
			return invalidRequest("bulk: request %d has no index", i)
		}
		if err := validateWrite(wr); err != nil {
			return err
		}
	}
	return nil
}

func (*BulkDataObjectRequest) dataObjectRequest() {}

func validateWrite(wr WriteRequest) error {
	switch r := wr.(type) {
	case *PutDataObjectRequest:
		return r.validate()
	case *UpdateDataObjectRequest:
		return r.validate()
	case *DeleteDataObjectRequest:
		return r.validate()
	default:
		return invalidRequest("unsupported write request %T", wr)
	}
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func copyFilter(f *query.SourceFilter) *query.SourceFilter {
	if f == nil {
		return nil
	}
	return &query.SourceFilter{
		Disabled: f.Disabled,
		Includes: slices.Clone(f.Includes),
		Excludes: slices.Clone(f.Excludes),
	}
}

func copyInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func deref(v *int64) (int64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}
