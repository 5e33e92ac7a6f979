package db

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Result is the outcome of a write as reported by the engine.
type Result string

// Write outcomes.
const (
	ResultCreated  Result = "created"
	ResultUpdated  Result = "updated"
	ResultDeleted  Result = "deleted"
	ResultNotFound Result = "not_found"
	ResultNoop     Result = "noop"
)

// WriteResult is the engine acknowledgement of a create, index, update or delete.
type WriteResult struct {
	Index       string `json:"_index"`
	ID          string `json:"_id"`
	Version     int64  `json:"_version"`
	Result      Result `json:"result"`
	SeqNo       int64  `json:"_seq_no"`
	PrimaryTerm int64  `json:"_primary_term"`
}

// GetResult is a fetched document. Metadata and Source are only meaningful
// when Found is true.
type GetResult struct {
	Index       string          `json:"_index"`
	ID          string          `json:"_id"`
	Version     int64           `json:"_version"`
	SeqNo       int64           `json:"_seq_no"`
	PrimaryTerm int64           `json:"_primary_term"`
	Found       bool            `json:"found"`
	Source      json.RawMessage `json:"_source,omitempty"`
}

type getNotFoundJSON struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
	Found bool   `json:"found"`
}

type getFoundJSON GetResult

// MarshalJSON omits document metadata for missing documents.
func (r *GetResult) MarshalJSON() ([]byte, error) {
	if !r.Found {
		return json.Marshal(getNotFoundJSON{Index: r.Index, ID: r.ID})
	}
	return json.Marshal((*getFoundJSON)(r))
}

// BulkItemResult is the outcome of one batch member.
type BulkItemResult struct {
	Action OpType
	WriteResult
	Status int
	Error  *ErrorCause
}

// Failed reports whether the item failed.
func (r *BulkItemResult) Failed() bool { return r.Error != nil }

// ItemFailure builds a failed item outcome for err.
func ItemFailure(action OpType, index, id string, err error) *BulkItemResult {
	return &BulkItemResult{
		Action:      action,
		WriteResult: WriteResult{Index: index, ID: id},
		Status:      StatusFor(err),
		Error:       CauseFor(err),
	}
}

// ItemSuccess builds a successful item outcome.
func ItemSuccess(action OpType, res *WriteResult) *BulkItemResult {
	status := http.StatusOK
	if res.Result == ResultCreated {
		status = http.StatusCreated
	} else if res.Result == ResultNotFound {
		status = http.StatusNotFound
	}
	return &BulkItemResult{Action: action, WriteResult: *res, Status: status}
}

type bulkItemBody struct {
	Index       string      `json:"_index"`
	ID          string      `json:"_id"`
	Version     int64       `json:"_version,omitempty"`
	Result      Result      `json:"result,omitempty"`
	SeqNo       *int64      `json:"_seq_no,omitempty"`
	PrimaryTerm int64       `json:"_primary_term,omitempty"`
	Status      int         `json:"status"`
	Error       *ErrorCause `json:"error,omitempty"`
}

// MarshalJSON renders {"<action>": {...}}.
func (r *BulkItemResult) MarshalJSON() ([]byte, error) {
	body := bulkItemBody{
		Index:  r.Index,
		ID:     r.ID,
		Status: r.Status,
		Error:  r.Error,
	}
	if r.Error == nil {
		seq := r.SeqNo
		body.Version = r.Version
		body.Result = r.Result
		body.SeqNo = &seq
		body.PrimaryTerm = r.PrimaryTerm
	}
	return json.Marshal(map[OpType]bulkItemBody{r.Action: body})
}

// UnmarshalJSON parses {"<action>": {...}}.
func (r *BulkItemResult) UnmarshalJSON(data []byte) error {
	var m map[OpType]bulkItemBody
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if len(m) != 1 {
		return fmt.Errorf("bulk item: expected one action, got %d", len(m))
	}
	for action, body := range m {
		r.Action = action
		r.WriteResult = WriteResult{
			Index:       body.Index,
			ID:          body.ID,
			Version:     body.Version,
			Result:      body.Result,
			PrimaryTerm: body.PrimaryTerm,
		}
		if body.SeqNo != nil {
			r.SeqNo = *body.SeqNo
		}
		r.Status = body.Status
		r.Error = body.Error
	}
	return nil
}

// BulkResult is the outcome of a batch. Items are in request order.
type BulkResult struct {
	Took       int64             `json:"took"`
	IngestTook int64             `json:"ingest_took,omitempty"`
	Errors     bool              `json:"errors"`
	Items      []*BulkItemResult `json:"items"`
}

// HasFailures reports whether any item failed.
func (r *BulkResult) HasFailures() bool {
	for _, it := range r.Items {
		if it.Failed() {
			return true
		}
	}
	return false
}

// SearchResult is the engine search response.
type SearchResult struct {
	Took     int64      `json:"took"`
	TimedOut bool       `json:"timed_out"`
	Hits     SearchHits `json:"hits"`
}

// SearchHits holds the total count and the returned page of hits.
type SearchHits struct {
	Total    TotalHits   `json:"total"`
	MaxScore *float64    `json:"max_score"`
	Hits     []SearchHit `json:"hits"`
}

// TotalHits is the number of matching documents.
type TotalHits struct {
	Value    int64  `json:"value"`
	Relation string `json:"relation"`
}

// SearchHit is a single matching document.
type SearchHit struct {
	Index  string          `json:"_index"`
	ID     string          `json:"_id"`
	Score  *float64        `json:"_score"`
	Source json.RawMessage `json:"_source,omitempty"`
	Sort   []any           `json:"sort,omitempty"`
}
