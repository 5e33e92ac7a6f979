package chi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/kailas-cloud/metastore"
)

// bulkMeta is the metadata object of a bulk action line.
type bulkMeta struct {
	Index           string `json:"_index"`
	ID              string `json:"_id"`
	IfSeqNo         *int64 `json:"if_seq_no"`
	IfPrimaryTerm   *int64 `json:"if_primary_term"`
	RetryOnConflict int    `json:"retry_on_conflict"`
}

// parseBulk decodes an NDJSON bulk body. index and create are followed by a
// source line, update by a {"doc": {...}} line, delete by nothing.
func parseBulk(body []byte) ([]metastore.WriteRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	var reqs []metastore.WriteRequest
	for line := 1; ; line++ {
		var action map[string]bulkMeta
		if err := dec.Decode(&action); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("malformed action/metadata line [%d]: %w", line, err)
		}
		if len(action) != 1 {
			return nil, fmt.Errorf("malformed action/metadata line [%d], expected a single action", line)
		}

		var req metastore.WriteRequest
		var err error
		for name, meta := range action {
			req, err = bulkRequest(dec, name, meta, &line)
		}
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	if len(reqs) == 0 {
		return nil, errors.New("request body is required")
	}
	return reqs, nil
}

func bulkRequest(dec *json.Decoder, name string, meta bulkMeta, line *int) (metastore.WriteRequest, error) {
	switch name {
	case "index", "create":
		src, err := nextSource(dec, line)
		if err != nil {
			return nil, err
		}
		return metastore.NewPutDataObjectRequest(metastore.PutInput{
			Index:             meta.Index,
			ID:                meta.ID,
			DataObject:        src,
			OverwriteIfExists: name == "index",
		})
	case "update":
		src, err := nextSource(dec, line)
		if err != nil {
			return nil, err
		}
		var payload struct {
			Doc json.RawMessage `json:"doc"`
		}
		if err := json.Unmarshal(src, &payload); err != nil || len(payload.Doc) == 0 {
			return nil, fmt.Errorf("update action on line [%d] must contain [doc]", *line)
		}
		return metastore.NewUpdateDataObjectRequest(metastore.UpdateInput{
			Index:           meta.Index,
			ID:              meta.ID,
			DataObject:      payload.Doc,
			IfSeqNo:         meta.IfSeqNo,
			IfPrimaryTerm:   meta.IfPrimaryTerm,
			RetryOnConflict: meta.RetryOnConflict,
		})
	case "delete":
		return metastore.NewDeleteDataObjectRequest(metastore.DeleteInput{
			Index: meta.Index,
			ID:    meta.ID,
		})
	default:
		return nil, fmt.Errorf("malformed action/metadata line [%d], unknown action [%s]", *line, name)
	}
}

func nextSource(dec *json.Decoder, line *int) (json.RawMessage, error) {
	*line++
	var src json.RawMessage
	if err := dec.Decode(&src); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("missing source line [%d]", *line)
		}
		return nil, fmt.Errorf("malformed source line [%d]: %w", *line, err)
	}
	return src, nil
}
