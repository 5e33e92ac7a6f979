package db

import (
	"errors"
	"net/http"
)

// Sentinel errors for engine operations.
var (
	ErrVersionConflict  = errors.New("db: version conflict")
	ErrDocumentNotFound = errors.New("db: document not found")
	ErrIndexNotFound    = errors.New("db: index not found")
	ErrInvalidDocument  = errors.New("db: invalid document")
	ErrUnsupported      = errors.New("db: unsupported query")
)

// Op constants name engine operations for error context.
const (
	OpPing   = "ping"
	OpWrite  = "write"
	OpGet    = "get"
	OpUpdate = "update"
	OpDelete = "delete"
	OpBulk   = "bulk"
	OpSearch = "search"
)

// Error wraps an underlying error with the operation and target for diagnostics.
type Error struct {
	Op    string
	Index string
	ID    string
	Err   error
}

func (e *Error) Error() string {
	target := e.Index
	if e.ID != "" {
		target += "/" + e.ID
	}
	if target == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + target + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCause is the engine's description of a failed item.
type ErrorCause struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (c *ErrorCause) Error() string { return c.Type + ": " + c.Reason }

// CauseFor renders err in the engine's error cause format.
func CauseFor(err error) *ErrorCause {
	var c *ErrorCause
	if errors.As(err, &c) {
		return c
	}
	t := "engine_exception"
	switch {
	case errors.Is(err, ErrVersionConflict):
		t = "version_conflict_engine_exception"
	case errors.Is(err, ErrDocumentNotFound):
		t = "document_missing_exception"
	case errors.Is(err, ErrIndexNotFound):
		t = "index_not_found_exception"
	case errors.Is(err, ErrInvalidDocument):
		t = "mapper_parsing_exception"
	case errors.Is(err, ErrUnsupported):
		t = "query_shard_exception"
	}
	return &ErrorCause{Type: t, Reason: err.Error()}
}

// StatusFor returns the HTTP status the engine reports for err.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidDocument), errors.Is(err, ErrUnsupported):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
