package metastore

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kailas-cloud/metastore/internal/db"
)

// Error kinds. Every error returned by the client wraps exactly one of them
// in a *StatusError; use errors.Is to check.
var (
	ErrSerialization       = errors.New("serialization failure")
	ErrTenantRequired      = errors.New("tenant id is required")
	ErrVersionConflict     = errors.New("version conflict")
	ErrInternalAggregation = errors.New("internal aggregation failure")
	ErrEngine              = errors.New("engine failure")
	ErrInvalidRequest      = errors.New("invalid request")
)

// StatusError is a client failure with an HTTP-style status code. Kind is one
// of the Err* sentinels; Err is the underlying cause, if any.
type StatusError struct {
	Status int
	Kind   error
	Msg    string
	Err    error
}

func (e *StatusError) Error() string {
	msg := "metastore: " + e.Kind.Error()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *StatusError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// StatusOf returns the status code carried by err: 200 for nil, the
// StatusError status when present, 500 otherwise.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return http.StatusInternalServerError
}

func invalidRequest(format string, args ...any) error {
	return &StatusError{Status: http.StatusBadRequest, Kind: ErrInvalidRequest, Msg: fmt.Sprintf(format, args...)}
}

func serializationError(msg string, err error) error {
	return &StatusError{Status: http.StatusBadRequest, Kind: ErrSerialization, Msg: msg, Err: err}
}

// renderError reports an engine result that could not be rendered as
// content.
func renderError(op string, err error) error {
	return &StatusError{Status: http.StatusInternalServerError, Kind: ErrEngine, Msg: op + ": render engine result", Err: err}
}

func aggregationError(format string, args ...any) error {
	return &StatusError{Status: http.StatusInternalServerError, Kind: ErrInternalAggregation, Msg: fmt.Sprintf(format, args...)}
}

// engineError translates an engine fault for op on index/id.
func engineError(op, index, id string, err error) error {
	msg := fmt.Sprintf("failed to %s data object in index [%s]", op, index)
	if id != "" {
		msg = fmt.Sprintf("failed to %s data object [%s] in index [%s]", op, id, index)
	}
	switch {
	case errors.Is(err, db.ErrVersionConflict):
		return &StatusError{Status: http.StatusConflict, Kind: ErrVersionConflict, Msg: msg, Err: err}
	case errors.Is(err, db.ErrInvalidDocument), errors.Is(err, db.ErrUnsupported):
		return &StatusError{Status: http.StatusBadRequest, Kind: ErrInvalidRequest, Msg: msg, Err: err}
	case errors.Is(err, db.ErrDocumentNotFound), errors.Is(err, db.ErrIndexNotFound):
		return &StatusError{Status: http.StatusNotFound, Kind: ErrEngine, Msg: msg, Err: err}
	default:
		return &StatusError{Status: http.StatusInternalServerError, Kind: ErrEngine, Msg: msg, Err: err}
	}
}
