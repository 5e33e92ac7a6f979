package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/metastore"
	"github.com/kailas-cloud/metastore/internal/db"
)

// Error types reported in the "type" member of an error body.
const (
	typeSecurity           = "security_exception"
	typeParsing            = "parsing_exception"
	typeIllegalArgument    = "illegal_argument_exception"
	typeSerialization      = "serialization_exception"
	typeTenantRequired     = "tenant_required_exception"
	typeVersionConflict    = "version_conflict_engine_exception"
	typeDocumentMissing    = "document_missing_exception"
	typeIndexNotFound      = "index_not_found_exception"
	typeAggregation        = "aggregation_exception"
	typeEngine             = "engine_exception"
	typeInternal           = "internal_error"
	typeRequestTooLarge    = "request_too_large_exception"
	typeServiceUnavailable = "service_unavailable_exception"
)

// errorKinds is checked in order; the first match names the error type.
var errorKinds = []struct {
	sentinel error
	typ      string
}{
	{metastore.ErrVersionConflict, typeVersionConflict},
	{metastore.ErrTenantRequired, typeTenantRequired},
	{metastore.ErrSerialization, typeSerialization},
	{db.ErrIndexNotFound, typeIndexNotFound},
	{db.ErrDocumentNotFound, typeDocumentMissing},
	{metastore.ErrInvalidRequest, typeIllegalArgument},
	{metastore.ErrInternalAggregation, typeAggregation},
	{metastore.ErrEngine, typeEngine},
}

type errorBody struct {
	Error  errorCause `json:"error"`
	Status int        `json:"status"`
}

type errorCause struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, typ, reason string) {
	writeJSON(w, status, errorBody{
		Error:  errorCause{Type: typ, Reason: reason},
		Status: status,
	})
}

func errorType(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.sentinel) {
			return k.typ
		}
	}
	return typeInternal
}

// handleError renders a client error. Server-side failures are logged and
// reported without their cause.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := metastore.StatusOf(err)
	log := requestLogger(r)
	if status >= http.StatusInternalServerError {
		log.Error("internal error", zap.Error(err))
		writeError(w, status, errorType(err), "internal error")
		return
	}
	log.Warn("request rejected", zap.Int("status", status), zap.Error(err))
	writeError(w, status, errorType(err), err.Error())
}
