package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/foxzi/campaignctl/internal/control"
	"github.com/foxzi/campaignctl/internal/loader"
	"github.com/foxzi/campaignctl/internal/session"
	"github.com/foxzi/campaignctl/internal/transport"
)

// Error codes of the console API
const (
	codeInvalidRequest = "invalid_request"
	codeUnauthorized   = "unauthorized"
	codeNotFound       = "not_found"
	codeConflict       = "conflict"
	codeUpstream       = "upstream_error"
	codeGone           = "gone"
	codeInternal       = "internal_error"
)

// ErrorBody is the error part of an envelope
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Envelope wraps every console response
type Envelope struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, status int, data any) {
	sendJSON(w, status, Envelope{OK: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	sendJSON(w, status, Envelope{OK: false, Error: &ErrorBody{Code: code, Message: message, Details: details}})
}

// errorStatus maps core errors to an HTTP status and error code
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrNotOpen):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, control.ErrHalted),
		errors.Is(err, transport.ErrUnauthenticated),
		errors.Is(err, transport.ErrUnauthorized):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, control.ErrNotLoaded),
		errors.Is(err, control.ErrClosed),
		errors.Is(err, control.ErrInvalidTransition),
		errors.Is(err, control.ErrTerminal):
		return http.StatusConflict, codeConflict
	case errors.Is(err, transport.ErrRejected), errors.Is(err, transport.ErrTransport):
		return http.StatusBadGateway, codeUpstream
	case errors.Is(err, loader.ErrStale):
		return http.StatusGone, codeGone
	}
	return http.StatusInternalServerError, codeInternal
}

// outcomeStatus maps a dispatch outcome to an HTTP status and error code
func outcomeStatus(o control.Outcome) (int, string) {
	switch o.Result {
	case control.ResultConfirmed:
		return http.StatusOK, ""
	case control.ResultIgnored:
		return http.StatusAccepted, ""
	case control.ResultUnauthenticated, control.ResultUnauthorized:
		return http.StatusUnauthorized, codeUnauthorized
	case control.ResultRolledBack:
		return http.StatusBadGateway, codeUpstream
	case control.ResultDropped:
		return http.StatusGone, codeGone
	case control.ResultRejected:
		return errorStatus(o.Err)
	}
	return http.StatusInternalServerError, codeInternal
}
