package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/Sternrassler/srp-filter/pkg/address"
	"github.com/Sternrassler/srp-filter/pkg/fetcher"
	"github.com/bytedance/sonic"
)

// Error codes of the error envelope.
const (
	CodeInvalidRequest  = "invalid_request"
	CodeInvalidAddress  = "invalid_address"
	CodeNotFound        = "not_found"
	CodeUnauthorized    = "unauthorized"
	CodeUpstreamFailure = "upstream_failure"
	CodeUpstreamTimeout = "upstream_timeout"
	CodeInternal        = "internal"
)

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data = []byte(`{"error":"internal","message":"encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeUpstreamError maps a fetch failure to a status and envelope.
func writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, address.ErrInvalidAddress):
		writeError(w, http.StatusNotFound, CodeInvalidAddress, err.Error())
	case errors.Is(err, fetcher.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "resource not found")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, CodeUpstreamTimeout, "inventory service timed out")
	default:
		writeError(w, http.StatusBadGateway, CodeUpstreamFailure, "inventory service request failed")
	}
}
