// Package httpx holds the JSON request and response helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"saas-control-plane/internal/logging"
	"saas-control-plane/internal/platform/apperr"
)

// maxBodyBytes caps request bodies; the largest legitimate body is a batch of coupon codes.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status code and writes an ErrorResponse. Internal errors are logged
// and replaced with a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	status := apperr.HTTPStatus(err)
	requestID := logging.RequestID(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", requestID).Str("path", r.URL.Path).Msg("request failed")
	}
	WriteJSON(w, status, ErrorResponse{
		Error:     apperr.PublicMessage(err),
		Code:      apperr.Code(err),
		RequestID: requestID,
	})
}

// Decode reads a JSON body into v. Malformed, oversized, or unknown-field bodies are ErrInvalidArgument.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is required: %w", apperr.ErrInvalidArgument)
		}
		return fmt.Errorf("invalid request body: %w", apperr.ErrInvalidArgument)
	}
	return nil
}
