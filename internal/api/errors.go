// Package api provides the HTTP handlers of the feed service and the
// standardized JSON error envelope they share.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/feedrank/internal/feed"
	"github.com/onnwee/feedrank/internal/item"
	"github.com/onnwee/feedrank/internal/middleware"
)

// Error codes returned in the error envelope.
const (
	// ErrCodeInvalidPageSize indicates a limit outside 1..50 or not an integer.
	ErrCodeInvalidPageSize = "invalid_page_size"

	// ErrCodeMalformedCursor indicates an undecodable, tampered or foreign
	// cursor. Clients should restart without a cursor.
	ErrCodeMalformedCursor = "malformed_cursor"

	// ErrCodeUpstreamUnavailable indicates the signal store timed out or
	// failed. Clients should retry with backoff.
	ErrCodeUpstreamUnavailable = "upstream_unavailable"

	// ErrCodeAuthFailed indicates a missing or unusable requester identity.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"
)

// upstreamRetryAfter is the Retry-After hint, in seconds, on 503 responses.
const upstreamRetryAfter = "1"

// ErrorResponse represents the standard error response format:
// {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
//
// Handlers set the code on the context first so the logging middleware can
// report it:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Item not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, ctx)

	data, err := json.Marshal(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the HTTP status code for an error code.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeInvalidPageSize, ErrCodeMalformedCursor:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorCodeFor classifies an error returned by the feed or item layers.
func errorCodeFor(err error) (code, message string) {
	switch {
	case errors.Is(err, feed.ErrInvalidPageSize):
		return ErrCodeInvalidPageSize, "limit must be an integer between 1 and 50"
	case errors.Is(err, feed.ErrMalformedCursor):
		return ErrCodeMalformedCursor, "cursor is invalid; restart without a cursor"
	case errors.Is(err, feed.ErrUpstreamUnavailable):
		return ErrCodeUpstreamUnavailable, "feed is temporarily unavailable; retry with backoff"
	case errors.Is(err, item.ErrItemNotFound), errors.Is(err, item.ErrItemInactive):
		return ErrCodeNotFound, "item not found"
	default:
		return ErrCodeInternal, "internal server error"
	}
}

// writeErrorFor maps err onto the error envelope, logging server-side faults.
func writeErrorFor(w http.ResponseWriter, r *http.Request, err error) {
	code, message := errorCodeFor(err)
	status := StatusCodeMapping(code)
	ctx := middleware.SetErrorCode(r.Context(), code)

	switch {
	case status == http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", upstreamRetryAfter)
		slog.WarnContext(ctx, "upstream unavailable", "error", err)
	case status >= 500:
		slog.ErrorContext(ctx, "request failed", "error", err)
	}

	WriteError(w, ctx, status, code, message)
}

// writeJSON writes v with status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
