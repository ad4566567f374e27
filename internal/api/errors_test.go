package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/feedrank/internal/feed"
	"github.com/onnwee/feedrank/internal/item"
	"github.com/onnwee/feedrank/internal/middleware"
)

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v (body %q)", err, rr.Body.String())
	}
	return resp
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	ctx := middleware.SetErrorCode(context.Background(), ErrCodeNotFound)

	WriteError(rr, ctx, http.StatusNotFound, ErrCodeNotFound, "Item not found")

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("unexpected content type %q", ct)
	}
	resp := decodeError(t, rr)
	if resp.Error.Code != ErrCodeNotFound || resp.Error.Message != "Item not found" {
		t.Errorf("unexpected error body %+v", resp.Error)
	}
}

func TestStatusCodeMapping(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{ErrCodeInvalidPageSize, http.StatusBadRequest},
		{ErrCodeMalformedCursor, http.StatusBadRequest},
		{ErrCodeAuthFailed, http.StatusUnauthorized},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{ErrCodeUpstreamUnavailable, http.StatusServiceUnavailable},
		{ErrCodeInternal, http.StatusInternalServerError},
		{"something_else", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := StatusCodeMapping(tt.code); got != tt.want {
				t.Errorf("StatusCodeMapping(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestWriteErrorFor(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantStatus     int
		wantCode       string
		wantRetryAfter bool
	}{
		{"invalid page size", fmt.Errorf("%w: got 0", feed.ErrInvalidPageSize), http.StatusBadRequest, ErrCodeInvalidPageSize, false},
		{"malformed cursor", feed.ErrMalformedCursor, http.StatusBadRequest, ErrCodeMalformedCursor, false},
		{"upstream", fmt.Errorf("get active items: %w", feed.ErrUpstreamUnavailable), http.StatusServiceUnavailable, ErrCodeUpstreamUnavailable, true},
		{"item not found", item.ErrItemNotFound, http.StatusNotFound, ErrCodeNotFound, false},
		{"item inactive", item.ErrItemInactive, http.StatusNotFound, ErrCodeNotFound, false},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeErrorFor(rr, httptest.NewRequest(http.MethodGet, "/feed", nil), tt.err)

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if got := decodeError(t, rr).Error.Code; got != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, got)
			}
			if got := rr.Header().Get("Retry-After") != ""; got != tt.wantRetryAfter {
				t.Errorf("Retry-After present = %v, want %v", got, tt.wantRetryAfter)
			}
		})
	}
}

func TestWriteErrorFor_InternalMessageIsGeneric(t *testing.T) {
	rr := httptest.NewRecorder()
	writeErrorFor(rr, httptest.NewRequest(http.MethodGet, "/feed", nil), errors.New("pq: password authentication failed"))

	if msg := decodeError(t, rr).Error.Message; msg != "internal server error" {
		t.Errorf("internal details leaked into message: %q", msg)
	}
}
