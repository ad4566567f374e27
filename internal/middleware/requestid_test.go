package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		wantSame bool
	}{
		{"generates when absent", "", false},
		{"reuses well formed", "existing-request-id-123", true},
		{"replaces oversized", strings.Repeat("a", maxRequestIDLength+1), false},
		{"replaces with spaces", "bad id", false},
		{"replaces control bytes", "id\x00x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/feed", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if captured == "" {
				t.Fatal("expected request ID in context")
			}
			if got := rr.Header().Get(RequestIDHeader); got != captured {
				t.Errorf("response header %q does not match context %q", got, captured)
			}
			if tt.wantSame {
				if captured != tt.incoming {
					t.Errorf("expected %q to be reused, got %q", tt.incoming, captured)
				}
				return
			}
			if _, err := uuid.Parse(captured); err != nil {
				t.Errorf("expected a generated UUID, got %q", captured)
			}
		})
	}
}

func TestGetRequestID_EmptyContextReturnsEmptyString(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	if requestID := GetRequestID(req.Context()); requestID != "" {
		t.Errorf("expected empty string, got %q", requestID)
	}
}
