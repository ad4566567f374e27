package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// testLogEntry represents a parsed JSON log entry for testing.
type testLogEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Size      int    `json:"size"`
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	ErrorCode string `json:"error_code"`
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func parseLogEntry(t *testing.T, buf *bytes.Buffer) testLogEntry {
	t.Helper()
	var entry testLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
	}
	return entry
}

func TestLogging_BasicFields(t *testing.T) {
	buf := &bytes.Buffer{}

	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	entry := parseLogEntry(t, buf)
	if entry.Method != http.MethodGet {
		t.Errorf("expected method GET, got %s", entry.Method)
	}
	if entry.Path != "/feed" {
		t.Errorf("expected path /feed, got %s", entry.Path)
	}
	if entry.Status != http.StatusOK {
		t.Errorf("expected status 200, got %d", entry.Status)
	}
	if entry.Size != 5 {
		t.Errorf("expected size 5, got %d", entry.Size)
	}
	if entry.Level != "INFO" {
		t.Errorf("expected level INFO, got %s", entry.Level)
	}
	if entry.Msg != "request completed" {
		t.Errorf("expected msg 'request completed', got %s", entry.Msg)
	}
}

func TestLogging_LevelByStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantLevel string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNoContent, "INFO"},
		{http.StatusBadRequest, "WARN"},
		{http.StatusTooManyRequests, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
		{http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			buf := &bytes.Buffer{}
			handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/feed", nil))

			if entry := parseLogEntry(t, buf); entry.Level != tt.wantLevel {
				t.Errorf("expected level %s, got %s", tt.wantLevel, entry.Level)
			}
		})
	}
}

func TestLogging_ErrorCodeFromHandlerContext(t *testing.T) {
	buf := &bytes.Buffer{}

	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := SetErrorCode(r.Context(), "malformed_cursor")
		UpdateResponseContext(w, ctx)
		w.WriteHeader(http.StatusBadRequest)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/feed?cursor=x", nil))

	if entry := parseLogEntry(t, buf); entry.ErrorCode != "malformed_cursor" {
		t.Errorf("expected error_code malformed_cursor, got %q", entry.ErrorCode)
	}
}

func TestLogging_ErrorCodeOmittedOnSuccess(t *testing.T) {
	buf := &bytes.Buffer{}

	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		UpdateResponseContext(w, SetErrorCode(r.Context(), "should_not_appear"))
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/feed", nil))

	if entry := parseLogEntry(t, buf); entry.ErrorCode != "" {
		t.Errorf("expected no error_code on 200, got %q", entry.ErrorCode)
	}
}

func TestLogging_UserIDFromRequireUser(t *testing.T) {
	buf := &bytes.Buffer{}

	handler := Logging(newTestLogger(buf))(RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.Header.Set(UserIDHeader, "user-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if entry := parseLogEntry(t, buf); entry.UserID != "user-42" {
		t.Errorf("expected user_id user-42, got %q", entry.UserID)
	}
}

func TestLogging_RequestID(t *testing.T) {
	buf := &bytes.Buffer{}

	handler := RequestID(Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if entry := parseLogEntry(t, buf); entry.RequestID != "req-123" {
		t.Errorf("expected request_id req-123, got %q", entry.RequestID)
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := newResponseWriter(rr)

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusCreated {
		t.Errorf("expected captured status 201, got %d", rw.statusCode)
	}
	if rr.Code != http.StatusCreated {
		t.Errorf("expected recorder status 201, got %d", rr.Code)
	}
}

func TestUpdateResponseContext_UnwrapsWrappers(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())
	outer := newMetricsResponseWriter(rw)

	ctx := SetErrorCode(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "rate_limited")
	UpdateResponseContext(outer, ctx)

	if rw.ctx != ctx {
		t.Error("expected context to reach the wrapped logging writer")
	}
}

func TestUpdateResponseContext_PlainWriter(t *testing.T) {
	// Must not panic on writers outside the logging chain.
	UpdateResponseContext(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).Context())
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		env      string
		wantJSON bool
	}{
		{"production", true},
		{"development", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			logger := NewLogger(tt.env)
			if logger == nil {
				t.Fatal("NewLogger() returned nil")
			}
			_, isJSON := logger.Handler().(*slog.JSONHandler)
			if isJSON != tt.wantJSON {
				t.Errorf("JSON handler = %v, want %v", isJSON, tt.wantJSON)
			}
		})
	}
}
