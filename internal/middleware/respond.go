package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error codes written by middleware. They match the API error envelope.
const (
	errCodeAuthFailed  = "auth_failed"
	errCodeRateLimited = "rate_limited"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeError writes the {"error":{"code","message"}} envelope and records
// the code for the logging middleware.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	ctx := SetErrorCode(r.Context(), code)
	UpdateResponseContext(w, ctx)

	var body errorBody
	body.Error.Code = code
	body.Error.Message = message

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}
