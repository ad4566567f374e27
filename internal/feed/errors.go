package feed

import "errors"

// Errors returned by the pager. Validation errors are the caller's to fix;
// ErrUpstreamUnavailable is transient and safe to retry with backoff.
var (
	// ErrInvalidPageSize is returned when the page size is outside 1..MaxPageSize.
	ErrInvalidPageSize = errors.New("invalid page size")

	// ErrMalformedCursor is returned for cursors that cannot be decoded,
	// fail signature verification, or belong to another user.
	// Callers should retry without a cursor.
	ErrMalformedCursor = errors.New("malformed cursor")

	// ErrUpstreamUnavailable is returned when the signal store times out or fails.
	// A page is never served partially ranked.
	ErrUpstreamUnavailable = errors.New("signal store unavailable")

	// ErrCursorExpired is returned by the codec for cursors past their TTL.
	// The pager recovers from it by restarting the scroll.
	ErrCursorExpired = errors.New("cursor expired")

	// ErrSnapshotNotFound is returned by snapshot stores on a miss.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)
