package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/onnwee/feedrank/internal/feed"
	"github.com/onnwee/feedrank/internal/item"
	"github.com/onnwee/feedrank/internal/middleware"
)

// FeedPager serves ranked feed pages.
type FeedPager interface {
	GetPage(ctx context.Context, userID, cursor string, pageSize int) (*feed.Page, error)
}

// FeedHandlers holds dependencies for feed HTTP handlers.
type FeedHandlers struct {
	pager           FeedPager
	defaultPageSize int
}

// NewFeedHandlers creates a new FeedHandlers instance. A defaultPageSize
// outside 1..feed.MaxPageSize falls back to feed.DefaultPageSize.
func NewFeedHandlers(pager FeedPager, defaultPageSize int) *FeedHandlers {
	if defaultPageSize < 1 || defaultPageSize > feed.MaxPageSize {
		defaultPageSize = feed.DefaultPageSize
	}
	return &FeedHandlers{
		pager:           pager,
		defaultPageSize: defaultPageSize,
	}
}

// FeedEntry is one ranked item in a feed response.
type FeedEntry struct {
	Item  *item.Item `json:"item"`
	Score float64    `json:"score"`
	Liked bool       `json:"liked"`
}

// FeedResponse represents the JSON response for GET /feed.
type FeedResponse struct {
	Items      []FeedEntry `json:"items"`
	NextCursor *string     `json:"next_cursor,omitempty"`
	HasMore    bool        `json:"has_more"`
	Reset      bool        `json:"reset"`
}

// GetFeed handles GET /feed?cursor=&limit= for the user set by
// middleware.RequireUser.
func (h *FeedHandlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Missing requester identity")
		return
	}

	query := r.URL.Query()

	limit := h.defaultPageSize
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeErrorFor(w, r, fmt.Errorf("%w: %q is not an integer", feed.ErrInvalidPageSize, raw))
			return
		}
		limit = parsed
	}

	page, err := h.pager.GetPage(r.Context(), userID, query.Get("cursor"), limit)
	if err != nil {
		writeErrorFor(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, newFeedResponse(page))
}

func newFeedResponse(page *feed.Page) FeedResponse {
	resp := FeedResponse{
		Items:   make([]FeedEntry, len(page.Items)),
		HasMore: page.HasMore,
		Reset:   page.Reset,
	}
	for i, e := range page.Items {
		resp.Items[i] = FeedEntry{Item: e.Item, Score: e.Score, Liked: e.Liked}
	}
	if page.NextCursor != "" {
		next := page.NextCursor
		resp.NextCursor = &next
	}
	return resp
}
