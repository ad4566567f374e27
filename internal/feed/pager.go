package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/feedrank/internal/item"
	"github.com/onnwee/feedrank/internal/ranking"
	"github.com/onnwee/feedrank/internal/tracing"
)

// Page size bounds.
const (
	MaxPageSize     = 50
	DefaultPageSize = 20
)

// Entry is one item of a page, annotated for the requesting user.
type Entry struct {
	Item  *item.Item
	Score float64
	Liked bool
}

// Page is one slice of a user's ranked feed. The HTTP layer maps it onto its
// own response type.
type Page struct {
	Items []Entry

	// NextCursor resumes after the last item of this page. It is set on every
	// non-empty page, including the last one; requesting it after the last
	// page returns an empty page again.
	NextCursor string

	// HasMore reports whether items remain after this page.
	HasMore bool

	// Reset reports that the supplied cursor could not be honored under the
	// current ranking policy and the feed restarted from the top.
	Reset bool
}

// Pager serves ranked feed pages.
type Pager struct {
	store   SignalStore
	cache   *RankCache
	codec   *CursorCodec
	weights *ranking.Weights
	metrics *Metrics
}

// NewPager creates a pager. store should normally be the same guarded store
// the cache's selector reads from. A nil weights value uses the defaults.
func NewPager(store SignalStore, cache *RankCache, codec *CursorCodec, weights *ranking.Weights, metrics *Metrics) *Pager {
	if weights == nil {
		weights = ranking.DefaultWeights()
	}
	return &Pager{
		store:   store,
		cache:   cache,
		codec:   codec,
		weights: weights,
		metrics: metrics,
	}
}

// GetPage returns the page of userID's feed following cursor. An empty
// cursor starts from the top. pageSize must be within 1..MaxPageSize.
//
// Errors: ErrInvalidPageSize, ErrMalformedCursor, ErrUpstreamUnavailable.
func (p *Pager) GetPage(ctx context.Context, userID, cursor string, pageSize int) (page *Page, err error) {
	start := time.Now()
	ctx, endSpan := tracing.StartSpan(ctx, "feed.get_page")
	defer func() {
		endSpan(err)
		p.metrics.ObservePage(pageOutcome(page, err), time.Since(start).Seconds())
	}()

	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, fmt.Errorf("%w: must be between 1 and %d, got %d", ErrInvalidPageSize, MaxPageSize, pageSize)
	}

	cur, reset, err := p.resolveCursor(ctx, userID, cursor)
	if err != nil {
		return nil, err
	}

	snap, err := p.snapshotFor(ctx, cur)
	if err != nil {
		return nil, err
	}

	tags, err := p.profileFor(ctx, userID, cur)
	if err != nil {
		return nil, err
	}

	entries := Rank(snap, ranking.NewProfile(tags), p.weights)

	from := 0
	if cur != nil {
		from = resumeIndex(entries, cur.Key)
	}
	to := min(from+pageSize, len(entries))
	window := entries[from:to]

	page = &Page{
		Items:   make([]Entry, 0, len(window)),
		HasMore: to < len(entries),
		Reset:   reset,
	}

	if len(window) > 0 {
		ids := make([]string, len(window))
		for i, e := range window {
			ids[i] = e.Item.ID
		}
		liked, err := p.store.GetUserLikeSet(ctx, userID, ids)
		if err != nil {
			return nil, upstreamError("get user like set", err)
		}
		for _, e := range window {
			page.Items = append(page.Items, Entry{
				Item:  e.Item.Clone(),
				Score: e.Score,
				Liked: liked[e.Item.ID],
			})
		}

		last := window[len(window)-1]
		page.NextCursor, err = p.codec.Encode(Cursor{
			SnapshotID: snap.ID,
			Limit:      snap.Limit,
			Policy:     p.weights.Fingerprint(),
			UserID:     userID,
			Key:        last.Key(),
			Profile:    tags,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode cursor: %w", err)
		}
	} else if cur != nil {
		// Exhausted: hand back the same position so repeats stay empty.
		page.NextCursor = cursor
	}

	tracing.SetAttributes(ctx,
		attribute.String("feed.snapshot_id", snap.ID),
		attribute.Int("feed.page_items", len(page.Items)),
		attribute.Bool("feed.has_more", page.HasMore),
		attribute.Bool("feed.reset", page.Reset),
	)
	return page, nil
}

// resolveCursor decodes cursor for userID. It returns a nil cursor for the
// initial page, and reset=true when a genuine cursor can no longer be
// honored and the scroll restarts from the top.
func (p *Pager) resolveCursor(ctx context.Context, userID, token string) (*Cursor, bool, error) {
	if token == "" {
		return nil, false, nil
	}

	cur, err := p.codec.Decode(token)
	if errors.Is(err, ErrCursorExpired) {
		slog.InfoContext(ctx, "feed cursor expired, restarting scroll", "user_id", userID)
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	if cur.UserID != userID {
		slog.WarnContext(ctx, "feed cursor presented by another user",
			"user_id", userID,
			"cursor_user_id", cur.UserID)
		return nil, false, ErrMalformedCursor
	}

	if cur.Limit != p.cache.Limit() || cur.Policy != p.weights.Fingerprint() {
		slog.InfoContext(ctx, "feed cursor policy changed, restarting scroll",
			"user_id", userID,
			"cursor_limit", cur.Limit,
			"limit", p.cache.Limit(),
			"cursor_policy", cur.Policy,
			"policy", p.weights.Fingerprint())
		return nil, true, nil
	}

	return cur, false, nil
}

// profileFor returns the interest profile to rank with. A scroll keeps the
// profile it started with; only the first page of a scroll reads the
// current one.
func (p *Pager) profileFor(ctx context.Context, userID string, cur *Cursor) ([]string, error) {
	if cur != nil {
		return cur.Profile, nil
	}
	tags, err := p.store.GetUserLikedTags(ctx, userID)
	if err != nil {
		return nil, upstreamError("get user liked tags", err)
	}
	return tags, nil
}

// snapshotFor returns the cursor's snapshot while it is retained, and the
// current snapshot otherwise.
func (p *Pager) snapshotFor(ctx context.Context, cur *Cursor) (*Snapshot, error) {
	if cur != nil {
		if snap, ok := p.cache.Lookup(ctx, cur.SnapshotID); ok {
			return snap, nil
		}
		slog.DebugContext(ctx, "feed cursor snapshot no longer retained, resuming on current pool",
			"snapshot_id", cur.SnapshotID)
	}

	snap, err := p.cache.Current(ctx)
	if err != nil {
		return nil, upstreamError("select candidates", err)
	}
	return snap, nil
}

func pageOutcome(page *Page, err error) string {
	switch {
	case err == nil && page != nil && page.Reset:
		return OutcomeReset
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrInvalidPageSize):
		return OutcomeInvalidPageSize
	case errors.Is(err, ErrMalformedCursor):
		return OutcomeMalformedCursor
	case errors.Is(err, ErrUpstreamUnavailable):
		return OutcomeUpstreamUnavailable
	default:
		return OutcomeInternalError
	}
}
