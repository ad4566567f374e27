package feed

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/onnwee/feedrank/internal/item"
	"github.com/onnwee/feedrank/internal/ranking"
	"github.com/onnwee/feedrank/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Snapshot is a frozen candidate pool: the items eligible for ranking at
// TakenAt together with the normalization context derived from them.
// Snapshots are immutable once built and may be shared across requests.
type Snapshot struct {
	ID       string
	Limit    int       // Candidate bound N the pool was selected with
	Bucket   time.Time // Start of the time bucket the snapshot belongs to
	TakenAt  time.Time // Selection cutoff, also the "now" used for recency
	Items    []*item.Item
	MaxLikes int64
}

// Key returns the cache key of the snapshot: its bound and time bucket.
func (s *Snapshot) Key() string {
	return snapshotKey(s.Limit, s.Bucket)
}

// Normalization returns the pool-wide scaling constants of the snapshot.
func (s *Snapshot) Normalization() ranking.Normalization {
	return ranking.Normalization{MaxLikes: s.MaxLikes}
}

func snapshotKey(limit int, bucket time.Time) string {
	return strconv.Itoa(limit) + ":" + strconv.FormatInt(bucket.Unix(), 10)
}

// Selector selects the bounded candidate pool from the signal store.
type Selector struct {
	store  SignalStore
	limit  int
	bucket time.Duration
}

// NewSelector creates a selector returning at most limit items per pool.
// bucket is the snapshot granularity; requests within one bucket share a pool.
func NewSelector(store SignalStore, limit int, bucket time.Duration) *Selector {
	if bucket <= 0 {
		bucket = time.Minute
	}
	return &Selector{store: store, limit: limit, bucket: bucket}
}

// Limit returns the candidate bound N.
func (s *Selector) Limit() int {
	return s.limit
}

// BucketFor returns the start of the time bucket containing now.
func (s *Selector) BucketFor(now time.Time) time.Time {
	return now.UTC().Truncate(s.bucket)
}

// Select builds a snapshot of the newest active items at now. Fewer than N
// active items yields all of them; an empty store yields an empty snapshot.
func (s *Selector) Select(ctx context.Context, now time.Time) (snap *Snapshot, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "feed.select_candidates")
	defer func() { endSpan(err) }()

	now = now.UTC()
	items, err := s.store.GetActiveItems(ctx, s.limit, now)
	if err != nil {
		return nil, upstreamError("get active items", err)
	}

	items = dedupeCandidates(items, s.limit)

	var localMax int64
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
		if it.Likes > localMax {
			localMax = it.Likes
		}
	}

	maxLikes := localMax
	if len(ids) > 0 {
		storeMax, err := s.store.GetMaxEngagementCounter(ctx, ids)
		if err != nil {
			return nil, upstreamError("get max engagement counter", err)
		}
		// The counter may have moved since the items were read; the larger
		// value keeps every popularity term at or below 1.
		maxLikes = max(storeMax, localMax)
	}

	snap = &Snapshot{
		ID:       uuid.New().String(),
		Limit:    s.limit,
		Bucket:   s.BucketFor(now),
		TakenAt:  now,
		Items:    items,
		MaxLikes: maxLikes,
	}

	tracing.SetAttributes(ctx,
		attribute.String("feed.snapshot_id", snap.ID),
		attribute.Int("feed.candidates", len(items)),
	)
	slog.DebugContext(ctx, "candidate snapshot built",
		"snapshot_id", snap.ID,
		"bucket", snap.Bucket,
		"candidates", len(items),
		"max_likes", maxLikes)

	return snap, nil
}

// dedupeCandidates drops repeated item IDs and inactive items and enforces
// the bound. Item IDs must be unique for the total order to be strict.
func dedupeCandidates(items []*item.Item, limit int) []*item.Item {
	seen := make(map[string]struct{}, len(items))
	result := make([]*item.Item, 0, min(len(items), max(limit, 0)))
	for _, it := range items {
		if len(result) >= limit {
			break
		}
		if it == nil || !it.Active {
			continue
		}
		if _, dup := seen[it.ID]; dup {
			slog.Warn("signal store returned duplicate candidate", "item_id", it.ID)
			continue
		}
		seen[it.ID] = struct{}{}
		result = append(result, it)
	}
	return result
}
