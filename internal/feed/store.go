package feed

import (
	"context"
	"time"

	"github.com/onnwee/feedrank/internal/item"
)

// SignalStore is the read side of the item store consumed by ranking.
// item.InMemoryItemRepository and item.PostgresItemRepository implement it.
type SignalStore interface {
	// GetUserLikedTags returns the user's normalized interest tags.
	// A user with no history gets an empty result, not an error.
	GetUserLikedTags(ctx context.Context, userID string) ([]string, error)

	// GetActiveItems returns up to limit active items created at or before
	// before, newest first.
	GetActiveItems(ctx context.Context, limit int, before time.Time) ([]*item.Item, error)

	// GetMaxEngagementCounter returns the largest like counter among itemIDs.
	GetMaxEngagementCounter(ctx context.Context, itemIDs []string) (int64, error)

	// GetUserLikeSet returns the subset of itemIDs the user has liked.
	GetUserLikeSet(ctx context.Context, userID string, itemIDs []string) (map[string]bool, error)
}
