package feed

import (
	"slices"
	"strings"
	"time"

	"github.com/onnwee/feedrank/internal/item"
	"github.com/onnwee/feedrank/internal/ranking"
)

// RankedEntry is a snapshot item with its score for one user.
type RankedEntry struct {
	Item  *item.Item
	Score float64
}

// SortKey is a position in the total order.
type SortKey struct {
	Score     float64
	CreatedAt time.Time
	ItemID    string
}

// Key returns the entry's position in the total order.
func (e RankedEntry) Key() SortKey {
	return SortKey{Score: e.Score, CreatedAt: e.Item.CreatedAt, ItemID: e.Item.ID}
}

// CompareKeys orders keys by score DESC, created_at DESC, item ID ASC.
// It returns a negative number when a ranks before b. Distinct item IDs
// never compare equal.
func CompareKeys(a, b SortKey) int {
	if a.Score != b.Score {
		if a.Score > b.Score {
			return -1
		}
		return 1
	}
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ItemID, b.ItemID)
}

// Rank scores every item of the snapshot for profile and returns the entries
// in total order. Scoring uses the snapshot's own normalization and TakenAt
// so equal inputs always rank identically.
func Rank(snap *Snapshot, profile ranking.Profile, weights *ranking.Weights) []RankedEntry {
	norm := snap.Normalization()
	entries := make([]RankedEntry, len(snap.Items))
	for i, it := range snap.Items {
		entries[i] = RankedEntry{
			Item: it,
			Score: ranking.Score(profile, ranking.Signals{
				Tags:      it.Tags,
				CreatedAt: it.CreatedAt,
				Likes:     it.Likes,
			}, norm, snap.TakenAt, weights),
		}
	}

	slices.SortFunc(entries, func(a, b RankedEntry) int {
		return CompareKeys(a.Key(), b.Key())
	})
	return entries
}

// resumeIndex returns the index of the first entry strictly after key.
func resumeIndex(entries []RankedEntry, key SortKey) int {
	i, _ := slices.BinarySearchFunc(entries, key, func(e RankedEntry, k SortKey) int {
		if CompareKeys(e.Key(), k) <= 0 {
			return -1
		}
		return 1
	})
	return i
}
