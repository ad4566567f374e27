package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/onnwee/feedrank/internal/item"
)

func TestSelector_Select(t *testing.T) {
	store := newFakeStore(
		newItem("new", time.Minute, 4),
		newItem("mid", time.Hour, 12),
		newItem("old", 48*time.Hour, 30),
		newItem("future", -time.Hour, 100),
	)
	sel := NewSelector(store, 2, time.Minute)

	snap, err := sel.Select(context.Background(), baseTime)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if len(snap.Items) != 2 || snap.Items[0].ID != "new" || snap.Items[1].ID != "mid" {
		t.Errorf("Select() items = %v, want [new mid]", itemIDs(snap.Items))
	}
	if snap.MaxLikes != 12 {
		t.Errorf("MaxLikes = %d, want 12 (pool maximum, not global)", snap.MaxLikes)
	}
	if snap.Limit != 2 {
		t.Errorf("Limit = %d, want 2", snap.Limit)
	}
	if !snap.TakenAt.Equal(baseTime) {
		t.Errorf("TakenAt = %v, want %v", snap.TakenAt, baseTime)
	}
	if want := baseTime.Truncate(time.Minute); !snap.Bucket.Equal(want) {
		t.Errorf("Bucket = %v, want %v", snap.Bucket, want)
	}
	if snap.ID == "" {
		t.Error("snapshot must have an ID")
	}
}

func TestSelector_FewerThanLimit(t *testing.T) {
	store := newFakeStore(newItem("only", time.Minute, 0))

	snap, err := NewSelector(store, 500, time.Minute).Select(context.Background(), baseTime)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(snap.Items) != 1 {
		t.Errorf("items = %d, want 1", len(snap.Items))
	}
	if snap.MaxLikes != 0 {
		t.Errorf("MaxLikes = %d, want 0", snap.MaxLikes)
	}
}

func TestSelector_EmptyStore(t *testing.T) {
	store := newFakeStore()

	snap, err := NewSelector(store, 10, time.Minute).Select(context.Background(), baseTime)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(snap.Items) != 0 || snap.MaxLikes != 0 {
		t.Errorf("empty store snapshot = %+v", snap)
	}
}

func TestSelector_MaxLikesCoversPool(t *testing.T) {
	store := newFakeStore(newItem("a", time.Minute, 5), newItem("b", 2*time.Minute, 9))
	sel := NewSelector(&raisingStore{fakeStore: store, raise: 20}, 10, time.Minute)

	snap, err := sel.Select(context.Background(), baseTime)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if snap.MaxLikes != 20 {
		t.Errorf("MaxLikes = %d, want store maximum 20", snap.MaxLikes)
	}

	sel = NewSelector(&raisingStore{fakeStore: store, raise: 1}, 10, time.Minute)
	snap, err = sel.Select(context.Background(), baseTime)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if snap.MaxLikes != 9 {
		t.Errorf("MaxLikes = %d, want pool maximum 9", snap.MaxLikes)
	}
}

func TestSelector_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name   string
		inject func(*fakeStore)
	}{
		{"active items", func(s *fakeStore) { s.errActive = errors.New("down") }},
		{"max engagement", func(s *fakeStore) { s.errMax = errors.New("down") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(newItem("a", time.Minute, 1))
			tt.inject(store)

			snap, err := NewSelector(store, 10, time.Minute).Select(context.Background(), baseTime)
			if !errors.Is(err, ErrUpstreamUnavailable) {
				t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
			}
			if snap != nil {
				t.Error("no snapshot may accompany an error")
			}
		})
	}
}

func TestDedupeCandidates(t *testing.T) {
	inactive := newItem("inactive", time.Minute, 0)
	inactive.Active = false

	items := []*item.Item{
		newItem("a", time.Minute, 0),
		nil,
		inactive,
		newItem("a", time.Minute, 0),
		newItem("b", time.Minute, 0),
		newItem("c", time.Minute, 0),
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"drops nil inactive and duplicates", 10, []string{"a", "b", "c"}},
		{"enforces bound", 2, []string{"a", "b"}},
		{"zero bound", 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := itemIDs(dedupeCandidates(items, tt.limit))
			if len(got) != len(tt.want) {
				t.Fatalf("dedupeCandidates() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("dedupeCandidates()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSnapshotKey(t *testing.T) {
	bucket := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := &Snapshot{Limit: 500, Bucket: bucket}

	if got, want := snap.Key(), "500:1772366400"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
	if snapshotKey(499, bucket) == snap.Key() {
		t.Error("different bounds must not share a key")
	}
}

// raisingStore reports a larger max counter than the items it returned,
// as if likes landed between the two reads.
type raisingStore struct {
	*fakeStore
	raise int64
}

func (s *raisingStore) GetMaxEngagementCounter(ctx context.Context, itemIDs []string) (int64, error) {
	return s.raise, nil
}

func itemIDs(items []*item.Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}
