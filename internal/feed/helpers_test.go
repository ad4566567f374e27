package feed

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/onnwee/feedrank/internal/item"
	"github.com/onnwee/feedrank/internal/ranking"
)

const testSecret = "test-cursor-secret-at-least-32-bytes!!"

var baseTime = time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeStore is an in-process SignalStore with per-method failure injection.
type fakeStore struct {
	mu    sync.Mutex
	items []*item.Item
	tags  map[string][]string
	likes map[string]map[string]bool

	errActive  error
	errMax     error
	errTags    error
	errLikeSet error

	// delay makes every call block until it elapses or ctx is done.
	delay time.Duration

	activeCalls int
	totalCalls  int
}

func newFakeStore(items ...*item.Item) *fakeStore {
	return &fakeStore{
		items: items,
		tags:  make(map[string][]string),
		likes: make(map[string]map[string]bool),
	}
}

func (s *fakeStore) enter(ctx context.Context) error {
	s.mu.Lock()
	s.totalCalls++
	delay := s.delay
	s.mu.Unlock()

	if delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeStore) add(items ...*item.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, items...)
}

func (s *fakeStore) setLikes(id string, likes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.ID == id {
			it.Likes = likes
		}
	}
}

func (s *fakeStore) setProfile(userID string, tags ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[userID] = tags
}

func (s *fakeStore) like(userID string, ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.likes[userID] == nil {
		s.likes[userID] = make(map[string]bool)
	}
	for _, id := range ids {
		s.likes[userID][id] = true
	}
}

func (s *fakeStore) calls() (active, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeCalls, s.totalCalls
}

func (s *fakeStore) GetUserLikedTags(ctx context.Context, userID string) ([]string, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errTags != nil {
		return nil, s.errTags
	}
	return slices.Clone(s.tags[userID]), nil
}

func (s *fakeStore) GetActiveItems(ctx context.Context, limit int, before time.Time) ([]*item.Item, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeCalls++
	if s.errActive != nil {
		return nil, s.errActive
	}

	var result []*item.Item
	for _, it := range s.items {
		if it.Active && !it.CreatedAt.After(before) {
			result = append(result, it.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *item.Item) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *fakeStore) GetMaxEngagementCounter(ctx context.Context, itemIDs []string) (int64, error) {
	if err := s.enter(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errMax != nil {
		return 0, s.errMax
	}
	var maxLikes int64
	for _, it := range s.items {
		if slices.Contains(itemIDs, it.ID) {
			maxLikes = max(maxLikes, it.Likes)
		}
	}
	return maxLikes, nil
}

func (s *fakeStore) GetUserLikeSet(ctx context.Context, userID string, itemIDs []string) (map[string]bool, error) {
	if err := s.enter(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errLikeSet != nil {
		return nil, s.errLikeSet
	}
	result := make(map[string]bool)
	for _, id := range itemIDs {
		if s.likes[userID][id] {
			result[id] = true
		}
	}
	return result, nil
}

func newItem(id string, age time.Duration, likes int64, tags ...string) *item.Item {
	if tags == nil {
		tags = []string{}
	}
	created := baseTime.Add(-age)
	return &item.Item{
		ID:        id,
		OwnerID:   "owner-" + id,
		Title:     "Item " + id,
		Tags:      tags,
		Likes:     likes,
		Active:    true,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// scenarioItems returns five untagged, unliked items whose ranking is
// decided by creation time alone: A is newest, E oldest.
func scenarioItems() []*item.Item {
	return []*item.Item{
		newItem("item-c", 3*time.Minute, 0),
		newItem("item-a", 1*time.Minute, 0),
		newItem("item-e", 5*time.Minute, 0),
		newItem("item-b", 2*time.Minute, 0),
		newItem("item-d", 4*time.Minute, 0),
	}
}

// harness wires a pager over a fake store with a shared test clock.
type harness struct {
	store   *fakeStore
	clock   *testClock
	cache   *RankCache
	codec   *CursorCodec
	pager   *Pager
	metrics *Metrics
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	limit   int
	weights *ranking.Weights
	remote  SnapshotStore
}

func withLimit(n int) harnessOption {
	return func(c *harnessConfig) { c.limit = n }
}

func withWeights(w *ranking.Weights) harnessOption {
	return func(c *harnessConfig) { c.weights = w }
}

func withRemote(r SnapshotStore) harnessOption {
	return func(c *harnessConfig) { c.remote = r }
}

func newHarness(t *testing.T, store *fakeStore, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{limit: 500}
	for _, opt := range opts {
		opt(&cfg)
	}

	clock := newTestClock(baseTime)
	metrics := NewMetrics()

	cache := NewRankCache(NewSelector(store, cfg.limit, DefaultSnapshotBucket), cfg.remote, DefaultSnapshotRetention, metrics)
	cache.now = clock.Now

	codec := NewCursorCodec(testSecret, "", DefaultCursorTTL)
	codec.now = clock.Now

	return &harness{
		store:   store,
		clock:   clock,
		cache:   cache,
		codec:   codec,
		pager:   NewPager(store, cache, codec, cfg.weights, metrics),
		metrics: metrics,
	}
}

// sibling returns a pager sharing h's store, clock and codec but with its
// own cache and settings.
func (h *harness) sibling(t *testing.T, opts ...harnessOption) *Pager {
	t.Helper()
	cfg := harnessConfig{limit: h.cache.Limit()}
	for _, opt := range opts {
		opt(&cfg)
	}
	cache := NewRankCache(NewSelector(h.store, cfg.limit, DefaultSnapshotBucket), nil, DefaultSnapshotRetention, nil)
	cache.now = h.clock.Now
	return NewPager(h.store, cache, h.codec, cfg.weights, nil)
}

func pageIDs(p *Page) []string {
	ids := make([]string, len(p.Items))
	for i, e := range p.Items {
		ids[i] = e.Item.ID
	}
	return ids
}

// collect pages through the whole feed and returns every served item ID.
func collect(t *testing.T, pager *Pager, userID string, pageSize int) []string {
	t.Helper()
	var ids []string
	cursor := ""
	for range 1000 {
		page, err := pager.GetPage(context.Background(), userID, cursor, pageSize)
		if err != nil {
			t.Fatalf("GetPage() error = %v", err)
		}
		ids = append(ids, pageIDs(page)...)
		if !page.HasMore {
			return ids
		}
		if page.NextCursor == "" {
			t.Fatal("page with HasMore must carry a cursor")
		}
		cursor = page.NextCursor
	}
	t.Fatal("pagination did not terminate")
	return nil
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	if err := vec.WithLabelValues(labels...).Write(&m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("failed to read gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}
