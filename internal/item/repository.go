package item

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for item data operations.
// It covers both the write side (creation, engagement counters) and the
// read side consumed by feed ranking.
type Repository interface {
	// Create inserts a new item. A missing ID is generated, a zero CreatedAt
	// is set to the current time, and tags are normalized.
	Create(ctx context.Context, item *Item) error

	// GetByID retrieves an item by ID, including inactive items.
	GetByID(ctx context.Context, id string) (*Item, error)

	// Deactivate removes an item from future candidate pools.
	Deactivate(ctx context.Context, id string) error

	// Like records that userID liked itemID. Returns true if the like was new.
	// Liking twice is a no-op and never double-counts.
	Like(ctx context.Context, userID, itemID string) (bool, error)

	// Unlike removes a like. Returns true if a like was removed.
	// The like counter never goes below zero.
	Unlike(ctx context.Context, userID, itemID string) (bool, error)

	// RecordView increments an item's view counter.
	RecordView(ctx context.Context, itemID string) error

	// GetUserLikedTags returns the user's interest profile: the distinct tags
	// of items the user liked, most recently liked first, capped at
	// MaxProfileTags. Users with no history get an empty slice.
	GetUserLikedTags(ctx context.Context, userID string) ([]string, error)

	// GetActiveItems returns up to limit active items created at or before
	// before, ordered by created_at DESC, id ASC.
	GetActiveItems(ctx context.Context, limit int, before time.Time) ([]*Item, error)

	// GetMaxEngagementCounter returns the largest like counter among itemIDs,
	// or 0 for an empty set.
	GetMaxEngagementCounter(ctx context.Context, itemIDs []string) (int64, error)

	// GetUserLikeSet returns the subset of itemIDs the user has liked.
	GetUserLikeSet(ctx context.Context, userID string, itemIDs []string) (map[string]bool, error)
}

// InMemoryItemRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryItemRepository struct {
	mu    sync.RWMutex
	items map[string]*Item                // ID -> Item
	likes map[string]map[string]time.Time // userID -> itemID -> liked at
	now   func() time.Time
}

// NewInMemoryItemRepository creates a new in-memory item repository.
func NewInMemoryItemRepository() *InMemoryItemRepository {
	return &InMemoryItemRepository{
		items: make(map[string]*Item),
		likes: make(map[string]map[string]time.Time),
		now:   time.Now,
	}
}

// Create inserts a new item.
func (r *InMemoryItemRepository) Create(ctx context.Context, item *Item) error {
	if item.OwnerID == "" {
		return ErrMissingOwner
	}
	tags, err := NormalizeTags(item.Tags, MaxItemTags)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if _, exists := r.items[item.ID]; exists {
		return fmt.Errorf("item %s already exists", item.ID)
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.Tags = tags
	item.Likes = 0
	item.Views = 0
	item.Active = true
	item.UpdatedAt = now

	r.items[item.ID] = item.Clone()
	return nil
}

// GetByID retrieves an item by ID.
func (r *InMemoryItemRepository) GetByID(ctx context.Context, id string) (*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	return item.Clone(), nil
}

// Deactivate marks an item inactive.
func (r *InMemoryItemRepository) Deactivate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return ErrItemNotFound
	}
	item.Active = false
	item.UpdatedAt = r.now()
	return nil
}

// Like records a like from userID on itemID.
func (r *InMemoryItemRepository) Like(ctx context.Context, userID, itemID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[itemID]
	if !ok {
		return false, ErrItemNotFound
	}
	if !item.Active {
		return false, ErrItemInactive
	}

	userLikes, ok := r.likes[userID]
	if !ok {
		userLikes = make(map[string]time.Time)
		r.likes[userID] = userLikes
	}
	if _, liked := userLikes[itemID]; liked {
		return false, nil
	}

	now := r.now()
	userLikes[itemID] = now
	item.Likes++
	item.UpdatedAt = now
	return true, nil
}

// Unlike removes a like from userID on itemID.
func (r *InMemoryItemRepository) Unlike(ctx context.Context, userID, itemID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[itemID]
	if !ok {
		return false, ErrItemNotFound
	}

	userLikes := r.likes[userID]
	if _, liked := userLikes[itemID]; !liked {
		return false, nil
	}

	delete(userLikes, itemID)
	if len(userLikes) == 0 {
		delete(r.likes, userID)
	}
	if item.Likes > 0 {
		item.Likes--
	}
	item.UpdatedAt = r.now()
	return true, nil
}

// RecordView increments the view counter of an active item.
func (r *InMemoryItemRepository) RecordView(ctx context.Context, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	if !item.Active {
		return ErrItemInactive
	}
	item.Views++
	return nil
}

// GetUserLikedTags returns the user's interest profile.
func (r *InMemoryItemRepository) GetUserLikedTags(ctx context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type likedItem struct {
		id      string
		likedAt time.Time
	}

	userLikes := r.likes[userID]
	liked := make([]likedItem, 0, len(userLikes))
	for id, at := range userLikes {
		liked = append(liked, likedItem{id: id, likedAt: at})
	}
	sort.Slice(liked, func(i, j int) bool {
		if !liked[i].likedAt.Equal(liked[j].likedAt) {
			return liked[i].likedAt.After(liked[j].likedAt)
		}
		return liked[i].id < liked[j].id
	})

	seen := make(map[string]struct{})
	tags := make([]string, 0)
	for _, l := range liked {
		item, ok := r.items[l.id]
		if !ok {
			continue
		}
		for _, tag := range item.Tags {
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
			if len(tags) == MaxProfileTags {
				return tags, nil
			}
		}
	}
	return tags, nil
}

// GetActiveItems returns the newest active items created at or before before.
func (r *InMemoryItemRepository) GetActiveItems(ctx context.Context, limit int, before time.Time) ([]*Item, error) {
	if limit <= 0 {
		return []*Item{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := make([]*Item, 0, len(r.items))
	for _, item := range r.items {
		if !item.Active || item.CreatedAt.After(before) {
			continue
		}
		candidates = append(candidates, item)
	}

	sortItemsByCreatedDesc(candidates)

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*Item, len(candidates))
	for i, item := range candidates {
		result[i] = item.Clone()
	}
	return result, nil
}

// GetMaxEngagementCounter returns the largest like counter among itemIDs.
func (r *InMemoryItemRepository) GetMaxEngagementCounter(ctx context.Context, itemIDs []string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var maxLikes int64
	for _, id := range itemIDs {
		if item, ok := r.items[id]; ok && item.Likes > maxLikes {
			maxLikes = item.Likes
		}
	}
	return maxLikes, nil
}

// GetUserLikeSet returns which of itemIDs the user has liked.
func (r *InMemoryItemRepository) GetUserLikeSet(ctx context.Context, userID string, itemIDs []string) (map[string]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]bool)
	userLikes := r.likes[userID]
	for _, id := range itemIDs {
		if _, ok := userLikes[id]; ok {
			result[id] = true
		}
	}
	return result, nil
}

// sortItemsByCreatedDesc sorts items by created_at DESC, id ASC.
func sortItemsByCreatedDesc(items []*Item) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}
