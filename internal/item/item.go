// Package item provides the content item model and the stores that hold
// item signals (tags, like counters, creation times, per-user likes).
package item

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// Tag list bounds enforced at the write boundary.
const (
	// MaxItemTags is the maximum number of tags an item may carry.
	MaxItemTags = 10

	// MaxProfileTags is the maximum number of tags in a user's interest profile.
	// Older interests fall off once the profile is full.
	MaxProfileTags = 20

	// MaxTagLength is the maximum length of a single normalized tag.
	MaxTagLength = 64
)

// Common errors for item operations.
var (
	ErrItemNotFound = errors.New("item not found")
	ErrItemInactive = errors.New("item is not active")
	ErrTooManyTags  = errors.New("too many tags")
	ErrTagTooLong   = errors.New("tag too long")
	ErrMissingOwner = errors.New("item owner is required")
)

// Item is a piece of content that can appear in a feed.
type Item struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title,omitempty"`
	Tags      []string  `json:"tags"`
	Likes     int64     `json:"likes"`
	Views     int64     `json:"views"`
	Active    bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the item so callers never share tag slices
// with a store.
func (i *Item) Clone() *Item {
	c := *i
	c.Tags = slices.Clone(i.Tags)
	return &c
}

// NormalizeTags lowercases, trims and deduplicates tags, dropping empty
// entries while preserving first-seen order. It returns ErrTooManyTags when
// more than limit distinct tags remain and ErrTagTooLong when any tag exceeds
// MaxTagLength.
func NormalizeTags(tags []string, limit int) ([]string, error) {
	if len(tags) == 0 {
		return []string{}, nil
	}

	normalized := make([]string, 0, len(tags))
	for _, raw := range tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" {
			continue
		}
		if len(tag) > MaxTagLength {
			return nil, ErrTagTooLong
		}
		if slices.Contains(normalized, tag) {
			continue
		}
		normalized = append(normalized, tag)
	}

	if len(normalized) > limit {
		return nil, ErrTooManyTags
	}
	return normalized, nil
}
