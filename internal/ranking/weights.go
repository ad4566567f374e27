// Package ranking provides the feed relevance score and its calibration.
package ranking

import (
	"math"
	"time"
)

// Profile is the requesting user's interest signal: the set of tags the user
// has engaged with. The zero value is an empty profile, which is valid.
type Profile struct {
	tags map[string]struct{}
}

// NewProfile builds a profile from already-normalized tags.
// Duplicate tags collapse into one entry.
func NewProfile(tags []string) Profile {
	if len(tags) == 0 {
		return Profile{}
	}
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		set[tag] = struct{}{}
	}
	return Profile{tags: set}
}

// Len returns the number of distinct tags in the profile.
func (p Profile) Len() int {
	return len(p.tags)
}

// Has reports whether the profile contains tag.
func (p Profile) Has(tag string) bool {
	_, ok := p.tags[tag]
	return ok
}

// Signals holds the per-item inputs to the score.
type Signals struct {
	Tags      []string  // Normalized item tags
	CreatedAt time.Time // Item creation time
	Likes     int64     // Like counter at snapshot time
}

// Normalization holds the pool-wide constants used to scale raw signals.
// It must be derived from the same candidate pool that is being scored.
type Normalization struct {
	MaxLikes int64 // Largest like counter in the candidate pool
}

// TagMatchWeight returns |itemTags ∩ profile| / |profile| in [0, 1].
// An empty profile or an untagged item yields 0.
func TagMatchWeight(profile Profile, itemTags []string) float64 {
	if profile.Len() == 0 || len(itemTags) == 0 {
		return 0.0
	}

	matches := 0
	for _, tag := range itemTags {
		if profile.Has(tag) {
			matches++
		}
	}

	return clamp01(float64(matches) / float64(profile.Len()))
}

// RecencyWeight computes 1 / (hours + 1) where hours is the whole number of
// hours elapsed since createdAt. A creation time in the future (clock skew)
// counts as zero hours old.
//
// Returns 1.0 for items younger than an hour, 0.5 for items 1-2 hours old, etc.
func RecencyWeight(createdAt time.Time, now time.Time) float64 {
	hours := math.Floor(now.Sub(createdAt).Hours())
	if hours < 0 {
		hours = 0
	}
	return 1.0 / (hours + 1.0)
}

// PopularityWeight computes ln(likes + 1) / ln(maxLikes + 1).
// Logarithmic compression keeps a single viral item from dominating.
// Returns 0 when maxLikes is not positive.
func PopularityWeight(likes int64, maxLikes int64) float64 {
	if maxLikes <= 0 {
		return 0.0
	}
	if likes < 0 {
		likes = 0
	}
	return clamp01(math.Log1p(float64(likes)) / math.Log1p(float64(maxLikes)))
}

// Params holds the three component scores, each in [0, 1].
type Params struct {
	TagMatch   float64
	Recency    float64
	Popularity float64
}

// CompositeScore combines the component scores using the calibrated weights.
//
// Default formula: score = (tag_match * 0.4) + (recency * 0.3) + (popularity * 0.3)
//
// The result is clamped to [0, 1]. A nil weights value uses DefaultWeights.
func CompositeScore(params Params, weights *Weights) float64 {
	if weights == nil {
		weights = DefaultWeights()
	}

	score := (clamp01(params.TagMatch) * weights.TagMatch) +
		(clamp01(params.Recency) * weights.Recency) +
		(clamp01(params.Popularity) * weights.Popularity)

	return clamp01(score)
}

// Score computes the relevance of one item for one user. It is a pure function
// of its arguments: equal inputs always produce bit-identical results.
func Score(profile Profile, item Signals, norm Normalization, now time.Time, weights *Weights) float64 {
	return CompositeScore(Params{
		TagMatch:   TagMatchWeight(profile, item.Tags),
		Recency:    RecencyWeight(item.CreatedAt, now),
		Popularity: PopularityWeight(item.Likes, norm.MaxLikes),
	}, weights)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0.0
	}
	if v > 1 {
		return 1.0
	}
	return v
}
