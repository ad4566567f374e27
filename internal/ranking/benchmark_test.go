package ranking

import (
	"testing"
	"time"
)

// BenchmarkTagMatchWeight benchmarks the interest overlap calculation.
func BenchmarkTagMatchWeight(b *testing.B) {
	profile := NewProfile([]string{"jazz", "vinyl", "ambient", "noise", "punk", "dub", "house", "drone"})
	tags := []string{"ambient", "drone", "field-recording"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		TagMatchWeight(profile, tags)
	}
}

// BenchmarkRecencyWeight benchmarks the recency calculation.
func BenchmarkRecencyWeight(b *testing.B) {
	now := time.Now()
	createdAt := now.Add(-6 * time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RecencyWeight(createdAt, now)
	}
}

// BenchmarkPopularityWeight benchmarks the popularity calculation.
func BenchmarkPopularityWeight(b *testing.B) {
	for i := 0; i < b.N; i++ {
		PopularityWeight(137, 9001)
	}
}

// BenchmarkScore benchmarks a complete per-item scoring pass.
// A page request scores the whole candidate pool, so this bounds request cost.
func BenchmarkScore(b *testing.B) {
	now := time.Now()
	profile := NewProfile([]string{"jazz", "vinyl", "ambient"})
	signals := Signals{
		Tags:      []string{"jazz", "ambient"},
		CreatedAt: now.Add(-3 * time.Hour),
		Likes:     42,
	}
	norm := Normalization{MaxLikes: 1200}
	weights := DefaultWeights()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Score(profile, signals, norm, now, weights)
	}
}
