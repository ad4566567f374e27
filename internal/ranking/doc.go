// Package ranking provides the feed relevance score and its calibration.
//
// Basic Usage:
//
//	// Load calibration (typically at startup)
//	weights, err := ranking.LoadCalibration("configs/ranking.calibration.json")
//	if err != nil {
//		log.Warn("using default weights", "error", err)
//	}
//
//	profile := ranking.NewProfile(likedTags)
//	norm := ranking.Normalization{MaxLikes: snapshot.MaxLikes}
//	score := ranking.Score(profile, ranking.Signals{
//		Tags:      item.Tags,
//		CreatedAt: item.CreatedAt,
//		Likes:     item.Likes,
//	}, norm, now, weights)
//
// Weight Functions:
//
// TagMatchWeight, RecencyWeight and PopularityWeight each return a value in
// [0, 1] and never fail: an empty profile, an untagged item, or a pool whose
// maximum like count is zero all contribute exactly 0 to their term.
//
// Calibration:
//
// Weights are tuned at deploy time through a JSON file loaded at startup.
// Partial files are merged over the defaults, and a configuration whose
// weights sum above 1 is rejected in favor of the defaults so that scores
// always stay inside [0, 1]. Each configuration has a Fingerprint; feed
// cursors minted under one fingerprint are not resumed under another.
package ranking
