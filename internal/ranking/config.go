package ranking

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// Weights defines the ranking weights for the personalized feed.
type Weights struct {
	TagMatch   float64 `json:"tag_match"`  // Weight for interest overlap (default: 0.4)
	Recency    float64 `json:"recency"`    // Weight for item freshness (default: 0.3)
	Popularity float64 `json:"popularity"` // Weight for normalized likes (default: 0.3)
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"` // Config version for future compatibility
	Weights Weights `json:"weights"` // Weight configuration
}

// Calibration validation errors.
var (
	ErrNegativeWeight = errors.New("ranking weights must be non-negative")
	ErrWeightSum      = errors.New("ranking weights must sum to at most 1")
)

// weightSumTolerance absorbs float rounding in hand-written calibration files.
const weightSumTolerance = 1e-9

// DefaultWeights returns the default ranking weight configuration.
//
// Formula: score = (tag_match * 0.4) + (recency * 0.3) + (popularity * 0.3)
// - Interest overlap is the strongest personal signal
// - Recency and popularity share the rest so fresh items surface before viral old ones
// - Max score is 1.0, reached only by a brand-new, most-liked item matching every profile tag
func DefaultWeights() *Weights {
	return &Weights{
		TagMatch:   0.4,
		Recency:    0.3,
		Popularity: 0.3,
	}
}

// Validate checks that the weights keep every score inside [0, 1].
func (w *Weights) Validate() error {
	if w.TagMatch < 0 || w.Recency < 0 || w.Popularity < 0 {
		return ErrNegativeWeight
	}
	if w.TagMatch+w.Recency+w.Popularity > 1+weightSumTolerance {
		return fmt.Errorf("%w (got %.4f)", ErrWeightSum, w.TagMatch+w.Recency+w.Popularity)
	}
	return nil
}

// Fingerprint identifies the weight configuration. Scores computed under
// different fingerprints are not comparable, so cursors carry it.
func (w *Weights) Fingerprint() string {
	return "w" + strconv.FormatFloat(w.TagMatch, 'g', -1, 64) +
		":" + strconv.FormatFloat(w.Recency, 'g', -1, 64) +
		":" + strconv.FormatFloat(w.Popularity, 'g', -1, 64)
}

// LoadCalibration loads ranking weights from a JSON calibration file.
// An empty path returns the defaults. On any read, parse, or validation
// error the defaults are returned together with the error, so callers can
// log and keep serving.
func LoadCalibration(filePath string) (*Weights, error) {
	if filePath == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultWeights()
	merged := MergeCalibration(defaults, &config.Weights)
	if err := merged.Validate(); err != nil {
		slog.Warn("invalid calibration weights, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("invalid calibration file: %w", err)
	}
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration merges override weights with base weights.
// Only non-zero values from the override are applied, which allows
// partial overrides in the calibration file.
func MergeCalibration(base *Weights, override *Weights) *Weights {
	if base == nil {
		return DefaultWeights()
	}

	result := *base
	if override == nil {
		return &result
	}

	if override.TagMatch != 0 {
		result.TagMatch = override.TagMatch
	}
	if override.Recency != 0 {
		result.Recency = override.Recency
	}
	if override.Popularity != 0 {
		result.Popularity = override.Popularity
	}

	return &result
}

// logCalibrationOverrides logs which weights were overridden from defaults.
func logCalibrationOverrides(defaults *Weights, loaded *Weights) {
	var overrides []string

	if loaded.TagMatch != defaults.TagMatch {
		overrides = append(overrides, fmt.Sprintf("tag_match: %.2f -> %.2f",
			defaults.TagMatch, loaded.TagMatch))
	}
	if loaded.Recency != defaults.Recency {
		overrides = append(overrides, fmt.Sprintf("recency: %.2f -> %.2f",
			defaults.Recency, loaded.Recency))
	}
	if loaded.Popularity != defaults.Popularity {
		overrides = append(overrides, fmt.Sprintf("popularity: %.2f -> %.2f",
			defaults.Popularity, loaded.Popularity))
	}

	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"overrides", overrides,
			"fingerprint", loaded.Fingerprint())
	} else {
		slog.Info("loaded ranking calibration (using all defaults)")
	}
}
