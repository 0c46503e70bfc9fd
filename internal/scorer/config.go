// Package scorer ranks candidate OAB mentions by relevance.
package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gazette-cli/internal/config"
)

// DefaultConfig returns a config.ScoringConfig with the standard weights.
func DefaultConfig() config.ScoringConfig {
	return config.ScoringConfig{
		ContextWeight:  0.4,
		DensityWeight:  0.3,
		PositionWeight: 0.2,
		ActTypeBonus:   0.1,

		// Thresholds.
		ReviewThreshold: 0.6,
		CandidateFactor: 0.8,
	}
}

// WeightSum returns the sum of the three component weights.
func WeightSum(c config.ScoringConfig) float64 {
	return c.ContextWeight + c.DensityWeight + c.PositionWeight
}

// ValidateConfig checks that a ScoringConfig is internally consistent.
func ValidateConfig(c config.ScoringConfig) error {
	var errs []string

	weights := []struct {
		name  string
		value float64
	}{
		{"context_weight", c.ContextWeight},
		{"density_weight", c.DensityWeight},
		{"position_weight", c.PositionWeight},
		{"act_type_bonus", c.ActTypeBonus},
	}
	for _, w := range weights {
		if w.value < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", w.name))
		}
	}

	sum := WeightSum(c)
	if sum <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}
	// Allow a little floating-point slack.
	if sum > 1.0001 {
		errs = append(errs, fmt.Sprintf("weights should sum to at most 1, got %.2f", sum))
	}

	if c.ReviewThreshold < 0 || c.ReviewThreshold > 1 {
		errs = append(errs, "review_threshold must be between 0 and 1")
	}
	if c.CandidateFactor <= 0 || c.CandidateFactor > 1 {
		errs = append(errs, "candidate_factor must be in (0, 1]")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
