package gacha

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidProb = errors.New("invalid probability p; must be 0..1")

func validateProb(p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return ErrInvalidProb
	}
	if p < 0 || p > 1 {
		return ErrInvalidProb
	}
	return nil
}

// validateDistribution checks every tier is a probability and the tiers sum to 1.
func validateDistribution(d Distribution) error {
	for r, p := range d {
		if err := validateProb(p); err != nil {
			return fmt.Errorf("tier %s: %w", r, err)
		}
	}
	if sum := d.Sum(); math.Abs(sum-1) > RateTolerance {
		return fmt.Errorf("rates sum to %v, want 1", sum)
	}
	return nil
}
