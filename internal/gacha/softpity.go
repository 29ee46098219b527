package gacha

import (
	"errors"
	"math"
)

// SoftMode selects how the top-tier rate ramps before hard pity.
type SoftMode string

const (
	// SoftPerDrawIncrement adds SoftRate to the top rate for every draw past SoftStart.
	SoftPerDrawIncrement SoftMode = "per_draw_increment"
	// SoftTargetRamp eases the top rate from its base toward SoftTarget at HardPity-1.
	SoftTargetRamp SoftMode = "target_ramp"
)

// Easing specifies how the probability ramps up as we approach pity.
type Easing string

const (
	EaseLinear     Easing = "linear"
	EaseOutQuad    Easing = "easeOutQuad"
	EaseInOutCubic Easing = "easeInOutCubic"
)

var ErrSoftPityConfig = errors.New("invalid soft pity config")

func (c PityConfig) validateSoft(baseTop float64) error {
	switch c.SoftMode {
	case SoftPerDrawIncrement:
		return nil
	case SoftTargetRamp:
		// Ramp ends at (HardPity-1). SoftStart must be < (HardPity-1) to have room to ramp.
		if c.HardPity <= 1 || c.SoftStart >= c.HardPity-1 {
			return ErrSoftPityConfig
		}
		if c.SoftTarget <= baseTop || c.SoftTarget >= 1 {
			return ErrSoftPityConfig
		}
		switch c.Easing {
		case EaseLinear, EaseOutQuad, EaseInOutCubic:
			return nil
		}
		return ErrSoftPityConfig
	default:
		return ErrSoftPityConfig
	}
}

// EffectiveRates computes the distribution for the next draw only, given the
// ledger as it stands before that draw:
//   - DrawsSinceTop >= HardPity-1: all mass on the top tier (hard pity).
//   - DrawsSinceTop >= SoftStart: top tier raised by the soft ramp, every other
//     tier rescaled by (1-newTop)/(1-baseTop) so the total stays 1.
//   - Else: base rates.
func EffectiveRates(p *Pool, l Ledger) Distribution {
	top := p.Top()
	if p.Pity.HardPity > 0 && l.DrawsSinceTop >= p.Pity.HardPity-1 {
		out := make(Distribution, len(p.BaseRates))
		for r := range p.BaseRates {
			out[r] = 0
		}
		out[top] = 1
		return out
	}
	baseTop := p.BaseRates[top]
	newTop, ok := p.Pity.softTop(baseTop, l.DrawsSinceTop)
	if !ok || newTop <= baseTop || baseTop >= 1 {
		return p.BaseRates.clone()
	}
	if newTop > 1 {
		newTop = 1
	}
	scale := (1 - newTop) / (1 - baseTop)
	out := make(Distribution, len(p.BaseRates))
	for r, prob := range p.BaseRates {
		if r == top {
			out[r] = newTop
			continue
		}
		out[r] = prob * scale
	}
	return out
}

// softTop returns the ramped top-tier rate for count draws since the last top hit.
func (c PityConfig) softTop(baseTop float64, count int) (float64, bool) {
	if count < c.SoftStart {
		return baseTop, false
	}
	switch c.SoftMode {
	case SoftTargetRamp:
		end := c.HardPity - 1
		length := float64(end - c.SoftStart)
		if length <= 0 {
			return baseTop, false
		}
		// progress t in [0,1], inclusive at end (count == end)
		t := float64(count-c.SoftStart) / length
		t = math.Max(0, math.Min(1, t))
		t = ease(c.Easing, t)
		return baseTop + (c.SoftTarget-baseTop)*t, true
	default:
		if c.SoftRate <= 0 {
			return baseTop, false
		}
		extra := float64(count-c.SoftStart) * c.SoftRate
		return math.Min(1, baseTop+extra), true
	}
}

func ease(e Easing, t float64) float64 {
	switch e {
	case EaseOutQuad:
		// f(t) = 1 - (1 - t)^2
		return 1 - (1-t)*(1-t)
	case EaseInOutCubic:
		// accelerate then decelerate
		if t < 0.5 {
			return 4 * t * t * t
		}
		return 1 - (-2*t+2)*(-2*t+2)*(-2*t+2)/2
	default:
		return t
	}
}
