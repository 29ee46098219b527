package gacha

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/xtding233/gacha-pull/internal/token"
)

// RateTolerance is how far the base rates may drift from summing to 1.
const RateTolerance = 1e-9

var (
	ErrPoolConfig = errors.New("invalid pool config")
	// ErrNoRewards reports a tier that can be rolled but has nothing to give.
	ErrNoRewards = errors.New("rarity tier has no eligible rewards")
)

// PityConfig holds the pity parameters of a pool.
type PityConfig struct {
	HardPity  int     // draws since top tier at which the next draw is forced top; 0 disables
	SoftStart int     // draws since top tier at which the soft ramp begins
	SoftRate  float64 // per_draw_increment: top rate added per draw past SoftStart
	SoftMode  SoftMode
	// target_ramp only: top rate reached at HardPity-1 and the curve used to get there
	SoftTarget float64
	Easing     Easing

	FeaturedGuarantee bool
	FeaturedThreshold int    // draws since last featured at which the next featured-capable draw is forced featured
	BulkMinRarity     Rarity // minimum rarity guaranteed in a ten draw; 0 disables
}

// Pool is an immutable reward pool definition.
type Pool struct {
	ID          string
	Name        string
	Description string
	Enabled     bool
	Start, End  time.Time // zero means unbounded

	BaseRates      Distribution
	Rewards        map[Rarity][]string // eligible rewards per tier, in catalog order
	Featured       []string
	FeaturedWeight float64

	Pity  PityConfig
	Price token.Token

	featured map[string]bool
	top      Rarity
}

// Init derives lookup tables and validates the pool. It must be called once
// before the pool is used for draws.
func (p *Pool) Init() error {
	p.featured = make(map[string]bool, len(p.Featured))
	for _, id := range p.Featured {
		p.featured[id] = true
	}
	if p.FeaturedWeight == 0 {
		p.FeaturedWeight = 1
	}
	if p.Pity.SoftMode == "" {
		p.Pity.SoftMode = SoftPerDrawIncrement
	}
	if p.Pity.Easing == "" {
		p.Pity.Easing = EaseLinear
	}
	p.top = 0
	for _, r := range p.BaseRates.Tiers() {
		if p.BaseRates[r] > 0 {
			p.top = r
			break
		}
	}
	return p.Validate()
}

// Top returns the highest tier with a positive base rate.
func (p *Pool) Top() Rarity { return p.top }

// IsFeatured reports whether rewardID is featured in this pool.
func (p *Pool) IsFeatured(rewardID string) bool { return p.featured[rewardID] }

// ActiveAt reports whether the pool is enabled and now is inside its window.
// Both ends of the window are included.
func (p *Pool) ActiveAt(now time.Time) bool {
	if !p.Enabled {
		return false
	}
	if !p.Start.IsZero() && now.Before(p.Start) {
		return false
	}
	if !p.End.IsZero() && now.After(p.End) {
		return false
	}
	return true
}

// TiersAtLeast returns rollable tiers >= floor, highest first.
func (p *Pool) TiersAtLeast(floor Rarity) []Rarity {
	var out []Rarity
	for _, r := range p.BaseRates.Tiers() {
		if r >= floor && p.BaseRates[r] > 0 && len(p.Rewards[r]) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// Validate checks the invariants every draw relies on. Errors wrapping
// ErrNoRewards are catalog inconsistencies; the rest wrap ErrPoolConfig.
func (p *Pool) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrPoolConfig)
	}
	if len(p.BaseRates) == 0 {
		return fmt.Errorf("%w: pool %s has no rates", ErrPoolConfig, p.ID)
	}
	if err := validateDistribution(p.BaseRates); err != nil {
		return fmt.Errorf("%w: pool %s: %v", ErrPoolConfig, p.ID, err)
	}
	for _, r := range p.BaseRates.Tiers() {
		if p.BaseRates[r] > 0 && len(p.Rewards[r]) == 0 {
			return fmt.Errorf("%w: pool %s tier %s", ErrNoRewards, p.ID, r)
		}
	}
	eligible := make(map[string]bool)
	for _, ids := range p.Rewards {
		for _, id := range ids {
			eligible[id] = true
		}
	}
	for _, id := range p.Featured {
		if !eligible[id] {
			return fmt.Errorf("%w: pool %s featured reward %q is not eligible", ErrPoolConfig, p.ID, id)
		}
	}
	pc := p.Pity
	if pc.HardPity < 0 || pc.SoftStart < 0 || pc.SoftRate < 0 || pc.FeaturedThreshold < 0 {
		return fmt.Errorf("%w: pool %s has negative pity parameters", ErrPoolConfig, p.ID)
	}
	if pc.HardPity > 0 && pc.SoftStart > pc.HardPity {
		return fmt.Errorf("%w: pool %s soft pity start %d > hard pity %d", ErrPoolConfig, p.ID, pc.SoftStart, pc.HardPity)
	}
	if err := pc.validateSoft(p.BaseRates[p.top]); err != nil {
		return fmt.Errorf("%w: pool %s: %v", ErrPoolConfig, p.ID, err)
	}
	if pc.BulkMinRarity != 0 && len(p.TiersAtLeast(pc.BulkMinRarity)) == 0 {
		return fmt.Errorf("%w: pool %s has no tier at or above bulk minimum %s", ErrNoRewards, p.ID, pc.BulkMinRarity)
	}
	if !p.Start.IsZero() && !p.End.IsZero() && !p.End.After(p.Start) {
		return fmt.Errorf("%w: pool %s window ends before it starts", ErrPoolConfig, p.ID)
	}
	if p.Price.Single.Amount < 0 || p.Price.Ten.Amount < 0 {
		return fmt.Errorf("%w: pool %s has negative cost", ErrPoolConfig, p.ID)
	}
	if math.IsNaN(p.FeaturedWeight) || math.IsInf(p.FeaturedWeight, 0) || p.FeaturedWeight < 1 {
		return fmt.Errorf("%w: pool %s featured weight %v is below 1", ErrPoolConfig, p.ID, p.FeaturedWeight)
	}
	return nil
}
