package gacha

import "fmt"

// Pick is the reward chosen for one draw.
type Pick struct {
	RewardID string
	Featured bool
}

// FeaturedGuaranteeDue reports whether the next draw landing on a tier with
// featured rewards must return one of them.
func FeaturedGuaranteeDue(p *Pool, l Ledger) bool {
	return p.Pity.FeaturedGuarantee && l.DrawsSinceFeatured >= p.Pity.FeaturedThreshold
}

// ResolveReward selects a reward from the eligible set of rarity.
//   - No featured rewards in the tier: uniform pick.
//   - Featured guarantee due: uniform pick among featured rewards.
//   - Otherwise featured rewards weigh FeaturedWeight times a regular one.
func ResolveReward(p *Pool, rarity Rarity, l Ledger, rng RandomSource) (Pick, error) {
	return resolveFrom(p, rarity, p.Rewards[rarity], l, rng)
}

func resolveFrom(p *Pool, rarity Rarity, candidates []string, l Ledger, rng RandomSource) (Pick, error) {
	if len(candidates) == 0 {
		return Pick{}, fmt.Errorf("%w: pool %s tier %s", ErrNoRewards, p.ID, rarity)
	}
	if rng == nil {
		rng = DefaultRNG()
	}

	var featured []string
	for _, id := range candidates {
		if p.IsFeatured(id) {
			featured = append(featured, id)
		}
	}
	if len(featured) == 0 {
		return Pick{RewardID: candidates[pickIndex(rng, len(candidates))]}, nil
	}
	if FeaturedGuaranteeDue(p, l) {
		return Pick{RewardID: featured[pickIndex(rng, len(featured))], Featured: true}, nil
	}

	total := float64(len(candidates)-len(featured)) + float64(len(featured))*p.FeaturedWeight
	x := rng.Float64() * total
	for _, id := range candidates {
		w := 1.0
		if p.IsFeatured(id) {
			w = p.FeaturedWeight
		}
		if x < w {
			return Pick{RewardID: id, Featured: p.IsFeatured(id)}, nil
		}
		x -= w
	}
	// rounding left x past the last weight
	last := candidates[len(candidates)-1]
	return Pick{RewardID: last, Featured: p.IsFeatured(last)}, nil
}
