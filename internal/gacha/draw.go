package gacha

import (
	"fmt"
	"log/slog"
	"time"
)

// BulkSize is the batch size the bulk guarantee applies to.
const BulkSize = 10

// ResolveRarity walks the tiers highest rarity first, accumulating mass, and
// returns the first tier whose cumulative mass exceeds r. Walking from the top
// means rounding at a boundary can only favor the rarer tier.
func ResolveRarity(dist Distribution, r float64) Rarity {
	tiers := dist.Tiers()
	var acc float64
	for _, tier := range tiers {
		acc += dist[tier]
		if r < acc {
			return tier
		}
	}
	if len(tiers) == 0 {
		return 0
	}
	lowest := lowestRollable(dist, tiers)
	slog.Error("rarity resolution fell through; distribution does not cover sample",
		"sample", r, "mass", acc, "fallback", lowest)
	return lowest
}

// lowestRollable is the lowest tier with positive mass. A zero-rate tier may
// have no rewards, so it is never a fallback.
func lowestRollable(dist Distribution, tiers []Rarity) Rarity {
	for i := len(tiers) - 1; i >= 0; i-- {
		if dist[tiers[i]] > 0 {
			return tiers[i]
		}
	}
	return 0
}

// Draw is one entry of a batch, in draw order.
type Draw struct {
	RewardID   string
	Rarity     Rarity
	Featured   bool
	Guaranteed bool // replaced by the bulk guarantee
}

// Batch is the outcome of rolling a batch against a starting ledger.
type Batch struct {
	Draws  []Draw
	Ledger Ledger // ledger after the last draw
}

// Roller runs draws. It never touches storage; callers commit Batch.Ledger.
type Roller struct {
	RNG       RandomSource
	RecentCap int
	Now       func() time.Time
	// Rewards supplies the eligible rewards of a tier. Nil reads Pool.Rewards.
	Rewards RewardSource
}

// RewardSource returns the rewards poolID can give at rarity.
type RewardSource func(poolID string, rarity Rarity) ([]string, bool)

func (r Roller) rng() RandomSource {
	if r.RNG == nil {
		return DefaultRNG()
	}
	return r.RNG
}

func (r Roller) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now()
}

// One rolls a single draw against l: rate calculation, rarity, then reward.
func (r Roller) One(p *Pool, l Ledger) (Draw, error) {
	dist := EffectiveRates(p, l)
	rarity := ResolveRarity(dist, r.rng().Float64())
	return r.at(p, rarity, l)
}

func (r Roller) at(p *Pool, rarity Rarity, l Ledger) (Draw, error) {
	candidates := p.Rewards[rarity]
	if r.Rewards != nil {
		ids, ok := r.Rewards(p.ID, rarity)
		if !ok {
			return Draw{}, fmt.Errorf("%w: pool %s is not in the reward catalog", ErrNoRewards, p.ID)
		}
		candidates = ids
	}
	pick, err := resolveFrom(p, rarity, candidates, l, r.rng())
	if err != nil {
		return Draw{}, err
	}
	return Draw{RewardID: pick.RewardID, Rarity: rarity, Featured: pick.Featured}, nil
}

// Batch rolls n draws. Each draw sees the ledger left by the previous one.
// For a ten draw the bulk guarantee then runs as a separate step over the
// finished list.
func (r Roller) Batch(p *Pool, start Ledger, n int) (Batch, error) {
	at := r.now()
	draws := make([]Draw, 0, n)
	// states[i] is the ledger going into draw i
	states := make([]Ledger, 0, n+1)
	cur := start.Clone()
	states = append(states, cur)
	for i := 0; i < n; i++ {
		d, err := r.One(p, cur)
		if err != nil {
			return Batch{}, err
		}
		draws = append(draws, d)
		cur = cur.Advance(d.record(at), p.Top(), r.RecentCap)
		states = append(states, cur)
	}

	if n == BulkSize {
		return r.bulkGuarantee(p, draws, states, at)
	}
	return Batch{Draws: draws, Ledger: cur}, nil
}

// bulkGuarantee replaces the draw at index BulkSize-1 when no draw in the batch
// reached Pity.BulkMinRarity. The replacement picks a tier uniformly among
// tiers at or above the minimum and resolves its reward against the ledger as
// it stood before that draw, so a pending featured guarantee still applies.
// Earlier draws are left as rolled.
func (r Roller) bulkGuarantee(p *Pool, draws []Draw, states []Ledger, at time.Time) (Batch, error) {
	last := len(draws) - 1
	floor := p.Pity.BulkMinRarity
	if floor == 0 {
		return Batch{Draws: draws, Ledger: states[len(states)-1]}, nil
	}
	for _, d := range draws {
		if d.Rarity >= floor {
			return Batch{Draws: draws, Ledger: states[len(states)-1]}, nil
		}
	}

	tiers := p.TiersAtLeast(floor)
	if len(tiers) == 0 {
		return Batch{}, ErrNoRewards
	}
	before := states[last]
	rarity := tiers[pickIndex(r.rng(), len(tiers))]
	d, err := r.at(p, rarity, before)
	if err != nil {
		return Batch{}, err
	}
	d.Guaranteed = true

	out := make([]Draw, len(draws))
	copy(out, draws)
	out[last] = d
	return Batch{Draws: out, Ledger: before.Advance(d.record(at), p.Top(), r.RecentCap)}, nil
}

func (d Draw) record(at time.Time) Record {
	return Record{RewardID: d.RewardID, Rarity: d.Rarity, Featured: d.Featured, At: at}
}
