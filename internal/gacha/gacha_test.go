package gacha

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtding233/gacha-pull/internal/token"
)

const (
	low Rarity = 3
	mid Rarity = 4
	top Rarity = 5
)

// scenarioPool is the standard 1% / 3% / 96% pool with hard pity at 90.
func scenarioPool(t testing.TB) *Pool {
	t.Helper()
	p := &Pool{
		ID:        "standard",
		Enabled:   true,
		BaseRates: Distribution{top: 0.01, mid: 0.03, low: 0.96},
		Rewards: map[Rarity][]string{
			top: {"aurora", "ember"},
			mid: {"falchion", "lance", "sparrow"},
			low: {"dagger", "sling", "buckler", "staff"},
		},
		Pity: PityConfig{
			HardPity:      90,
			SoftStart:     75,
			SoftRate:      0.05,
			BulkMinRarity: mid,
		},
		Price: token.Token{Single: token.Cost{Currency: "jade", Amount: 160}},
	}
	require.NoError(t, p.Init())
	return p
}

// featuredPool features "aurora" among the top tier with a guarantee after 3 draws.
func featuredPool(t testing.TB) *Pool {
	t.Helper()
	p := scenarioPool(t)
	p.ID = "event"
	p.Featured = []string{"aurora"}
	p.FeaturedWeight = 3
	p.Pity.FeaturedGuarantee = true
	p.Pity.FeaturedThreshold = 3
	require.NoError(t, p.Init())
	return p
}

// seqRNG replays vals in order and then repeats the last one.
type seqRNG struct {
	vals []float64
	i    int
}

func (s *seqRNG) Float64() float64 {
	v := s.vals[min(s.i, len(s.vals)-1)]
	s.i++
	return v
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestBaseRatesSumToOne(t *testing.T) {
	p := scenarioPool(t)
	assert.InDelta(t, 1.0, p.BaseRates.Sum(), RateTolerance)

	p.BaseRates = Distribution{top: 0.02, mid: 0.03, low: 0.96}
	err := p.Init()
	assert.ErrorIs(t, err, ErrPoolConfig)
}

func TestPoolValidate(t *testing.T) {
	t.Run("tier without rewards", func(t *testing.T) {
		p := scenarioPool(t)
		delete(p.Rewards, mid)
		assert.ErrorIs(t, p.Init(), ErrNoRewards)
	})
	t.Run("featured not eligible", func(t *testing.T) {
		p := scenarioPool(t)
		p.Featured = []string{"nobody"}
		assert.ErrorIs(t, p.Init(), ErrPoolConfig)
	})
	t.Run("soft start past hard pity", func(t *testing.T) {
		p := scenarioPool(t)
		p.Pity.SoftStart = 91
		assert.ErrorIs(t, p.Init(), ErrPoolConfig)
	})
	t.Run("target ramp below base", func(t *testing.T) {
		p := scenarioPool(t)
		p.Pity.SoftMode = SoftTargetRamp
		p.Pity.SoftTarget = 0.005
		assert.ErrorIs(t, p.Init(), ErrPoolConfig)
	})
	t.Run("featured weight below one", func(t *testing.T) {
		p := featuredPool(t)
		p.FeaturedWeight = 0.5
		assert.ErrorIs(t, p.Init(), ErrPoolConfig)
		assert.Equal(t, 0.5, p.FeaturedWeight)
	})
	t.Run("unset featured weight defaults to one", func(t *testing.T) {
		p := scenarioPool(t)
		assert.Equal(t, 1.0, p.FeaturedWeight)
	})
	t.Run("zero-rate tier may be empty", func(t *testing.T) {
		p := scenarioPool(t)
		p.BaseRates[2] = 0
		assert.NoError(t, p.Init())
	})
}

func TestHardPityForcesTop(t *testing.T) {
	p := scenarioPool(t)
	l := Ledger{DrawsSinceTop: 89, DrawsSinceFeatured: 89, TotalDraws: 89}

	dist := EffectiveRates(p, l)
	assert.Equal(t, 1.0, dist[top])
	assert.Equal(t, 0.0, dist[mid])
	assert.Equal(t, 0.0, dist[low])

	for seed := uint64(0); seed < 50; seed++ {
		d, err := Roller{RNG: NewSeededRNG(seed)}.One(p, l)
		require.NoError(t, err)
		require.Equal(t, top, d.Rarity, "seed %d", seed)
	}
}

func TestBaseRatesBeforeSoftPity(t *testing.T) {
	p := scenarioPool(t)
	for _, c := range []int{0, 10, 74, 75} {
		dist := EffectiveRates(p, Ledger{DrawsSinceTop: c})
		assert.InDelta(t, 0.01, dist[top], 1e-12, "count %d", c)
		assert.InDelta(t, 0.96, dist[low], 1e-12, "count %d", c)
	}
}

func TestSoftPityRescalesOtherTiers(t *testing.T) {
	p := scenarioPool(t)
	dist := EffectiveRates(p, Ledger{DrawsSinceTop: 77})

	// 0.01 + 2*0.05
	assert.InDelta(t, 0.11, dist[top], 1e-12)
	scale := (1 - 0.11) / (1 - 0.01)
	assert.InDelta(t, 0.03*scale, dist[mid], 1e-12)
	assert.InDelta(t, 0.96*scale, dist[low], 1e-12)
	assert.InDelta(t, 1.0, dist.Sum(), 1e-9)

	// extra saturates at 1 before hard pity
	dist = EffectiveRates(p, Ledger{DrawsSinceTop: 88})
	assert.Equal(t, 0.66, math.Round(dist[top]*100)/100)
	p.Pity.SoftRate = 0.5
	dist = EffectiveRates(p, Ledger{DrawsSinceTop: 80})
	assert.Equal(t, 1.0, dist[top])
	assert.Equal(t, 0.0, dist[low])
}

func TestSoftPityMonotonic(t *testing.T) {
	cases := map[string]func(p *Pool){
		"per draw increment": func(p *Pool) {},
		"target ramp linear": func(p *Pool) {
			p.Pity.SoftMode, p.Pity.SoftTarget, p.Pity.Easing = SoftTargetRamp, 0.5, EaseLinear
		},
		"target ramp easeOutQuad": func(p *Pool) {
			p.Pity.SoftMode, p.Pity.SoftTarget, p.Pity.Easing = SoftTargetRamp, 0.5, EaseOutQuad
		},
		"target ramp easeInOutCubic": func(p *Pool) {
			p.Pity.SoftMode, p.Pity.SoftTarget, p.Pity.Easing = SoftTargetRamp, 0.5, EaseInOutCubic
		},
	}
	for name, tweak := range cases {
		t.Run(name, func(t *testing.T) {
			p := scenarioPool(t)
			tweak(p)
			require.NoError(t, p.Init())

			prev := 0.0
			for c := p.Pity.SoftStart; c < p.Pity.HardPity; c++ {
				dist := EffectiveRates(p, Ledger{DrawsSinceTop: c, TotalDraws: c})
				require.GreaterOrEqual(t, dist[top], prev, "count %d", c)
				require.InDelta(t, 1.0, dist.Sum(), 1e-9, "count %d", c)
				for r, prob := range dist {
					require.GreaterOrEqual(t, prob, 0.0, "tier %s count %d", r, c)
				}
				prev = dist[top]
			}
		})
	}
}

func TestResolveRarityHighestFirst(t *testing.T) {
	dist := Distribution{top: 0.5, mid: 0.5}
	assert.Equal(t, top, ResolveRarity(dist, 0))
	assert.Equal(t, top, ResolveRarity(dist, 0.4999))
	assert.Equal(t, mid, ResolveRarity(dist, 0.5))
	assert.Equal(t, mid, ResolveRarity(dist, 0.9999))

	// a zero-mass tier is never returned, even at its boundary
	dist = Distribution{top: 0, mid: 0.25, low: 0.75}
	assert.Equal(t, mid, ResolveRarity(dist, 0))
}

func TestResolveRarityFallsBackToLowest(t *testing.T) {
	short := Distribution{top: 0.1, mid: 0.1, low: 0.7}
	assert.Equal(t, low, ResolveRarity(short, 0.95))
}

func TestResolveRarityFallbackSkipsZeroRateTier(t *testing.T) {
	// sums to 1 within tolerance, leaving a sliver past the last positive tier
	p := &Pool{
		ID:        "sliver",
		Enabled:   true,
		BaseRates: Distribution{top: 0.3, mid: 0.6999999999, low: 0},
		Rewards: map[Rarity][]string{
			top: {"aurora"},
			mid: {"lance"},
		},
	}
	require.NoError(t, p.Init())

	assert.Equal(t, mid, ResolveRarity(p.BaseRates, 0.99999999995))

	d, err := Roller{RNG: &seqRNG{vals: []float64{0.99999999995}}}.One(p, Ledger{})
	require.NoError(t, err)
	assert.Equal(t, mid, d.Rarity)
	assert.Equal(t, "lance", d.RewardID)
}

func TestRollerRewardSource(t *testing.T) {
	p := scenarioPool(t)
	src := func(poolID string, rarity Rarity) ([]string, bool) {
		if poolID != p.ID {
			return nil, false
		}
		return []string{"reissued-" + rarity.String()}, true
	}

	d, err := Roller{RNG: &seqRNG{vals: []float64{0.99}}, Rewards: src}.One(p, Ledger{})
	require.NoError(t, err)
	assert.Equal(t, "reissued-3-star", d.RewardID)

	other := scenarioPool(t)
	other.ID = "gone"
	_, err = Roller{RNG: &seqRNG{vals: []float64{0.99}}, Rewards: src}.One(other, Ledger{})
	assert.ErrorIs(t, err, ErrNoRewards)
}

func TestResolverUnbiasedAtBaseRates(t *testing.T) {
	const n = 10000
	p := scenarioPool(t)
	r := Roller{RNG: NewSeededRNG(42)}
	start := Ledger{}

	hits := 0
	for i := 0; i < n; i++ {
		// same starting ledger every time: no pity progression between runs
		d, err := r.One(p, start)
		require.NoError(t, err)
		if d.Rarity == top {
			hits++
		}
	}
	freq := float64(hits) / n
	// sigma is ~0.001 at n=10000
	assert.InDelta(t, 0.01, freq, 0.005)
}

func TestResolveRewardUniformWithoutFeatured(t *testing.T) {
	p := scenarioPool(t)
	rng := NewSeededRNG(7)
	seen := map[string]int{}
	for i := 0; i < 4000; i++ {
		pick, err := ResolveReward(p, low, Ledger{}, rng)
		require.NoError(t, err)
		require.False(t, pick.Featured)
		seen[pick.RewardID]++
	}
	require.Len(t, seen, 4)
	for id, c := range seen {
		assert.InDelta(t, 1000, c, 150, id)
	}
}

func TestResolveRewardFeaturedWeight(t *testing.T) {
	p := featuredPool(t)
	p.Rewards[top] = []string{"aurora", "ember", "frost", "gale"}
	require.NoError(t, p.Init())

	rng := NewSeededRNG(11)
	const n = 20000
	featured := 0
	for i := 0; i < n; i++ {
		// guarantee not due
		pick, err := ResolveReward(p, top, Ledger{}, rng)
		require.NoError(t, err)
		if pick.Featured {
			require.Equal(t, "aurora", pick.RewardID)
			featured++
		}
	}
	// weight 3 vs three regular rewards: 3 / 6
	assert.InDelta(t, 0.5, float64(featured)/n, 0.02)
}

func TestFeaturedGuarantee(t *testing.T) {
	p := featuredPool(t)
	due := Ledger{DrawsSinceFeatured: 3, TotalDraws: 3}
	require.True(t, FeaturedGuaranteeDue(p, due))
	require.False(t, FeaturedGuaranteeDue(p, Ledger{DrawsSinceFeatured: 2}))

	for seed := uint64(0); seed < 200; seed++ {
		pick, err := ResolveReward(p, top, due, NewSeededRNG(seed))
		require.NoError(t, err)
		require.True(t, pick.Featured, "seed %d", seed)
		require.Equal(t, "aurora", pick.RewardID)
	}

	// tiers without featured rewards are unaffected
	pick, err := ResolveReward(p, mid, due, NewSeededRNG(1))
	require.NoError(t, err)
	assert.False(t, pick.Featured)
}

func TestResolveRewardEmptyTier(t *testing.T) {
	p := scenarioPool(t)
	_, err := ResolveReward(p, 2, Ledger{}, NewSeededRNG(1))
	assert.ErrorIs(t, err, ErrNoRewards)
}

func TestBatchAdvancesLedgerPerDraw(t *testing.T) {
	p := scenarioPool(t)
	// always the low tier
	r := Roller{RNG: &seqRNG{vals: []float64{0.99}}}

	b, err := r.Batch(p, Ledger{DrawsSinceTop: 3, DrawsSinceFeatured: 3, TotalDraws: 3}, 1)
	require.NoError(t, err)
	require.Len(t, b.Draws, 1)
	assert.Equal(t, low, b.Draws[0].Rarity)
	assert.Equal(t, 4, b.Ledger.DrawsSinceTop)
	assert.Equal(t, 4, b.Ledger.TotalDraws)
}

func TestBatchReachesHardPityMidBatch(t *testing.T) {
	p := scenarioPool(t)
	r := Roller{RNG: &seqRNG{vals: []float64{0.99}}}

	// draw index 4 is the 90th since the last top
	b, err := r.Batch(p, Ledger{DrawsSinceTop: 85, DrawsSinceFeatured: 85, TotalDraws: 85}, BulkSize)
	require.NoError(t, err)
	for i, d := range b.Draws {
		if i == 4 {
			assert.Equal(t, top, d.Rarity)
			continue
		}
		assert.NotEqual(t, top, d.Rarity, "draw %d", i)
	}
	assert.Equal(t, 5, b.Ledger.DrawsSinceTop)
	assert.Equal(t, 95, b.Ledger.TotalDraws)
}

func TestBulkGuaranteeReplacesLastDraw(t *testing.T) {
	p := scenarioPool(t)
	// 0.99 keeps every draw in the low tier; the tier pick then lands on index 1 (mid)
	r := Roller{RNG: &seqRNG{vals: []float64{0.99}}}

	b, err := r.Batch(p, Ledger{}, BulkSize)
	require.NoError(t, err)
	require.Len(t, b.Draws, BulkSize)
	for i, d := range b.Draws[:BulkSize-1] {
		assert.Equal(t, low, d.Rarity, "draw %d", i)
		assert.False(t, d.Guaranteed)
	}
	last := b.Draws[BulkSize-1]
	assert.True(t, last.Guaranteed)
	assert.Contains(t, []Rarity{mid, top}, last.Rarity)
	assert.Equal(t, 10, b.Ledger.TotalDraws)
	assert.Equal(t, 10, b.Ledger.DrawsSinceTop)
	require.Len(t, b.Ledger.Recent, 10)
	assert.Equal(t, last.RewardID, b.Ledger.Recent[9].RewardID)
}

func TestBulkGuaranteeTopReplacementResetsPity(t *testing.T) {
	p := scenarioPool(t)
	// 10 draws x (rarity, reward) at 0.99, then the tier pick at 0.1 -> top
	vals := append(repeat(0.99, 2*BulkSize), 0.1, 0.1)
	r := Roller{RNG: &seqRNG{vals: vals}}

	b, err := r.Batch(p, Ledger{DrawsSinceTop: 20, DrawsSinceFeatured: 20, TotalDraws: 20}, BulkSize)
	require.NoError(t, err)
	last := b.Draws[BulkSize-1]
	require.True(t, last.Guaranteed)
	require.Equal(t, top, last.Rarity)
	assert.Equal(t, 0, b.Ledger.DrawsSinceTop)
	assert.Equal(t, 30, b.Ledger.TotalDraws)
}

func TestBulkGuaranteeHoldsForEveryBatch(t *testing.T) {
	p := scenarioPool(t)
	r := Roller{RNG: NewSeededRNG(2024)}
	l := Ledger{}
	for i := 0; i < 500; i++ {
		b, err := r.Batch(p, l, BulkSize)
		require.NoError(t, err)
		ok := false
		for _, d := range b.Draws {
			if d.Rarity >= mid {
				ok = true
			}
		}
		require.True(t, ok, "batch %d has no draw at or above %s", i, mid)
		l = b.Ledger
	}
}

func TestBulkGuaranteeHonorsPendingFeatured(t *testing.T) {
	p := featuredPool(t)
	p.Pity.BulkMinRarity = top
	require.NoError(t, p.Init())
	r := Roller{RNG: &seqRNG{vals: []float64{0.99}}}

	b, err := r.Batch(p, Ledger{}, BulkSize)
	require.NoError(t, err)
	last := b.Draws[BulkSize-1]
	require.Equal(t, top, last.Rarity)
	assert.True(t, last.Featured)
	assert.Equal(t, "aurora", last.RewardID)
	assert.Equal(t, 0, b.Ledger.DrawsSinceFeatured)
}

func TestSingleDrawHasNoBulkGuarantee(t *testing.T) {
	p := scenarioPool(t)
	r := Roller{RNG: &seqRNG{vals: []float64{0.99}}}
	b, err := r.Batch(p, Ledger{}, 1)
	require.NoError(t, err)
	assert.Equal(t, low, b.Draws[0].Rarity)
	assert.False(t, b.Draws[0].Guaranteed)
}

func TestPoolActiveAt(t *testing.T) {
	p := scenarioPool(t)
	now := p.Start
	assert.True(t, p.ActiveAt(now))

	p.Enabled = false
	assert.False(t, p.ActiveAt(now))
}

func TestPoolWindowIncludesBothEnds(t *testing.T) {
	p := scenarioPool(t)
	p.Start = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	p.End = time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

	assert.False(t, p.ActiveAt(p.Start.Add(-time.Nanosecond)))
	assert.True(t, p.ActiveAt(p.Start))
	assert.True(t, p.ActiveAt(p.End))
	assert.False(t, p.ActiveAt(p.End.Add(time.Nanosecond)))
}
