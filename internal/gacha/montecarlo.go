package gacha

import (
	"errors"
	"math"
	"sort"
)

// TrialGoal selects what the simulation measures per trial.
type TrialGoal string

const (
	// Draws until the first top-tier result.
	GoalFirstTop TrialGoal = "first_top"
	// Draws until the first featured result.
	GoalFirstFeatured TrialGoal = "first_featured"
	// Given a fixed budget of draws, count top-tier results.
	GoalFixedBudget TrialGoal = "fixed_budget"
)

// maxTrialDraws stops a trial that can never reach its goal, e.g. a pool
// without hard pity whose featured rewards all sit in a zero-rate tier.
const maxTrialDraws = 1_000_000

var (
	ErrUnreachableGoal = errors.New("simulation goal not reached")
	ErrUnknownGoal     = errors.New("unknown simulation goal")
)

// SimParams describes one simulation run against a pool.
type SimParams struct {
	Goal    TrialGoal
	Trials  int
	Budget  int  // draws per trial for GoalFixedBudget
	Cushion int  // carry-over draws since last top tier when entering this pool
	Bulk    bool // roll in ten draws so the bulk guarantee takes part
}

// Stats summarizes simulation results.
type Stats struct {
	Mean   float64 `json:"mean"`
	Var    float64 `json:"var"`
	StdDev float64 `json:"stddev"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P99    float64 `json:"p99"`
	// TopRate is observed top-tier results per draw across all trials.
	TopRate float64 `json:"top_rate"`
	// Optional: raw samples if caller needs histograms/exports
	Samples []int `json:"-"`
}

// calcStats computes mean/variance/percentiles for integer samples.
func calcStats(xs []int) Stats {
	n := len(xs)
	if n == 0 {
		return Stats{}
	}
	var sum float64
	for _, v := range xs {
		sum += float64(v)
	}
	mean := sum / float64(n)

	// variance (population)
	var acc float64
	for _, v := range xs {
		d := float64(v) - mean
		acc += d * d
	}
	variance := acc / float64(n)

	cp := append([]int(nil), xs...)
	sort.Ints(cp)
	percentile := func(p float64) float64 {
		if n == 1 || p <= 0 {
			return float64(cp[0])
		}
		if p >= 1 {
			return float64(cp[n-1])
		}
		pos := p * float64(n-1)
		i := int(math.Floor(pos))
		f := pos - float64(i)
		if i+1 >= n {
			return float64(cp[i])
		}
		return float64(cp[i])*(1-f) + float64(cp[i+1])*f
	}

	return Stats{
		Mean:    mean,
		Var:     variance,
		StdDev:  math.Sqrt(variance),
		P50:     percentile(0.50),
		P90:     percentile(0.90),
		P99:     percentile(0.99),
		Samples: xs,
	}
}

type trialTally struct {
	draws, tops int
}

// simulateOne returns the primary metric for one trial depending on the goal.
func (r Roller) simulateOne(p *Pool, sp SimParams, tally *trialTally) (int, error) {
	l := Ledger{DrawsSinceTop: max(0, sp.Cushion)}
	if p.Pity.HardPity > 0 && l.DrawsSinceTop >= p.Pity.HardPity {
		l.DrawsSinceTop = p.Pity.HardPity - 1
	}
	l.TotalDraws = l.DrawsSinceTop
	l.DrawsSinceFeatured = l.DrawsSinceTop

	step := 1
	if sp.Bulk {
		step = BulkSize
	}
	count := 0
	for drawn := 0; drawn < maxTrialDraws; {
		b, err := r.Batch(p, l, step)
		if err != nil {
			return 0, err
		}
		l = b.Ledger
		for _, d := range b.Draws {
			drawn++
			tally.draws++
			if d.Rarity == p.Top() {
				tally.tops++
			}
			switch sp.Goal {
			case GoalFirstTop:
				if d.Rarity == p.Top() {
					return drawn, nil
				}
			case GoalFirstFeatured:
				if d.Featured {
					return drawn, nil
				}
			case GoalFixedBudget:
				if d.Rarity == p.Top() {
					count++
				}
				if drawn >= sp.Budget {
					return count, nil
				}
			}
		}
	}
	return 0, ErrUnreachableGoal
}

// RunMonteCarlo repeats trials and returns summary stats.
func (r Roller) RunMonteCarlo(p *Pool, sp SimParams) (Stats, error) {
	switch sp.Goal {
	case GoalFirstTop, GoalFirstFeatured, GoalFixedBudget:
	default:
		return Stats{}, ErrUnknownGoal
	}
	if sp.Trials <= 0 {
		return Stats{}, nil
	}
	if sp.Goal == GoalFixedBudget && sp.Budget <= 0 {
		return Stats{}, nil
	}
	// Recent is irrelevant to simulation; keep it tiny.
	r.RecentCap = 1
	var tally trialTally
	samples := make([]int, sp.Trials)
	for i := 0; i < sp.Trials; i++ {
		v, err := r.simulateOne(p, sp, &tally)
		if err != nil {
			return Stats{}, err
		}
		samples[i] = v
	}
	st := calcStats(samples)
	if tally.draws > 0 {
		st.TopRate = float64(tally.tops) / float64(tally.draws)
	}
	return st, nil
}
