package gacha

import (
	"fmt"
	"sort"
)

// Rarity is a reward tier. Larger values are rarer, e.g. 3, 4, 5 stars.
type Rarity int

func (r Rarity) String() string { return fmt.Sprintf("%d-star", int(r)) }

// Distribution maps each rarity tier to its probability for one draw.
type Distribution map[Rarity]float64

// Tiers returns the tiers of d ordered highest rarity first.
func (d Distribution) Tiers() []Rarity {
	out := make([]Rarity, 0, len(d))
	for r := range d {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

// Sum returns the total probability mass.
func (d Distribution) Sum() float64 {
	var s float64
	// sum in a fixed order so rounding is reproducible
	for _, r := range d.Tiers() {
		s += d[r]
	}
	return s
}

func (d Distribution) clone() Distribution {
	out := make(Distribution, len(d))
	for r, p := range d {
		out[r] = p
	}
	return out
}
