package gacha

import "time"

// DefaultRecentCap bounds Ledger.Recent when no cap is configured.
const DefaultRecentCap = 50

// Record is one resolved draw as kept in a ledger's rolling log.
type Record struct {
	RewardID string    `json:"reward_id"`
	Rarity   Rarity    `json:"rarity"`
	Featured bool      `json:"featured"`
	At       time.Time `json:"at"`
}

// Ledger holds the pity state of one player in one pool.
//
// Both counters are draws since the last qualifying hit: they reset to 0 on a
// hit and otherwise grow by one per draw, so neither can exceed TotalDraws.
type Ledger struct {
	DrawsSinceTop      int       `json:"draws_since_top"`
	DrawsSinceFeatured int       `json:"draws_since_featured"`
	TotalDraws         int       `json:"total_draws"`
	Recent             []Record  `json:"recent"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Advance returns the ledger after rec, leaving l untouched.
// Recent keeps at most recentCap records, oldest evicted first.
func (l Ledger) Advance(rec Record, top Rarity, recentCap int) Ledger {
	if recentCap <= 0 {
		recentCap = DefaultRecentCap
	}
	next := Ledger{
		DrawsSinceTop:      l.DrawsSinceTop + 1,
		DrawsSinceFeatured: l.DrawsSinceFeatured + 1,
		TotalDraws:         l.TotalDraws + 1,
		UpdatedAt:          rec.At,
	}
	if rec.Rarity == top {
		next.DrawsSinceTop = 0
	}
	if rec.Featured {
		next.DrawsSinceFeatured = 0
	}

	keep := l.Recent
	if len(keep) >= recentCap {
		keep = keep[len(keep)-recentCap+1:]
	}
	next.Recent = make([]Record, 0, len(keep)+1)
	next.Recent = append(next.Recent, keep...)
	next.Recent = append(next.Recent, rec)
	return next
}

// Clone returns a deep copy of l.
func (l Ledger) Clone() Ledger {
	out := l
	if l.Recent != nil {
		out.Recent = append([]Record(nil), l.Recent...)
	}
	return out
}
