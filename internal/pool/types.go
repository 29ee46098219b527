// types.go
package pool

import "time"

// RawPool is one pool file as loaded from YAML. Pointer fields distinguish
// "not set" from zero so defaults.yaml can supply them.
type RawPool struct {
	Version        string           `yaml:"version"`
	ID             string           `yaml:"id"`
	Name           string           `yaml:"name"`
	Description    string           `yaml:"description,omitempty"`
	Enabled        *bool            `yaml:"enabled,omitempty"`
	Window         *WindowConfig    `yaml:"window,omitempty"`
	Rates          map[int]float64  `yaml:"rates,omitempty"`
	Rewards        map[int][]string `yaml:"rewards,omitempty"`
	Featured       []string         `yaml:"featured,omitempty"`
	FeaturedWeight *float64         `yaml:"featured_weight,omitempty"`
	Pity           *PityCfg         `yaml:"pity,omitempty"`
	Cost           *CostConfig      `yaml:"cost,omitempty"`
	Notes          string           `yaml:"notes,omitempty"`
}

type WindowConfig struct {
	Start *time.Time `yaml:"start,omitempty"`
	End   *time.Time `yaml:"end,omitempty"`
}

type PityCfg struct {
	Hard              *int     `yaml:"hard,omitempty"`
	Soft              *SoftCfg `yaml:"soft,omitempty"`
	FeaturedGuarantee *bool    `yaml:"featured_guarantee,omitempty"`
	FeaturedThreshold *int     `yaml:"featured_threshold,omitempty"`
	BulkMinRarity     *int     `yaml:"bulk_min_rarity,omitempty"`
}

type SoftCfg struct {
	Mode      string   `yaml:"mode"` // "per_draw_increment" | "target_ramp" | "none"
	StartAt   *int     `yaml:"start_at,omitempty"`
	StartPct  *float64 `yaml:"start_pct,omitempty"`
	Increment *float64 `yaml:"increment,omitempty"` // for per_draw_increment
	Target    *float64 `yaml:"target,omitempty"`    // for target_ramp
	Easing    string   `yaml:"easing,omitempty"`
}

type CostConfig struct {
	Currency    string `yaml:"currency,omitempty"`
	Single      *int64 `yaml:"single,omitempty"`
	Ten         *int64 `yaml:"ten,omitempty"`
	TenCurrency string `yaml:"ten_currency,omitempty"` // defaults to currency
}

// RewardInfo is display metadata for one reward identity.
type RewardInfo struct {
	ID     string `yaml:"id" json:"id"`
	Name   string `yaml:"name" json:"name"`
	Rarity int    `yaml:"rarity" json:"rarity"`
	Kind   string `yaml:"kind,omitempty" json:"kind,omitempty"` // e.g. "character", "weapon"
}

// rewardsFile is the shape of rewards.yaml.
type rewardsFile struct {
	Rewards []RewardInfo `yaml:"rewards"`
}
