package pool

import (
	"fmt"
	"strings"
)

// ValidateRaw checks semantic constraints of a merged RawPool. Checks that
// need the normalized pool (rates sum, tiers without rewards) run in
// gacha.Pool.Validate.
func ValidateRaw(cfg RawPool) error {
	var errs []string

	if cfg.ID == "" {
		errs = append(errs, "id is required")
	}
	if len(cfg.Rates) == 0 {
		errs = append(errs, "rates are required")
	}
	for r, p := range cfg.Rates {
		if r <= 0 {
			errs = append(errs, fmt.Sprintf("rates[%d]: rarity must be >= 1", r))
		}
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Sprintf("rates[%d] must be in [0,1]", r))
		}
	}
	if cfg.FeaturedWeight != nil && *cfg.FeaturedWeight < 1 {
		errs = append(errs, "featured_weight must be >= 1")
	}
	if cfg.Window != nil && cfg.Window.Start != nil && cfg.Window.End != nil &&
		!cfg.Window.End.After(*cfg.Window.Start) {
		errs = append(errs, "window.end must be after window.start")
	}

	if pc := cfg.Pity; pc != nil {
		if pc.Hard != nil && *pc.Hard < 0 {
			errs = append(errs, "pity.hard must be >= 0 (0 disables hard pity)")
		}
		if pc.FeaturedThreshold != nil && *pc.FeaturedThreshold < 0 {
			errs = append(errs, "pity.featured_threshold must be >= 0")
		}
		if pc.FeaturedGuarantee != nil && *pc.FeaturedGuarantee && len(cfg.Featured) == 0 {
			errs = append(errs, "pity.featured_guarantee needs featured rewards")
		}
		if pc.BulkMinRarity != nil && *pc.BulkMinRarity < 0 {
			errs = append(errs, "pity.bulk_min_rarity must be >= 0 (0 disables the bulk guarantee)")
		}
		if pc.Soft != nil {
			errs = append(errs, validateSoft(pc)...)
		}
	}

	if c := cfg.Cost; c != nil {
		if c.Currency == "" {
			errs = append(errs, "cost.currency is required")
		}
		if c.Single == nil {
			errs = append(errs, "cost.single is required")
		} else if *c.Single < 0 {
			errs = append(errs, "cost.single must be >= 0")
		}
		if c.Ten != nil && *c.Ten < 0 {
			errs = append(errs, "cost.ten must be >= 0")
		}
	} else {
		errs = append(errs, "cost is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSoft(pc *PityCfg) []string {
	var errs []string
	soft := pc.Soft
	switch soft.Mode {
	case "target_ramp":
		// need start_at or start_pct; need target
		if soft.Target == nil {
			errs = append(errs, "pity.soft.target is required for mode=target_ramp")
		} else if *soft.Target <= 0 || *soft.Target >= 1 {
			errs = append(errs, "pity.soft.target must be in (0,1)")
		}
		if soft.StartAt == nil && soft.StartPct == nil {
			errs = append(errs, "pity.soft.start_at or start_pct is required for mode=target_ramp")
		}
		if pc.Hard == nil || *pc.Hard <= 1 {
			errs = append(errs, "pity.soft mode=target_ramp needs pity.hard > 1")
		}
		switch soft.Easing {
		case "", "linear", "easeOutQuad", "easeInOutCubic":
		default:
			errs = append(errs, "pity.soft.easing must be one of: linear, easeOutQuad, easeInOutCubic")
		}
	case "per_draw_increment":
		// need start_at; need increment > 0
		if soft.StartAt == nil && soft.StartPct == nil {
			errs = append(errs, "pity.soft.start_at is required for mode=per_draw_increment")
		}
		if soft.Increment == nil {
			errs = append(errs, "pity.soft.increment is required for mode=per_draw_increment")
		} else if *soft.Increment <= 0 {
			errs = append(errs, "pity.soft.increment must be > 0 for mode=per_draw_increment")
		}
	case "", "none":
		// treat as no soft pity
	default:
		errs = append(errs, "pity.soft.mode must be one of: target_ramp, per_draw_increment, none")
	}

	// start_at/start_pct bounds if present
	if pc.Hard != nil && *pc.Hard > 0 && soft.StartAt != nil {
		if *soft.StartAt < 0 || *soft.StartAt > *pc.Hard {
			errs = append(errs, "pity.soft.start_at must satisfy 0 <= start_at <= hard")
		}
	}
	if soft.StartPct != nil {
		if *soft.StartPct < 0 || *soft.StartPct > 1 {
			errs = append(errs, "pity.soft.start_pct must be in [0,1]")
		}
	}
	return errs
}
