package pool

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/xtding233/gacha-pull/internal/gacha"
	"github.com/xtding233/gacha-pull/internal/token"
)

// Paths helper for defaults/pool/reward files.
type Paths struct {
	BaseDir string // base directory, e.g., /opt/app/config
}

func (p Paths) DefaultPath() string {
	return filepath.Join(p.BaseDir, "defaults.yaml")
}
func (p Paths) RewardsPath() string {
	return filepath.Join(p.BaseDir, "rewards.yaml")
}
func (p Paths) PoolDir() string {
	return filepath.Join(p.BaseDir, "pools")
}
func (p Paths) PoolPath(pool string) string {
	return filepath.Join(p.PoolDir(), pool+".yaml")
}

// Loader reads YAML configs and merges defaults → pool.
type Loader struct {
	paths Paths

	mu    sync.RWMutex
	cache map[string]RawPool // key: pool id or "$default"
}

// NewLoader creates a config loader with the given base directory.
func NewLoader(baseDir string) *Loader {
	return &Loader{
		paths: Paths{BaseDir: baseDir},
		cache: make(map[string]RawPool),
	}
}

// Paths returns the file layout the loader reads.
func (l *Loader) Paths() Paths { return l.paths }

// LoadMerged loads and merges defaults → pool.
// It returns the merged RawPool (without normalization).
func (l *Loader) LoadMerged(pool string) (RawPool, error) {
	l.mu.RLock()
	if cfg, ok := l.cache[pool]; ok {
		l.mu.RUnlock()
		return cfg, nil
	}
	l.mu.RUnlock()

	defCfg, err := readYAML[RawPool](l.paths.DefaultPath())
	if err != nil {
		return RawPool{}, fmt.Errorf("read defaults: %w", err)
	}
	poolPath := l.paths.PoolPath(pool)
	if _, err := os.Stat(poolPath); err != nil {
		return RawPool{}, fmt.Errorf("pool %s: %w", pool, err)
	}
	poolCfg, err := readYAML[RawPool](poolPath)
	if err != nil {
		return RawPool{}, fmt.Errorf("read pool %s: %w", pool, err)
	}
	if poolCfg.ID == "" {
		poolCfg.ID = pool
	}

	merged := mergeRaw(defCfg, poolCfg)

	l.mu.Lock()
	l.cache[pool] = merged
	l.cache["$default"] = defCfg
	l.mu.Unlock()

	return merged, nil
}

// Invalidate clears loader's cache. Call after hot-reload detects changes.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]RawPool)
}

// PoolIDs lists pool files in the pools directory, sorted.
func (l *Loader) PoolIDs() ([]string, error) {
	entries, err := os.ReadDir(l.paths.PoolDir())
	if err != nil {
		return nil, fmt.Errorf("read pool dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadCatalog loads, validates and converts every pool plus the reward
// metadata into an immutable Catalog.
func (l *Loader) LoadCatalog() (*Catalog, error) {
	ids, err := l.PoolIDs()
	if err != nil {
		return nil, err
	}
	rf, err := readYAML[rewardsFile](l.paths.RewardsPath())
	if err != nil {
		return nil, fmt.Errorf("read rewards: %w", err)
	}

	pools := make([]*gacha.Pool, 0, len(ids))
	for _, id := range ids {
		raw, err := l.LoadMerged(id)
		if err != nil {
			return nil, err
		}
		if err := ValidateRaw(raw); err != nil {
			return nil, fmt.Errorf("pool %s: %w", id, err)
		}
		p, err := ToPool(raw)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return NewCatalog(pools, rf.Rewards)
}

// readYAML loads a YAML file into T. Missing files return zero cfg, no error.
func readYAML[T any](path string) (T, error) {
	var cfg T
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// mergeRaw performs a deep merge: 'b' overrides 'a' where non-zero/non-nil.
// For maps and slices (rates, rewards, featured), 'b' replaces 'a' if provided.
func mergeRaw(a, b RawPool) RawPool {
	out := a

	if b.Version != "" {
		out.Version = b.Version
	}
	if b.ID != "" {
		out.ID = b.ID
	}
	if b.Name != "" {
		out.Name = b.Name
	}
	if b.Description != "" {
		out.Description = b.Description
	}
	if b.Notes != "" {
		out.Notes = b.Notes
	}
	if b.Enabled != nil {
		out.Enabled = b.Enabled
	}
	if b.Window != nil {
		w := *b.Window
		out.Window = &w
	}
	if len(b.Rates) > 0 {
		out.Rates = b.Rates
	}
	if len(b.Rewards) > 0 {
		out.Rewards = b.Rewards
	}
	if len(b.Featured) > 0 {
		out.Featured = append([]string(nil), b.Featured...)
	}
	if b.FeaturedWeight != nil {
		out.FeaturedWeight = b.FeaturedWeight
	}

	// pity
	switch {
	case out.Pity == nil && b.Pity != nil:
		c := *b.Pity
		out.Pity = &c
	case out.Pity != nil && b.Pity != nil:
		c := *out.Pity
		if b.Pity.Hard != nil {
			c.Hard = b.Pity.Hard
		}
		if b.Pity.FeaturedGuarantee != nil {
			c.FeaturedGuarantee = b.Pity.FeaturedGuarantee
		}
		if b.Pity.FeaturedThreshold != nil {
			c.FeaturedThreshold = b.Pity.FeaturedThreshold
		}
		if b.Pity.BulkMinRarity != nil {
			c.BulkMinRarity = b.Pity.BulkMinRarity
		}
		c.Soft = mergeSoft(c.Soft, b.Pity.Soft)
		out.Pity = &c
	}

	// cost
	switch {
	case out.Cost == nil && b.Cost != nil:
		c := *b.Cost
		out.Cost = &c
	case out.Cost != nil && b.Cost != nil:
		c := *out.Cost
		if b.Cost.Currency != "" {
			c.Currency = b.Cost.Currency
		}
		if b.Cost.TenCurrency != "" {
			c.TenCurrency = b.Cost.TenCurrency
		}
		if b.Cost.Single != nil {
			c.Single = b.Cost.Single
		}
		if b.Cost.Ten != nil {
			c.Ten = b.Cost.Ten
		}
		out.Cost = &c
	}

	return out
}

func mergeSoft(a, b *SoftCfg) *SoftCfg {
	switch {
	case b == nil:
		return a
	case a == nil:
		c := *b
		return &c
	}
	c := *a
	if b.Mode != "" {
		c.Mode = b.Mode
	}
	if b.StartAt != nil {
		c.StartAt = b.StartAt
	}
	if b.StartPct != nil {
		c.StartPct = b.StartPct
	}
	if b.Increment != nil {
		c.Increment = b.Increment
	}
	if b.Target != nil {
		c.Target = b.Target
	}
	if b.Easing != "" {
		c.Easing = b.Easing
	}
	return &c
}

// ToPool normalizes a validated RawPool into an initialized gacha.Pool.
func ToPool(raw RawPool) (*gacha.Pool, error) {
	p := &gacha.Pool{
		ID:          raw.ID,
		Name:        raw.Name,
		Description: raw.Description,
		Enabled:     raw.Enabled == nil || *raw.Enabled,
		BaseRates:   make(gacha.Distribution, len(raw.Rates)),
		Rewards:     make(map[gacha.Rarity][]string, len(raw.Rewards)),
		Featured:    append([]string(nil), raw.Featured...),
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	if raw.Window != nil {
		if raw.Window.Start != nil {
			p.Start = raw.Window.Start.UTC()
		}
		if raw.Window.End != nil {
			p.End = raw.Window.End.UTC()
		}
	}
	for r, prob := range raw.Rates {
		p.BaseRates[gacha.Rarity(r)] = prob
	}
	for r, ids := range raw.Rewards {
		p.Rewards[gacha.Rarity(r)] = append([]string(nil), ids...)
	}
	if raw.FeaturedWeight != nil {
		p.FeaturedWeight = *raw.FeaturedWeight
	}
	if pc := raw.Pity; pc != nil {
		p.Pity = toPity(pc)
	}
	if c := raw.Cost; c != nil {
		single := token.Cost{Currency: c.Currency}
		if c.Single != nil {
			single.Amount = *c.Single
		}
		ten := token.Cost{Currency: c.Currency}
		if c.TenCurrency != "" {
			ten.Currency = c.TenCurrency
		}
		if c.Ten != nil {
			ten.Amount = *c.Ten
		}
		p.Price = token.Token{Single: single, Ten: ten}
	}
	if err := p.Init(); err != nil {
		return nil, err
	}
	return p, nil
}

func toPity(pc *PityCfg) gacha.PityConfig {
	var out gacha.PityConfig
	if pc.Hard != nil {
		out.HardPity = *pc.Hard
	}
	if pc.FeaturedGuarantee != nil {
		out.FeaturedGuarantee = *pc.FeaturedGuarantee
	}
	if pc.FeaturedThreshold != nil {
		out.FeaturedThreshold = *pc.FeaturedThreshold
	}
	if pc.BulkMinRarity != nil {
		out.BulkMinRarity = gacha.Rarity(*pc.BulkMinRarity)
	}
	soft := pc.Soft
	if soft == nil || soft.Mode == "" || soft.Mode == "none" {
		return out
	}
	if soft.StartAt != nil {
		out.SoftStart = *soft.StartAt
	} else if soft.StartPct != nil {
		out.SoftStart = int(math.Ceil(*soft.StartPct * float64(out.HardPity)))
		if out.HardPity > 0 && out.SoftStart >= out.HardPity {
			out.SoftStart = out.HardPity - 1
		}
	}
	out.SoftMode = gacha.SoftMode(soft.Mode)
	out.Easing = gacha.Easing(soft.Easing)
	if soft.Increment != nil {
		out.SoftRate = *soft.Increment
	}
	if soft.Target != nil {
		out.SoftTarget = *soft.Target
	}
	return out
}

