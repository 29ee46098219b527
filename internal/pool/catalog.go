package pool

import (
	"fmt"
	"sync/atomic"

	"github.com/xtding233/gacha-pull/internal/gacha"
)

// Catalog is an immutable snapshot of every pool and the reward metadata.
// It is safe for concurrent use.
type Catalog struct {
	pools   map[string]*gacha.Pool
	order   []string
	rewards map[string]RewardInfo
}

// NewCatalog checks every pool against the reward metadata and builds a
// snapshot. When rewards is empty no metadata checks are made. Errors wrapping
// gacha.ErrNoRewards are catalog inconsistencies.
func NewCatalog(pools []*gacha.Pool, rewards []RewardInfo) (*Catalog, error) {
	c := &Catalog{
		pools:   make(map[string]*gacha.Pool, len(pools)),
		rewards: make(map[string]RewardInfo, len(rewards)),
	}
	for _, r := range rewards {
		if _, dup := c.rewards[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate reward %q", gacha.ErrPoolConfig, r.ID)
		}
		c.rewards[r.ID] = r
	}
	for _, p := range pools {
		if _, dup := c.pools[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate pool %q", gacha.ErrPoolConfig, p.ID)
		}
		if len(c.rewards) > 0 {
			if err := c.checkRewards(p); err != nil {
				return nil, err
			}
		}
		c.pools[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c, nil
}

func (c *Catalog) checkRewards(p *gacha.Pool) error {
	for tier, ids := range p.Rewards {
		for _, id := range ids {
			info, ok := c.rewards[id]
			if !ok {
				return fmt.Errorf("%w: pool %s reward %q is not in the catalog", gacha.ErrNoRewards, p.ID, id)
			}
			if gacha.Rarity(info.Rarity) != tier {
				return fmt.Errorf("%w: pool %s lists %q under %s but the catalog says %s",
					gacha.ErrNoRewards, p.ID, id, tier, gacha.Rarity(info.Rarity))
			}
		}
	}
	return nil
}

// Pool returns the pool with the given id.
func (c *Catalog) Pool(id string) (*gacha.Pool, bool) {
	p, ok := c.pools[id]
	return p, ok
}

// Pools returns every pool in load order.
func (c *Catalog) Pools() []*gacha.Pool {
	out := make([]*gacha.Pool, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.pools[id])
	}
	return out
}

// RewardsOfRarity returns the rewards a pool can give at rarity.
func (c *Catalog) RewardsOfRarity(poolID string, rarity gacha.Rarity) ([]string, bool) {
	p, ok := c.pools[poolID]
	if !ok {
		return nil, false
	}
	return append([]string(nil), p.Rewards[rarity]...), true
}

// RewardMetadata returns display info for a reward.
func (c *Catalog) RewardMetadata(rewardID string) (RewardInfo, bool) {
	r, ok := c.rewards[rewardID]
	return r, ok
}

// Registry hands out the current catalog snapshot and lets a reload swap it
// without blocking readers. In-flight pulls keep the snapshot they started with.
type Registry struct {
	cur atomic.Pointer[Catalog]
}

// NewRegistry creates a registry serving c.
func NewRegistry(c *Catalog) *Registry {
	r := &Registry{}
	r.cur.Store(c)
	return r
}

// Current returns the active snapshot.
func (r *Registry) Current() *Catalog { return r.cur.Load() }

// Swap installs c as the active snapshot.
func (r *Registry) Swap(c *Catalog) { r.cur.Store(c) }

func (r *Registry) Pool(id string) (*gacha.Pool, bool) { return r.Current().Pool(id) }
func (r *Registry) Pools() []*gacha.Pool { return r.Current().Pools() }
func (r *Registry) RewardMetadata(id string) (RewardInfo, bool) {
	return r.Current().RewardMetadata(id)
}
func (r *Registry) RewardsOfRarity(poolID string, rarity gacha.Rarity) ([]string, bool) {
	return r.Current().RewardsOfRarity(poolID, rarity)
}
