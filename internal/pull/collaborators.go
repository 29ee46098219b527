package pull

import (
	"context"

	"github.com/xtding233/gacha-pull/internal/gacha"
	"github.com/xtding233/gacha-pull/internal/pool"
)

// Catalog resolves pools and reward metadata. *pool.Catalog and
// *pool.Registry satisfy it.
type Catalog interface {
	Pool(id string) (*gacha.Pool, bool)
	Pools() []*gacha.Pool
	RewardsOfRarity(poolID string, rarity gacha.Rarity) ([]string, bool)
	RewardMetadata(rewardID string) (pool.RewardInfo, bool)
}

// Wallet holds player currency. Debit and Refund take a reason that is unique
// per batch; implementations should treat a repeated reason as a no-op.
// Debit must return an error matching ErrInsufficientFunds when the balance
// is too low.
type Wallet interface {
	HasBalance(ctx context.Context, playerID, currency string, amount int64) (bool, error)
	Debit(ctx context.Context, playerID, currency string, amount int64, reason string) error
	Refund(ctx context.Context, playerID, currency string, amount int64, reason string) error
}

// Grant is what the inventory reports back for one granted reward.
type Grant struct {
	FirstCopy  bool
	Conversion []string // items the duplicate was converted into, if any
}

// Inventory receives granted rewards. Revoke undoes a Grant with the same
// reason.
type Inventory interface {
	Grant(ctx context.Context, playerID, rewardID, reason string) (Grant, error)
	Revoke(ctx context.Context, playerID, rewardID, reason string) error
}
