// Package pull runs player pulls against the pool catalog: preconditions,
// draws, bulk guarantee, payment, grants and ledger commit as one unit.
package pull

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xtding233/gacha-pull/internal/gacha"
	"github.com/xtding233/gacha-pull/internal/pool"
	"github.com/xtding233/gacha-pull/internal/storage"
	"github.com/xtding233/gacha-pull/internal/token"
)

const tracerName = "github.com/xtding233/gacha-pull/internal/pull"

// Request asks for Count draws from PoolID on behalf of PlayerID.
type Request struct {
	PlayerID string
	PoolID   string
	Count    int
}

// Result is one resolved draw as returned to the caller.
type Result struct {
	RewardID   string       `json:"reward_id"`
	Name       string       `json:"name,omitempty"`
	Rarity     gacha.Rarity `json:"rarity"`
	Featured   bool         `json:"featured"`
	FirstCopy  bool         `json:"first_copy"`
	Conversion []string     `json:"conversion,omitempty"`
	Guaranteed bool         `json:"guaranteed,omitempty"`
}

// Batch is a committed pull.
type Batch struct {
	ID       string       `json:"id"`
	PlayerID string       `json:"player_id"`
	PoolID   string       `json:"pool_id"`
	Results  []Result     `json:"results"`
	Ledger   gacha.Ledger `json:"ledger"`
	Cost     token.Cost   `json:"cost"`
	At       time.Time    `json:"at"`
}

// Progress is a read-only view of a player's pity in one pool.
type Progress struct {
	PlayerID             string       `json:"player_id"`
	PoolID               string       `json:"pool_id"`
	TopRarity            gacha.Rarity `json:"top_rarity"`
	Current              int          `json:"current"`
	HardPityMax          int          `json:"hard_pity_max"`
	EffectiveTopRate     float64      `json:"effective_top_rate"`
	DrawsSinceFeatured   int          `json:"draws_since_featured"`
	FeaturedGuaranteeDue bool         `json:"featured_guarantee_due"`
	TotalDraws           int          `json:"total_draws"`
}

// Options tune a Service. Zero values pick production defaults.
type Options struct {
	RNG       gacha.RandomSource
	Now       func() time.Time
	RecentCap int
	Logger    *slog.Logger
	Tracer    trace.Tracer
	NewID     func() string
}

// Service is the pull orchestrator. It is safe for concurrent use.
type Service struct {
	catalog Catalog
	store   storage.LedgerStore
	wallet  Wallet
	inv     Inventory

	locks  storage.KeyedMutex
	roller gacha.Roller
	now    func() time.Time
	logger *slog.Logger
	tracer trace.Tracer
	newID  func() string
}

// NewService wires the orchestrator to its collaborators.
func NewService(catalog Catalog, store storage.LedgerStore, wallet Wallet, inv Inventory, opts Options) *Service {
	s := &Service{
		catalog: catalog,
		store:   store,
		wallet:  wallet,
		inv:     inv,
		now:     opts.Now,
		logger:  opts.Logger,
		tracer:  opts.Tracer,
		newID:   opts.NewID,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.NewString() }
	}
	rng := opts.RNG
	if rng == nil {
		rng = gacha.DefaultRNG()
	}
	s.roller = gacha.Roller{RNG: gacha.Synchronized(rng), RecentCap: opts.RecentCap, Now: s.now}
	return s
}

// Pull resolves req and commits it. Either every draw is granted, paid for and
// recorded in the ledger, or none is: failures after payment are compensated
// before Pull returns. Errors are *Error.
func (s *Service) Pull(ctx context.Context, req Request) (batch Batch, err error) {
	req.PlayerID = strings.TrimSpace(req.PlayerID)
	req.PoolID = strings.TrimSpace(req.PoolID)
	ctx, span := s.tracer.Start(ctx, "pull.Pull", trace.WithAttributes(
		attribute.String("player.id", req.PlayerID),
		attribute.String("pool.id", req.PoolID),
		attribute.Int("pull.count", req.Count),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, string(CodeOf(err)))
		}
		span.End()
	}()

	cat := s.snapshot()
	p, cost, err := s.precheck(ctx, cat, req)
	if err != nil {
		return Batch{}, err
	}

	key := storage.Key{PlayerID: req.PlayerID, PoolID: req.PoolID}
	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return Batch{}, newError(CodePersistenceFailure, "waiting for ledger", err)
	}
	defer unlock()

	t := &pullTx{
		ctx:     ctx,
		s:       s,
		cat:     cat,
		pool:    p,
		req:     req,
		cost:    cost,
		batchID: s.newID(),
	}
	ledger, err := s.store.Update(ctx, key, t.run)
	if err != nil {
		if t.debited {
			t.compensate(ctx)
		}
		if t.err != nil {
			return Batch{}, t.err
		}
		return Batch{}, newError(CodePersistenceFailure, "committing ledger", err, "pool", req.PoolID)
	}

	batch = Batch{
		ID:       t.batchID,
		PlayerID: req.PlayerID,
		PoolID:   req.PoolID,
		Results:  t.results,
		Ledger:   ledger,
		Cost:     cost,
		At:       ledger.UpdatedAt,
	}
	s.logger.Info("pull committed",
		"batch", batch.ID,
		"player", req.PlayerID,
		"pool", req.PoolID,
		"count", req.Count,
		"currency", cost.Currency,
		"amount", cost.Amount,
		"draws_since_top", ledger.DrawsSinceTop,
		"best", bestRarity(batch.Results))
	return batch, nil
}

// precheck runs every check that must pass before the ledger or the wallet
// is touched.
func (s *Service) precheck(ctx context.Context, cat Catalog, req Request) (*gacha.Pool, token.Cost, error) {
	if req.PlayerID == "" {
		return nil, token.Cost{}, newError(CodeInvalidRequest, "player id is required", nil)
	}
	if req.PoolID == "" {
		return nil, token.Cost{}, newError(CodeInvalidRequest, "pool id is required", nil)
	}
	p, ok := cat.Pool(req.PoolID)
	if !ok {
		return nil, token.Cost{}, newError(CodePoolNotFound, fmt.Sprintf("pool %q not found", req.PoolID), nil, "pool", req.PoolID)
	}
	if !p.ActiveAt(s.now()) {
		return nil, token.Cost{}, newError(CodePoolInactive, fmt.Sprintf("pool %q is not active", req.PoolID), nil, "pool", req.PoolID)
	}
	cost, err := p.Price.TokensForDraws(req.Count)
	if err != nil {
		return nil, token.Cost{}, newError(CodeUnsupportedDrawCount,
			fmt.Sprintf("draw count %d is not supported", req.Count), err, "count", fmt.Sprint(req.Count))
	}
	ok, err = s.wallet.HasBalance(ctx, req.PlayerID, cost.Currency, cost.Amount)
	if err != nil {
		return nil, token.Cost{}, newError(CodeWalletFailure, "checking balance", err)
	}
	if !ok {
		return nil, token.Cost{}, newError(CodeInsufficientFunds,
			fmt.Sprintf("need %d %s", cost.Amount, cost.Currency), nil,
			"currency", cost.Currency, "amount", fmt.Sprint(cost.Amount))
	}
	return p, cost, nil
}

// pullTx is the state of one Pull inside the ledger transaction. It remembers
// which side effects happened so they can be undone if the commit fails.
type pullTx struct {
	ctx     context.Context
	s       *Service
	cat     Catalog
	pool    *gacha.Pool
	req     Request
	cost    token.Cost
	batchID string

	debited bool
	granted []grantRef
	results []Result
	next    gacha.Ledger
	err     error
}

type grantRef struct {
	rewardID string
	reason   string
}

func (t *pullTx) run(cur gacha.Ledger, _ bool) (gacha.Ledger, error) {
	t.err = t.apply(cur)
	if t.err != nil {
		return gacha.Ledger{}, t.err
	}
	return t.next, nil
}

func (t *pullTx) apply(cur gacha.Ledger) error {
	ctx := t.ctx
	s := t.s

	roller := s.roller
	roller.Rewards = t.cat.RewardsOfRarity
	rolled, err := roller.Batch(t.pool, cur, t.req.Count)
	if err != nil {
		s.logger.Error("catalog inconsistency during pull",
			"alert", true, "pool", t.pool.ID, "player", t.req.PlayerID, "error", err)
		return newError(CodeCatalogInconsistency, "pool cannot satisfy draw", err, "pool", t.pool.ID)
	}

	if err := s.wallet.Debit(ctx, t.req.PlayerID, t.cost.Currency, t.cost.Amount, t.batchID); err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			return newError(CodeInsufficientFunds, "debit refused", err,
				"currency", t.cost.Currency, "amount", fmt.Sprint(t.cost.Amount))
		}
		return newError(CodeWalletFailure, "debit failed", err)
	}
	t.debited = true

	t.results = make([]Result, 0, len(rolled.Draws))
	for i, d := range rolled.Draws {
		reason := fmt.Sprintf("%s#%d", t.batchID, i)
		g, err := s.inv.Grant(ctx, t.req.PlayerID, d.RewardID, reason)
		if err != nil {
			return newError(CodeInventoryFailure, fmt.Sprintf("granting %s", d.RewardID), err, "reward", d.RewardID)
		}
		t.granted = append(t.granted, grantRef{rewardID: d.RewardID, reason: reason})

		res := Result{
			RewardID:   d.RewardID,
			Rarity:     d.Rarity,
			Featured:   d.Featured,
			FirstCopy:  g.FirstCopy,
			Conversion: g.Conversion,
			Guaranteed: d.Guaranteed,
		}
		if info, ok := t.cat.RewardMetadata(d.RewardID); ok {
			res.Name = info.Name
		}
		t.results = append(t.results, res)
	}
	t.next = rolled.Ledger
	return nil
}

// compensate undoes grants in reverse order, then refunds the debit. It runs
// on a context that outlives the caller's cancellation.
func (t *pullTx) compensate(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	s := t.s
	for i := len(t.granted) - 1; i >= 0; i-- {
		g := t.granted[i]
		if err := s.inv.Revoke(ctx, t.req.PlayerID, g.rewardID, g.reason); err != nil {
			s.logger.Error("revoke failed during compensation",
				"alert", true, "batch", t.batchID, "player", t.req.PlayerID, "reward", g.rewardID, "error", err)
		}
	}
	if err := s.wallet.Refund(ctx, t.req.PlayerID, t.cost.Currency, t.cost.Amount, t.batchID); err != nil {
		s.logger.Error("refund failed during compensation",
			"alert", true, "batch", t.batchID, "player", t.req.PlayerID,
			"currency", t.cost.Currency, "amount", t.cost.Amount, "error", err)
		return
	}
	s.logger.Warn("pull rolled back", "batch", t.batchID, "player", t.req.PlayerID, "pool", t.req.PoolID,
		"grants_revoked", len(t.granted))
}

// PityProgress reports the player's pity state in a pool without changing it.
func (s *Service) PityProgress(ctx context.Context, playerID, poolID string) (Progress, error) {
	playerID = strings.TrimSpace(playerID)
	poolID = strings.TrimSpace(poolID)
	if playerID == "" {
		return Progress{}, newError(CodeInvalidRequest, "player id is required", nil)
	}
	p, ok := s.catalog.Pool(poolID)
	if !ok {
		return Progress{}, newError(CodePoolNotFound, fmt.Sprintf("pool %q not found", poolID), nil, "pool", poolID)
	}
	l, _, err := s.store.Load(ctx, storage.Key{PlayerID: playerID, PoolID: poolID})
	if err != nil {
		return Progress{}, newError(CodePersistenceFailure, "loading ledger", err)
	}
	dist := gacha.EffectiveRates(p, l)
	return Progress{
		PlayerID:             playerID,
		PoolID:               poolID,
		TopRarity:            p.Top(),
		Current:              l.DrawsSinceTop,
		HardPityMax:          p.Pity.HardPity,
		EffectiveTopRate:     dist[p.Top()],
		DrawsSinceFeatured:   l.DrawsSinceFeatured,
		FeaturedGuaranteeDue: gacha.FeaturedGuaranteeDue(p, l),
		TotalDraws:           l.TotalDraws,
	}, nil
}

// ListActivePools returns the pools that are enabled and inside their window at now.
func (s *Service) ListActivePools(now time.Time) []*gacha.Pool {
	var out []*gacha.Pool
	for _, p := range s.catalog.Pools() {
		if p.ActiveAt(now) {
			out = append(out, p)
		}
	}
	return out
}

// Pool returns a pool from the catalog.
func (s *Service) Pool(id string) (*gacha.Pool, bool) { return s.catalog.Pool(id) }

// Pools returns every pool in the catalog, active or not.
func (s *Service) Pools() []*gacha.Pool { return s.catalog.Pools() }

// snapshot pins the catalog for one pull so a concurrent reload cannot mix
// pool and reward data from two versions.
func (s *Service) snapshot() Catalog {
	if r, ok := s.catalog.(*pool.Registry); ok {
		return r.Current()
	}
	return s.catalog
}

func bestRarity(rs []Result) gacha.Rarity {
	var best gacha.Rarity
	for _, r := range rs {
		if r.Rarity > best {
			best = r.Rarity
		}
	}
	return best
}
