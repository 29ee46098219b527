package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xtding233/gacha-pull/internal/gacha"
	"github.com/xtding233/gacha-pull/internal/pull"
	"github.com/xtding233/gacha-pull/internal/token"
)

// simulation limits for the public endpoint
const (
	maxSimTrials   = 100_000
	defaultTrials  = 10_000
	maxSimBudget   = 10_000
	maxRequestBody = 1 << 16
)

type errorResp struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type pullReq struct {
	PlayerID string `json:"player_id"`
	PoolID   string `json:"pool_id"`
	Count    int    `json:"count"`
}

type poolResp struct {
	ID             string                   `json:"id"`
	Name           string                   `json:"name"`
	Description    string                   `json:"description,omitempty"`
	Active         bool                     `json:"active"`
	Start          *time.Time               `json:"start,omitempty"`
	End            *time.Time               `json:"end,omitempty"`
	TopRarity      gacha.Rarity             `json:"top_rarity"`
	Rates          map[gacha.Rarity]float64 `json:"rates"`
	Featured       []string                 `json:"featured,omitempty"`
	FeaturedWeight float64                  `json:"featured_weight,omitempty"`
	HardPity       int                      `json:"hard_pity"`
	SoftPityStart  int                      `json:"soft_pity_start"`
	BulkMinRarity  gacha.Rarity             `json:"bulk_min_rarity,omitempty"`
	SingleCost     token.Cost               `json:"single_cost"`
	TenCost        token.Cost               `json:"ten_cost"`
}

type simResp struct {
	PoolID string          `json:"pool_id"`
	Goal   gacha.TrialGoal `json:"goal"`
	Trials int             `json:"trials"`
	gacha.Stats
}

type api struct {
	svc    *pull.Service
	now    func() time.Time
	logger *slog.Logger
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/pull", a.handlePull)
	mux.HandleFunc("GET /v1/pity", a.handlePity)
	mux.HandleFunc("GET /v1/pools", a.handlePools)
	mux.HandleFunc("GET /v1/simulate", a.handleSimulate)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

func parseInt(r *http.Request, key string) (int, bool, string) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, false, ""
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, "invalid " + key
	}
	return v, true, ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResp{Code: string(pull.CodeInvalidRequest), Message: msg})
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	var pe *pull.Error
	if !errors.As(err, &pe) {
		a.logger.Error("unhandled error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp{Code: "INTERNAL", Message: "internal error"})
		return
	}
	status := pe.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "code", pe.Code, "error", err)
	}
	writeJSON(w, status, errorResp{Code: string(pe.Code), Message: pe.Message})
}

// POST /v1/pull {"player_id","pool_id","count"}
func (a *api) handlePull(w http.ResponseWriter, r *http.Request) {
	var req pullReq
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, "invalid body: "+err.Error())
		return
	}
	batch, err := a.svc.Pull(r.Context(), pull.Request{
		PlayerID: strings.TrimSpace(req.PlayerID),
		PoolID:   strings.TrimSpace(req.PoolID),
		Count:    req.Count,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// GET /v1/pity?player=..&pool=..
func (a *api) handlePity(w http.ResponseWriter, r *http.Request) {
	player := strings.TrimSpace(r.URL.Query().Get("player"))
	poolID := strings.TrimSpace(r.URL.Query().Get("pool"))
	if player == "" || poolID == "" {
		writeBadRequest(w, "missing param player or pool")
		return
	}
	p, err := a.svc.PityProgress(r.Context(), player, poolID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GET /v1/pools[?all=true]
func (a *api) handlePools(w http.ResponseWriter, r *http.Request) {
	now := a.now()
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	pools := a.svc.ListActivePools(now)
	if all {
		pools = a.svc.Pools()
	}
	out := make([]poolResp, 0, len(pools))
	for _, p := range pools {
		out = append(out, describePool(p, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func describePool(p *gacha.Pool, now time.Time) poolResp {
	ten, _ := p.Price.TokensForDraws(gacha.BulkSize)
	out := poolResp{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Active:         p.ActiveAt(now),
		TopRarity:      p.Top(),
		Rates:          p.BaseRates,
		Featured:       p.Featured,
		FeaturedWeight: p.FeaturedWeight,
		HardPity:       p.Pity.HardPity,
		SoftPityStart:  p.Pity.SoftStart,
		BulkMinRarity:  p.Pity.BulkMinRarity,
		SingleCost:     p.Price.Single,
		TenCost:        ten,
	}
	if !p.Start.IsZero() {
		s := p.Start
		out.Start = &s
	}
	if !p.End.IsZero() {
		e := p.End
		out.End = &e
	}
	return out
}

// GET /v1/simulate?pool=..&goal=first_top|first_featured|fixed_budget
//
//	[&trials=..][&budget=..][&cushion=..][&bulk=true][&seed=..]
func (a *api) handleSimulate(w http.ResponseWriter, r *http.Request) {
	poolID := r.URL.Query().Get("pool")
	if poolID == "" {
		writeBadRequest(w, "missing param pool")
		return
	}
	p, ok := a.svc.Pool(poolID)
	if !ok {
		a.writeError(w, pull.ErrPoolNotFound)
		return
	}

	sp := gacha.SimParams{Goal: gacha.GoalFirstTop, Trials: defaultTrials}
	if g := r.URL.Query().Get("goal"); g != "" {
		sp.Goal = gacha.TrialGoal(g)
	}
	trials, ok, msg := parseInt(r, "trials")
	if msg != "" {
		writeBadRequest(w, msg)
		return
	}
	if ok {
		if trials <= 0 || trials > maxSimTrials {
			writeBadRequest(w, "trials must be in 1.."+strconv.Itoa(maxSimTrials))
			return
		}
		sp.Trials = trials
	}
	budget, _, msg := parseInt(r, "budget")
	if msg != "" {
		writeBadRequest(w, msg)
		return
	}
	if budget < 0 || budget > maxSimBudget {
		writeBadRequest(w, "budget must be in 0.."+strconv.Itoa(maxSimBudget))
		return
	}
	sp.Budget = budget
	cushion, _, msg := parseInt(r, "cushion")
	if msg != "" {
		writeBadRequest(w, msg)
		return
	}
	sp.Cushion = cushion
	sp.Bulk, _ = strconv.ParseBool(r.URL.Query().Get("bulk"))

	rng := gacha.DefaultRNG()
	if seed, ok, msg := parseInt(r, "seed"); msg != "" {
		writeBadRequest(w, msg)
		return
	} else if ok {
		rng = gacha.NewSeededRNG(uint64(seed))
	}

	st, err := gacha.Roller{RNG: rng}.RunMonteCarlo(p, sp)
	if err != nil {
		switch {
		case errors.Is(err, gacha.ErrUnknownGoal):
			writeBadRequest(w, err.Error())
		case errors.Is(err, gacha.ErrUnreachableGoal):
			writeJSON(w, http.StatusUnprocessableEntity, errorResp{Code: "UNREACHABLE_GOAL", Message: err.Error()})
		default:
			a.writeError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, simResp{PoolID: p.ID, Goal: sp.Goal, Trials: sp.Trials, Stats: st})
}
