package httpapp

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/alphabot-ai/vhibes/internal/access"
	"github.com/alphabot-ai/vhibes/internal/activity"
	"github.com/alphabot-ai/vhibes/internal/auth"
	"github.com/alphabot-ai/vhibes/internal/badge"
	"github.com/alphabot-ai/vhibes/internal/chain"
	"github.com/alphabot-ai/vhibes/internal/config"
	"github.com/alphabot-ai/vhibes/internal/ledger"
	"github.com/alphabot-ai/vhibes/internal/model"
	"github.com/alphabot-ai/vhibes/internal/store"
)

// NewServices builds the ledger, chain, badge engine and the reporting
// tallies over st. The chain identity is authorized on the ledger if it is
// not already. The saved activity source set is wired; cfg.Sources only
// seeds a store that never saved one.
func NewServices(ctx context.Context, st store.Store, cfg config.Config, now func() time.Time) (Services, error) {
	if now == nil {
		now = time.Now
	}
	owner := model.NormalizeAddress(cfg.Owner)
	reg := access.New(owner, now)

	l, err := ledger.New(st, reg, ledger.Options{
		Defaults: &ledger.Params{
			DailyLogin:          cfg.Points.DailyLogin,
			StreakBonus:         cfg.Points.StreakBonus,
			ActivityStreakBonus: cfg.Points.ActivityStreakBonus,
		},
		Now: now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("ledger: %w", err)
	}

	identity := model.NormalizeAddress(cfg.ChainIdentity)
	c := chain.New(st, reg, l, chain.Options{
		Identity: identity,
		Defaults: &chain.Params{PerChallenge: cfg.Points.PerChallenge, PerResponse: cfg.Points.PerResponse},
		Now:      now,
	})

	engine := badge.New(st, reg, l, now)
	engine.Register(c)
	tallies := map[model.SourceName]*activity.Tally{}
	for _, name := range []model.SourceName{model.SourceRoast, model.SourceIcebreaker} {
		t := activity.NewTally(name, st, reg, l, now)
		tallies[name] = t
		engine.Register(t)
	}

	ok, err := l.IsAuthorized(ctx, identity)
	if err != nil {
		return Services{}, fmt.Errorf("check chain identity: %w", err)
	}
	if !ok {
		if err := l.Authorize(ctx, owner, identity); err != nil {
			return Services{}, fmt.Errorf("authorize chain identity: %w", err)
		}
		log.Printf("authorized chain identity %s", identity)
	}

	loaded, err := engine.LoadSources(ctx)
	if err != nil {
		return Services{}, err
	}
	if !loaded && len(cfg.Sources) > 0 {
		names := make([]model.SourceName, 0, len(cfg.Sources))
		for _, s := range cfg.Sources {
			names = append(names, model.SourceName(s))
		}
		if err := engine.SetActivitySources(ctx, owner, names); err != nil {
			return Services{}, fmt.Errorf("wire activity sources: %w", err)
		}
		log.Printf("wired activity sources %v", names)
	}

	return Services{
		Ledger:  l,
		Chain:   c,
		Badges:  engine,
		Tallies: tallies,
		Auth:    auth.NewService(st, cfg.TokenTTL, cfg.ChallengeTTL),
	}, nil
}
