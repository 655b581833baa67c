// Package badge decides and records one-time achievement claims. Eligibility
// is always computed from live ledger and activity-source state inside the
// claim's own unit of work; nothing is cached.
package badge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/alphabot-ai/vhibes/internal/access"
	"github.com/alphabot-ai/vhibes/internal/activity"
	"github.com/alphabot-ai/vhibes/internal/errs"
	"github.com/alphabot-ai/vhibes/internal/ledger"
	"github.com/alphabot-ai/vhibes/internal/model"
	"github.com/alphabot-ai/vhibes/internal/store"
)

// requiredSources lists the activity sources each badge aggregates.
// Streak badges read the ledger and need no wired source.
var requiredSources = map[model.BadgeType][]model.SourceName{
	model.BadgeFirstActivity:  {model.SourceRoast, model.SourceChain, model.SourceIcebreaker},
	model.BadgeLoginStreak:    nil,
	model.BadgeActivityStreak: nil,
	model.BadgeTopRoaster:     {model.SourceRoast},
	model.BadgeChainMaster:    {model.SourceChain},
	model.BadgeIcebreaker:     {model.SourceIcebreaker},
}

type Engine struct {
	store  store.Store
	access *access.Registry
	ledger *ledger.Service
	now    func() time.Time

	mu        sync.RWMutex
	available map[model.SourceName]activity.Source
	wired     map[model.SourceName]activity.Source
}

func New(st store.Store, reg *access.Registry, l *ledger.Service, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:     st,
		access:    reg,
		ledger:    l,
		now:       now,
		available: map[model.SourceName]activity.Source{},
		wired:     map[model.SourceName]activity.Source{},
	}
}

// Register makes a source known so the owner can wire it. It does not wire it.
func (e *Engine) Register(src activity.Source) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.available[src.Name()] = src
}

// SetActivitySources replaces the wired source set. Owner only.
func (e *Engine) SetActivitySources(ctx context.Context, caller model.Address, names []model.SourceName) error {
	if err := e.access.RequireOwner(caller); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next := make(map[model.SourceName]activity.Source, len(names))
	for _, name := range names {
		src, ok := e.available[name]
		if !ok {
			return errs.WithMetadata(errs.CodeUnknownSource, fmt.Sprintf("unknown activity source: %s", name),
				map[string]string{"source": string(name)})
		}
		next[name] = src
	}
	err := e.store.Update(ctx, func(tx store.Tx) error {
		wired := make([]string, 0, len(next))
		names := make([]model.SourceName, 0, len(next))
		for name := range next {
			wired = append(wired, string(name))
			names = append(names, name)
		}
		sort.Strings(wired)
		if err := tx.SetBadgeSources(ctx, names); err != nil {
			return fmt.Errorf("save badge sources: %w", err)
		}
		return tx.AppendRecord(ctx, &model.Record{
			Kind:      model.RecordParamsChanged,
			Actor:     caller,
			Data:      map[string]any{"component": "badge", "sources": wired},
			CreatedAt: e.now(),
		})
	})
	if err != nil {
		return err
	}
	e.wired = next
	return nil
}

// LoadSources wires the source set last saved by SetActivitySources. It
// reports false when none was ever saved, leaving nothing wired. Every saved
// name must already be registered.
func (e *Engine) LoadSources(ctx context.Context) (bool, error) {
	var (
		names []model.SourceName
		ok    bool
	)
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		names, ok, err = tx.GetBadgeSources(ctx)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("load badge sources: %w", err)
	}
	if !ok {
		return false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next := make(map[model.SourceName]activity.Source, len(names))
	for _, name := range names {
		src, found := e.available[name]
		if !found {
			return false, errs.WithMetadata(errs.CodeUnknownSource, fmt.Sprintf("unknown activity source: %s", name),
				map[string]string{"source": string(name)})
		}
		next[name] = src
	}
	e.wired = next
	return true, nil
}

// Sources lists the wired source names in sorted order.
func (e *Engine) Sources() []model.SourceName {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.SourceName, 0, len(e.wired))
	for name := range e.wired {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *Engine) SetBadgeMetadata(ctx context.Context, caller model.Address, badge model.BadgeType, ref string) error {
	if !badge.Valid() {
		return errs.ErrUnknownBadge
	}
	return e.store.Update(ctx, func(tx store.Tx) error {
		if err := e.access.RequireOwner(caller); err != nil {
			return err
		}
		if err := tx.SetBadgeMetadata(ctx, badge, ref); err != nil {
			return fmt.Errorf("set badge metadata: %w", err)
		}
		return tx.AppendRecord(ctx, &model.Record{
			Kind:      model.RecordParamsChanged,
			Actor:     caller,
			Data:      map[string]any{"component": "badge", "badge": string(badge), "metadata_ref": ref},
			CreatedAt: e.now(),
		})
	})
}

// SetRequirement replaces a badge threshold as given, zero included.
func (e *Engine) SetRequirement(ctx context.Context, caller model.Address, badge model.BadgeType, requirement uint64) error {
	if !badge.Valid() {
		return errs.ErrUnknownBadge
	}
	return e.store.Update(ctx, func(tx store.Tx) error {
		if err := e.access.RequireOwner(caller); err != nil {
			return err
		}
		if err := tx.SetBadgeRequirement(ctx, badge, requirement); err != nil {
			return fmt.Errorf("set badge requirement: %w", err)
		}
		return tx.AppendRecord(ctx, &model.Record{
			Kind:      model.RecordParamsChanged,
			Actor:     caller,
			Data:      map[string]any{"component": "badge", "badge": string(badge), "requirement": requirement},
			CreatedAt: e.now(),
		})
	})
}

// Claim mints badge for account. Checks run in a fixed order: already
// claimed, metadata missing, source not wired, requirement not met.
func (e *Engine) Claim(ctx context.Context, account model.Address, badge model.BadgeType) (model.BadgeClaim, error) {
	if account.IsZero() {
		return model.BadgeClaim{}, errs.ErrEmptyAddress
	}
	if !badge.Valid() {
		return model.BadgeClaim{}, errs.ErrUnknownBadge
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	var claim model.BadgeClaim
	err := e.store.Update(ctx, func(tx store.Tx) error {
		st, err := e.status(ctx, tx, account, badge)
		if err != nil {
			return err
		}
		if st.blocker != nil {
			return st.blocker
		}
		claim = model.BadgeClaim{Account: account, Type: badge, ClaimedAt: e.now()}
		id, err := tx.CreateBadgeClaim(ctx, &claim)
		if errors.Is(err, store.ErrDuplicateClaim) {
			return errs.AlreadyClaimed(badge.DisplayName())
		}
		if err != nil {
			return fmt.Errorf("create claim: %w", err)
		}
		claim.TokenID = id
		return tx.AppendRecord(ctx, &model.Record{
			Kind:    model.RecordBadgeClaimed,
			Actor:   account,
			Account: account,
			Data: map[string]any{
				"badge":    string(badge),
				"name":     badge.DisplayName(),
				"token_id": id,
				"actual":   st.actual,
			},
			CreatedAt: claim.ClaimedAt,
		})
	})
	if err != nil {
		return model.BadgeClaim{}, err
	}
	log.Printf("badge %s claimed by %s (token %d)", badge, account, claim.TokenID)
	return claim, nil
}

func (e *Engine) Badges(ctx context.Context) ([]model.BadgeConfig, error) {
	var out []model.BadgeConfig
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListBadgeConfigs(ctx)
		return err
	})
	return out, err
}

func (e *Engine) Claims(ctx context.Context, account model.Address) ([]model.BadgeClaim, error) {
	var out []model.BadgeClaim
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListBadgeClaims(ctx, account)
		return err
	})
	return out, err
}

func (e *Engine) HasBadge(ctx context.Context, account model.Address, badge model.BadgeType) (bool, error) {
	var has bool
	err := e.store.View(ctx, func(tx store.Tx) error {
		_, err := tx.GetBadgeClaim(ctx, account, badge)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		has = true
		return nil
	})
	return has, err
}

// Eligibility reports, per badge, what a claim right now would see.
func (e *Engine) Eligibility(ctx context.Context, account model.Address) ([]model.BadgeStatus, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]model.BadgeStatus, 0, len(model.BadgeTypes))
	err := e.store.View(ctx, func(tx store.Tx) error {
		for _, badge := range model.BadgeTypes {
			st, err := e.status(ctx, tx, account, badge)
			if err != nil {
				return err
			}
			bs := model.BadgeStatus{
				Type:     badge,
				Required: st.required,
				Actual:   st.actual,
				Claimed:  st.claimed,
			}
			if st.blocker != nil {
				bs.Blocker = string(errs.CodeOf(st.blocker))
			}
			out = append(out, bs)
		}
		return nil
	})
	return out, err
}

type status struct {
	required uint64
	actual   uint64
	claimed  bool
	// blocker is the first failing check, nil when claimable.
	blocker error
}

// status must run with e.mu held.
func (e *Engine) status(ctx context.Context, tx store.Tx, account model.Address, badge model.BadgeType) (status, error) {
	var st status
	cfg, err := tx.GetBadgeConfig(ctx, badge)
	if errors.Is(err, store.ErrNotFound) {
		cfg = model.BadgeConfig{Type: badge}
	} else if err != nil {
		return status{}, fmt.Errorf("load badge config: %w", err)
	}
	st.required = cfg.Requirement

	_, err = tx.GetBadgeClaim(ctx, account, badge)
	switch {
	case err == nil:
		st.claimed = true
		st.blocker = errs.AlreadyClaimed(badge.DisplayName())
		return st, nil
	case !errors.Is(err, store.ErrNotFound):
		return status{}, fmt.Errorf("load claim: %w", err)
	}

	if cfg.MetadataRef == "" {
		st.blocker = errs.MetadataNotSet(badge.DisplayName())
		return st, nil
	}

	for _, name := range requiredSources[badge] {
		if _, ok := e.wired[name]; !ok {
			st.blocker = errs.SourceNotConfigured(string(name))
			return st, nil
		}
	}

	st.actual, err = e.actual(ctx, tx, account, badge)
	if err != nil {
		return status{}, err
	}
	if st.actual < st.required {
		st.blocker = errs.RequirementNotMet(badge.DisplayName(), st.required, st.actual)
	}
	return st, nil
}

func (e *Engine) actual(ctx context.Context, tx store.Tx, account model.Address, badge model.BadgeType) (uint64, error) {
	switch badge {
	case model.BadgeLoginStreak, model.BadgeActivityStreak:
		acc, err := e.ledger.AccountTx(ctx, tx, account)
		if err != nil {
			return 0, err
		}
		if badge == model.BadgeLoginStreak {
			return acc.LoginStreak, nil
		}
		return acc.ActivityStreak, nil
	}
	var total uint64
	for _, name := range requiredSources[badge] {
		n, err := e.wired[name].ActivityCount(ctx, tx, account)
		if err != nil {
			return 0, fmt.Errorf("count %s activity: %w", name, err)
		}
		if total > math.MaxUint64-n {
			total = math.MaxUint64
			continue
		}
		total += n
	}
	return total, nil
}
