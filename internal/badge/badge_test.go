package badge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alphabot-ai/vhibes/internal/access"
	"github.com/alphabot-ai/vhibes/internal/activity"
	"github.com/alphabot-ai/vhibes/internal/chain"
	"github.com/alphabot-ai/vhibes/internal/errs"
	"github.com/alphabot-ai/vhibes/internal/ledger"
	"github.com/alphabot-ai/vhibes/internal/model"
	"github.com/alphabot-ai/vhibes/internal/store"
	"github.com/alphabot-ai/vhibes/internal/store/sqlite"
)

type fixture struct {
	st         *sqlite.Store
	ledger     *ledger.Service
	chain      *chain.Service
	roast      *activity.Tally
	icebreaker *activity.Tally
	engine     *Engine
	clock      *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{st: st}
	current := time.Unix(1_700_000_000, 0)
	f.clock = &current
	now := func() time.Time { return *f.clock }

	reg := access.New("owner", now)
	f.ledger, err = ledger.New(st, reg, ledger.Options{Now: now})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	ctx := context.Background()
	for _, id := range []model.Address{"chain", "roast-app", "icebreaker-app"} {
		if err := f.ledger.Authorize(ctx, "owner", id); err != nil {
			t.Fatalf("authorize %s: %v", id, err)
		}
	}
	f.chain = chain.New(st, reg, f.ledger, chain.Options{Identity: "chain", Now: now})
	f.roast = activity.NewTally(model.SourceRoast, st, reg, f.ledger, now)
	f.icebreaker = activity.NewTally(model.SourceIcebreaker, st, reg, f.ledger, now)

	f.engine = New(st, reg, f.ledger, now)
	f.engine.Register(f.chain)
	f.engine.Register(f.roast)
	f.engine.Register(f.icebreaker)
	return f
}

func (f *fixture) wireAll(t *testing.T) {
	t.Helper()
	err := f.engine.SetActivitySources(context.Background(), "owner",
		[]model.SourceName{model.SourceRoast, model.SourceChain, model.SourceIcebreaker})
	if err != nil {
		t.Fatalf("wire sources: %v", err)
	}
}

func (f *fixture) setMetadata(t *testing.T, badge model.BadgeType) {
	t.Helper()
	if err := f.engine.SetBadgeMetadata(context.Background(), "owner", badge, "ipfs://"+string(badge)); err != nil {
		t.Fatalf("set metadata: %v", err)
	}
}

func (f *fixture) roasts(t *testing.T, account model.Address, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := f.roast.Record(context.Background(), "roast-app", account); err != nil {
			t.Fatalf("record roast: %v", err)
		}
	}
}

func TestClaimPrecedence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Nothing configured: metadata is checked before sources.
	if _, err := f.engine.Claim(ctx, "alice", model.BadgeTopRoaster); !errors.Is(err, errs.ErrMetadataNotSet) {
		t.Fatalf("expected MetadataNotSet, got %v", err)
	}

	f.setMetadata(t, model.BadgeTopRoaster)
	_, err := f.engine.Claim(ctx, "alice", model.BadgeTopRoaster)
	if !errors.Is(err, errs.ErrSourceNotConfigured) {
		t.Fatalf("expected SourceNotConfigured, got %v", err)
	}
	var e *errs.Error
	if !errors.As(err, &e) || e.Metadata["source"] != "roast" {
		t.Fatalf("expected roast source in metadata, got %v", err)
	}

	f.wireAll(t)
	f.roasts(t, "alice", 9)
	_, err = f.engine.Claim(ctx, "alice", model.BadgeTopRoaster)
	if !errors.Is(err, errs.ErrRequirementNotMet) || !errors.As(err, &e) {
		t.Fatalf("expected RequirementNotMet, got %v", err)
	}
	if e.Metadata["required"] != "10" || e.Metadata["actual"] != "9" || e.Metadata["badge"] != "Top Roaster" {
		t.Fatalf("unexpected metadata %v", e.Metadata)
	}

	f.roasts(t, "alice", 1)
	claim, err := f.engine.Claim(ctx, "alice", model.BadgeTopRoaster)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claim.TokenID != 1 || claim.Type != model.BadgeTopRoaster {
		t.Fatalf("unexpected claim %+v", claim)
	}

	// Already claimed wins over every other check, even after unwiring.
	if err := f.engine.SetBadgeMetadata(ctx, "owner", model.BadgeTopRoaster, ""); err != nil {
		t.Fatalf("clear metadata: %v", err)
	}
	if err := f.engine.SetActivitySources(ctx, "owner", nil); err != nil {
		t.Fatalf("unwire: %v", err)
	}
	if _, err := f.engine.Claim(ctx, "alice", model.BadgeTopRoaster); !errors.Is(err, errs.ErrAlreadyClaimed) {
		t.Fatalf("expected AlreadyClaimed, got %v", err)
	}
}

func TestClaimExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.wireAll(t)
	f.setMetadata(t, model.BadgeFirstActivity)
	f.roasts(t, "alice", 1)

	if _, err := f.engine.Claim(ctx, "alice", model.BadgeFirstActivity); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := f.engine.Claim(ctx, "alice", model.BadgeFirstActivity)
	var e *errs.Error
	if !errors.As(err, &e) || e.Code != errs.CodeAlreadyClaimed || e.Metadata["badge"] != "First Activity" {
		t.Fatalf("expected AlreadyClaimed(First Activity), got %v", err)
	}

	has, err := f.engine.HasBadge(ctx, "alice", model.BadgeFirstActivity)
	if err != nil || !has {
		t.Fatalf("expected badge held, got %v %v", has, err)
	}
	claims, _ := f.engine.Claims(ctx, "alice")
	if len(claims) != 1 {
		t.Fatalf("expected one claim, got %+v", claims)
	}

	err = f.st.View(ctx, func(tx store.Tx) error {
		recs, err := tx.ListRecords(ctx, 0, 100)
		if err != nil {
			return err
		}
		n := 0
		for _, r := range recs {
			if r.Kind == model.RecordBadgeClaimed {
				n++
			}
		}
		if n != 1 {
			t.Fatalf("expected one badge_claimed record, got %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestFirstActivityAcrossSources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.wireAll(t)
	f.setMetadata(t, model.BadgeFirstActivity)

	_, err := f.engine.Claim(ctx, "alice", model.BadgeFirstActivity)
	var e *errs.Error
	if !errors.As(err, &e) || e.Code != errs.CodeRequirementNotMet || e.Metadata["actual"] != "0" {
		t.Fatalf("expected RequirementNotMet with 0, got %v", err)
	}

	// Starting a challenge is not participation; responding is.
	c, err := f.chain.StartChallenge(ctx, "bob", "Test challenge", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.engine.Claim(ctx, "bob", model.BadgeFirstActivity); !errors.Is(err, errs.ErrRequirementNotMet) {
		t.Fatalf("expected RequirementNotMet for initiator, got %v", err)
	}
	if _, err := f.chain.JoinChallenge(ctx, "alice", c, 0, "Response", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := f.engine.Claim(ctx, "alice", model.BadgeFirstActivity); err != nil {
		t.Fatalf("claim via chain: %v", err)
	}

	if _, err := f.icebreaker.Record(ctx, "icebreaker-app", "carol"); err != nil {
		t.Fatalf("icebreaker: %v", err)
	}
	if _, err := f.engine.Claim(ctx, "carol", model.BadgeFirstActivity); err != nil {
		t.Fatalf("claim via icebreaker: %v", err)
	}
}

func TestFirstActivityNeedsEverySource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setMetadata(t, model.BadgeFirstActivity)
	if err := f.engine.SetActivitySources(ctx, "owner", []model.SourceName{model.SourceRoast, model.SourceChain}); err != nil {
		t.Fatalf("wire: %v", err)
	}
	f.roasts(t, "alice", 1)
	_, err := f.engine.Claim(ctx, "alice", model.BadgeFirstActivity)
	var e *errs.Error
	if !errors.As(err, &e) || e.Code != errs.CodeSourceNotConfigured || e.Metadata["source"] != "icebreaker" {
		t.Fatalf("expected SourceNotConfigured(icebreaker), got %v", err)
	}
}

func TestChainMasterRequirement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.wireAll(t)
	f.setMetadata(t, model.BadgeChainMaster)

	c, err := f.chain.StartChallenge(ctx, "bob", "root", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := f.chain.JoinChallenge(ctx, "alice", c, 0, "r", ""); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	_, err = f.engine.Claim(ctx, "alice", model.BadgeChainMaster)
	var e *errs.Error
	if !errors.As(err, &e) || e.Metadata["required"] != "5" || e.Metadata["actual"] != "4" {
		t.Fatalf("expected requirement 5 actual 4, got %v", err)
	}
	if _, err := f.chain.JoinChallenge(ctx, "alice", c, 0, "r", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := f.engine.Claim(ctx, "alice", model.BadgeChainMaster); err != nil {
		t.Fatalf("claim: %v", err)
	}
}

func TestLoginStreakBadge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setMetadata(t, model.BadgeLoginStreak)
	if err := f.engine.SetRequirement(ctx, "owner", model.BadgeLoginStreak, 3); err != nil {
		t.Fatalf("set requirement: %v", err)
	}

	for day := 0; day < 3; day++ {
		if _, err := f.ledger.DailyLogin(ctx, "alice"); err != nil {
			t.Fatalf("login: %v", err)
		}
		if day < 2 {
			if _, err := f.engine.Claim(ctx, "alice", model.BadgeLoginStreak); !errors.Is(err, errs.ErrRequirementNotMet) {
				t.Fatalf("day %d: expected RequirementNotMet, got %v", day, err)
			}
		}
		*f.clock = f.clock.Add(25 * time.Hour)
	}
	if _, err := f.engine.Claim(ctx, "alice", model.BadgeLoginStreak); err != nil {
		t.Fatalf("claim with streak 3: %v", err)
	}
}

func TestAdminSettersOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.engine.SetBadgeMetadata(ctx, "alice", model.BadgeIcebreaker, "x"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	if err := f.engine.SetRequirement(ctx, "alice", model.BadgeIcebreaker, 1); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	if err := f.engine.SetActivitySources(ctx, "alice", nil); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	if err := f.engine.SetActivitySources(ctx, "owner", []model.SourceName{"nope"}); !errors.Is(err, errs.ErrUnknownSource) {
		t.Fatalf("expected UnknownSource, got %v", err)
	}
	if err := f.engine.SetRequirement(ctx, "owner", "bogus", 1); !errors.Is(err, errs.ErrUnknownBadge) {
		t.Fatalf("expected UnknownBadge, got %v", err)
	}
	if err := f.engine.SetRequirement(ctx, "owner", model.BadgeIcebreaker, 0); err != nil {
		t.Fatalf("zero requirement is accepted as given: %v", err)
	}
}

func TestEligibilityIsFresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.wireAll(t)
	f.setMetadata(t, model.BadgeTopRoaster)

	report, err := f.engine.Eligibility(ctx, "alice")
	if err != nil {
		t.Fatalf("eligibility: %v", err)
	}
	if len(report) != len(model.BadgeTypes) {
		t.Fatalf("expected %d entries, got %d", len(model.BadgeTypes), len(report))
	}
	byType := map[model.BadgeType]model.BadgeStatus{}
	for _, s := range report {
		byType[s.Type] = s
	}
	if byType[model.BadgeTopRoaster].Blocker != string(errs.CodeRequirementNotMet) {
		t.Fatalf("unexpected top roaster status %+v", byType[model.BadgeTopRoaster])
	}
	if byType[model.BadgeIcebreaker].Blocker != string(errs.CodeMetadataNotSet) {
		t.Fatalf("unexpected icebreaker status %+v", byType[model.BadgeIcebreaker])
	}

	f.roasts(t, "alice", 10)
	report, _ = f.engine.Eligibility(ctx, "alice")
	for _, s := range report {
		if s.Type == model.BadgeTopRoaster && (s.Blocker != "" || s.Actual != 10 || s.Required != 10) {
			t.Fatalf("expected claimable top roaster, got %+v", s)
		}
	}
}

func TestSourcesSurviveRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	loaded, err := f.engine.LoadSources(ctx)
	if err != nil || loaded {
		t.Fatalf("expected nothing saved on a fresh store, got %v %v", loaded, err)
	}
	if err := f.engine.SetActivitySources(ctx, "owner", []model.SourceName{model.SourceChain}); err != nil {
		t.Fatalf("set sources: %v", err)
	}

	restarted := New(f.st, access.New("owner", time.Now), f.ledger, nil)
	restarted.Register(f.chain)
	restarted.Register(f.roast)
	restarted.Register(f.icebreaker)
	loaded, err = restarted.LoadSources(ctx)
	if err != nil || !loaded {
		t.Fatalf("load sources: %v %v", loaded, err)
	}
	if got := restarted.Sources(); len(got) != 1 || got[0] != model.SourceChain {
		t.Fatalf("expected [chain] after restart, got %v", got)
	}

	if err := f.engine.SetActivitySources(ctx, "owner", []model.SourceName{"bogus"}); err == nil {
		t.Fatal("expected unknown source to fail")
	}
	loaded, _ = restarted.LoadSources(ctx)
	if got := restarted.Sources(); !loaded || len(got) != 1 {
		t.Fatalf("failed wiring must not change the saved set, got %v", got)
	}
}
