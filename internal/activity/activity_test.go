package activity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alphabot-ai/vhibes/internal/access"
	"github.com/alphabot-ai/vhibes/internal/errs"
	"github.com/alphabot-ai/vhibes/internal/ledger"
	"github.com/alphabot-ai/vhibes/internal/model"
	"github.com/alphabot-ai/vhibes/internal/store/sqlite"
)

func newTestTally(t *testing.T) (*Tally, *ledger.Service) {
	t.Helper()
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	now := func() time.Time { return time.Unix(1_700_000_000, 0) }
	reg := access.New("owner", now)
	l, err := ledger.New(st, reg, ledger.Options{Now: now})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return NewTally(model.SourceRoast, st, reg, l, now), l
}

func TestTallyRecord(t *testing.T) {
	tally, l := newTestTally(t)
	ctx := context.Background()

	if _, err := tally.Record(ctx, "roast-app", "alice"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	if n, _ := tally.Count(ctx, "alice"); n != 0 {
		t.Fatalf("count changed on rejected call: %d", n)
	}

	if err := l.Authorize(ctx, "owner", "roast-app"); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	for i := 1; i <= 3; i++ {
		n, err := tally.Record(ctx, "roast-app", "alice")
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if n != uint64(i) {
			t.Fatalf("expected count %d, got %d", i, n)
		}
	}
	if streak, _ := l.ActivityStreak(ctx, "alice"); streak != 1 {
		t.Fatalf("expected activity streak 1, got %d", streak)
	}
	if tally.Name() != model.SourceRoast {
		t.Fatalf("unexpected name %s", tally.Name())
	}
}
