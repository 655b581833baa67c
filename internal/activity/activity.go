// Package activity defines what the badge engine needs from an activity
// source, and Tally, the counter-backed source used for collaborators that
// report activity over the API.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alphabot-ai/vhibes/internal/access"
	"github.com/alphabot-ai/vhibes/internal/errs"
	"github.com/alphabot-ai/vhibes/internal/ledger"
	"github.com/alphabot-ai/vhibes/internal/model"
	"github.com/alphabot-ai/vhibes/internal/store"
)

// Source reports a per-account activity count. ActivityCount runs inside the
// caller's unit of work and must not start its own.
type Source interface {
	Name() model.SourceName
	ActivityCount(ctx context.Context, tx store.Tx, account model.Address) (uint64, error)
}

type Tally struct {
	name   model.SourceName
	store  store.Store
	access *access.Registry
	ledger *ledger.Service
	now    func() time.Time
}

func NewTally(name model.SourceName, st store.Store, reg *access.Registry, l *ledger.Service, now func() time.Time) *Tally {
	if now == nil {
		now = time.Now
	}
	return &Tally{name: name, store: st, access: reg, ledger: l, now: now}
}

func (t *Tally) Name() model.SourceName { return t.name }

func (t *Tally) ActivityCount(ctx context.Context, tx store.Tx, account model.Address) (uint64, error) {
	return tx.ActivityCount(ctx, t.name, account)
}

// Record counts one activity for account on behalf of an authorized caller,
// and advances the account's activity streak in the same unit of work.
func (t *Tally) Record(ctx context.Context, caller, account model.Address) (uint64, error) {
	if account.IsZero() {
		return 0, errs.ErrEmptyAddress
	}
	var count uint64
	err := t.store.Update(ctx, func(tx store.Tx) error {
		if err := t.access.RequireAuthorized(ctx, tx, caller); err != nil {
			return err
		}
		var err error
		count, err = tx.IncrementActivity(ctx, t.name, account)
		if err != nil {
			return fmt.Errorf("increment %s: %w", t.name, err)
		}
		recordID := uuid.NewString()
		if _, err := t.ledger.RecordActivityTx(ledger.WithCause(ctx, recordID), tx, caller, account); err != nil {
			return err
		}
		return tx.AppendRecord(ctx, &model.Record{
			ID:      recordID,
			Kind:    model.RecordActivityCounted,
			Actor:   caller,
			Account: account,
			Data: map[string]any{
				"source": string(t.name),
				"count":  count,
			},
			CreatedAt: t.now(),
		})
	})
	return count, err
}

func (t *Tally) Count(ctx context.Context, account model.Address) (uint64, error) {
	var n uint64
	err := t.store.View(ctx, func(tx store.Tx) error {
		var err error
		n, err = t.ActivityCount(ctx, tx, account)
		return err
	})
	return n, err
}
