// Package access holds the authorization registry shared by every component:
// one owner identity plus the set of identities allowed to drive gated
// mutations such as point awards.
package access

import (
	"context"
	"fmt"
	"time"

	"github.com/alphabot-ai/vhibes/internal/errs"
	"github.com/alphabot-ai/vhibes/internal/model"
	"github.com/alphabot-ai/vhibes/internal/store"
)

type Registry struct {
	owner model.Address
	now   func() time.Time
}

func New(owner model.Address, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{owner: owner, now: now}
}

func (r *Registry) Owner() model.Address { return r.owner }

func (r *Registry) IsOwner(caller model.Address) bool {
	return !caller.IsZero() && caller == r.owner
}

// RequireOwner fails with Unauthorized unless caller is the owner.
func (r *Registry) RequireOwner(caller model.Address) error {
	if !r.IsOwner(caller) {
		return errs.ErrUnauthorized
	}
	return nil
}

// RequireAuthorized passes the owner and any registered identity.
func (r *Registry) RequireAuthorized(ctx context.Context, tx store.Tx, caller model.Address) error {
	if r.IsOwner(caller) {
		return nil
	}
	if caller.IsZero() {
		return errs.ErrUnauthorized
	}
	ok, err := tx.IsAuthorized(ctx, caller)
	if err != nil {
		return fmt.Errorf("check authorization: %w", err)
	}
	if !ok {
		return errs.ErrUnauthorized
	}
	return nil
}

func (r *Registry) IsAuthorized(ctx context.Context, tx store.Tx, caller model.Address) (bool, error) {
	if r.IsOwner(caller) {
		return true, nil
	}
	return tx.IsAuthorized(ctx, caller)
}

// SetAuthorized adds or removes identity. Owner only.
func (r *Registry) SetAuthorized(ctx context.Context, tx store.Tx, caller, identity model.Address, authorized bool) error {
	if err := r.RequireOwner(caller); err != nil {
		return err
	}
	if identity.IsZero() {
		return errs.ErrEmptyAddress
	}
	if err := tx.SetAuthorized(ctx, identity, authorized); err != nil {
		return fmt.Errorf("set authorized: %w", err)
	}
	kind := model.RecordCallerAuthorized
	if !authorized {
		kind = model.RecordCallerDeauthorized
	}
	return tx.AppendRecord(ctx, &model.Record{
		Kind:      kind,
		Actor:     caller,
		Account:   identity,
		CreatedAt: r.now(),
	})
}
