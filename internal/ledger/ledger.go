// Package ledger keeps point balances, login and activity streaks, and maps
// balances onto levels. It is the only writer of account state.
package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/alphabot-ai/vhibes/internal/access"
	"github.com/alphabot-ai/vhibes/internal/errs"
	"github.com/alphabot-ai/vhibes/internal/model"
	"github.com/alphabot-ai/vhibes/internal/store"
)

const (
	// Day is the streak window. A repeat inside one Day is a no-op, a repeat
	// inside two Days extends the streak, anything later restarts it.
	Day = 24 * time.Hour

	paramDailyLogin          = "ledger.daily_login"
	paramStreakBonus         = "ledger.streak_bonus"
	paramActivityStreakBonus = "ledger.activity_streak_bonus"
)

// DefaultLevels is the level table used when none is supplied.
var DefaultLevels = []model.Level{
	{Name: "Vibe Newbie", MinPoints: 0},
	{Name: "Vibe Explorer", MinPoints: 100},
	{Name: "Vibe Enthusiast", MinPoints: 250},
	{Name: "Vibe Champion", MinPoints: 500},
	{Name: "Vibe Master", MinPoints: 1000},
}

type Params struct {
	DailyLogin          uint64 `json:"daily_login"`
	StreakBonus         uint64 `json:"streak_bonus"`
	ActivityStreakBonus uint64 `json:"activity_streak_bonus"`
}

var DefaultParams = Params{DailyLogin: 5, StreakBonus: 2, ActivityStreakBonus: 3}

type Options struct {
	Levels   []model.Level
	Defaults *Params
	Now      func() time.Time
}

type Service struct {
	store    store.Store
	access   *access.Registry
	levels   []model.Level
	defaults Params
	now      func() time.Time
}

// LoginResult describes what a daily login did. Counted is false for a
// repeat inside the window, in which case nothing changed.
type LoginResult struct {
	Account model.Account
	Awarded uint64
	Counted bool
}

type ActivityResult struct {
	Account model.Account
	Awarded uint64
	Counted bool
}

func New(st store.Store, reg *access.Registry, opts Options) (*Service, error) {
	levels := opts.Levels
	if levels == nil {
		levels = DefaultLevels
	}
	if err := validateLevels(levels); err != nil {
		return nil, err
	}
	defaults := DefaultParams
	if opts.Defaults != nil {
		defaults = *opts.Defaults
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:    st,
		access:   reg,
		levels:   append([]model.Level(nil), levels...),
		defaults: defaults,
		now:      now,
	}, nil
}

func validateLevels(levels []model.Level) error {
	if len(levels) == 0 {
		return errs.New(errs.CodeInvalidLevels, "at least one level required")
	}
	if levels[0].MinPoints != 0 {
		return errs.New(errs.CodeInvalidLevels, "first level must start at 0 points")
	}
	for i := 1; i < len(levels); i++ {
		if levels[i].MinPoints <= levels[i-1].MinPoints {
			return errs.New(errs.CodeInvalidLevels, fmt.Sprintf("level %q must require more points than %q", levels[i].Name, levels[i-1].Name))
		}
	}
	return nil
}

func (s *Service) EarnPoints(ctx context.Context, caller, account model.Address, amount uint64, reason string) (uint64, error) {
	var balance uint64
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		balance, err = s.Earn(ctx, tx, caller, account, amount, reason)
		return err
	})
	return balance, err
}

// Earn credits account inside an existing unit of work.
func (s *Service) Earn(ctx context.Context, tx store.Tx, caller, account model.Address, amount uint64, reason string) (uint64, error) {
	if err := s.access.RequireAuthorized(ctx, tx, caller); err != nil {
		return 0, err
	}
	if account.IsZero() {
		return 0, errs.ErrEmptyAddress
	}
	acc, err := tx.GetAccount(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("load account: %w", err)
	}
	if err := credit(&acc, amount); err != nil {
		return 0, err
	}
	if err := tx.PutAccount(ctx, acc); err != nil {
		return 0, fmt.Errorf("save account: %w", err)
	}
	if err := s.emit(ctx, tx, model.RecordPointsAwarded, caller, account, map[string]any{
		"amount":  amount,
		"reason":  reason,
		"balance": acc.Balance,
	}); err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

func (s *Service) DeductPoints(ctx context.Context, caller, account model.Address, amount uint64, reason string) (uint64, error) {
	var balance uint64
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		balance, err = s.Deduct(ctx, tx, caller, account, amount, reason)
		return err
	})
	return balance, err
}

func (s *Service) Deduct(ctx context.Context, tx store.Tx, caller, account model.Address, amount uint64, reason string) (uint64, error) {
	if err := s.access.RequireAuthorized(ctx, tx, caller); err != nil {
		return 0, err
	}
	if account.IsZero() {
		return 0, errs.ErrEmptyAddress
	}
	acc, err := tx.GetAccount(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("load account: %w", err)
	}
	if amount > acc.Balance {
		return 0, errs.ErrInsufficientBalance
	}
	acc.Balance -= amount
	if err := tx.PutAccount(ctx, acc); err != nil {
		return 0, fmt.Errorf("save account: %w", err)
	}
	if err := s.emit(ctx, tx, model.RecordPointsDeducted, caller, account, map[string]any{
		"amount":  amount,
		"reason":  reason,
		"balance": acc.Balance,
	}); err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// DailyLogin is callable by any account for itself.
func (s *Service) DailyLogin(ctx context.Context, account model.Address) (LoginResult, error) {
	var res LoginResult
	err := s.store.Update(ctx, func(tx store.Tx) error {
		if account.IsZero() {
			return errs.ErrEmptyAddress
		}
		acc, err := tx.GetAccount(ctx, account)
		if err != nil {
			return fmt.Errorf("load account: %w", err)
		}
		now := s.now()
		streak, counted := advance(acc.LoginStreak, acc.LastLoginAt, now)
		if !counted {
			res = LoginResult{Account: acc}
			return nil
		}
		params, err := s.paramsTx(ctx, tx)
		if err != nil {
			return err
		}
		bonus, ok := mul(streak, params.StreakBonus)
		if !ok {
			return errs.ErrBalanceOverflow
		}
		award, ok := add(params.DailyLogin, bonus)
		if !ok {
			return errs.ErrBalanceOverflow
		}
		acc.LoginStreak = streak
		acc.LastLoginAt = now
		if err := credit(&acc, award); err != nil {
			return err
		}
		if err := tx.PutAccount(ctx, acc); err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		if err := s.emit(ctx, tx, model.RecordDailyLogin, account, account, map[string]any{
			"streak":  streak,
			"awarded": award,
			"balance": acc.Balance,
		}); err != nil {
			return err
		}
		res = LoginResult{Account: acc, Awarded: award, Counted: true}
		return nil
	})
	return res, err
}

func (s *Service) RecordActivity(ctx context.Context, caller, account model.Address) (ActivityResult, error) {
	var res ActivityResult
	err := s.store.Update(ctx, func(tx store.Tx) error {
		var err error
		res, err = s.RecordActivityTx(ctx, tx, caller, account)
		return err
	})
	return res, err
}

// RecordActivityTx advances the activity streak. The bonus is paid only from
// the second consecutive day on.
func (s *Service) RecordActivityTx(ctx context.Context, tx store.Tx, caller, account model.Address) (ActivityResult, error) {
	if err := s.access.RequireAuthorized(ctx, tx, caller); err != nil {
		return ActivityResult{}, err
	}
	if account.IsZero() {
		return ActivityResult{}, errs.ErrEmptyAddress
	}
	acc, err := tx.GetAccount(ctx, account)
	if err != nil {
		return ActivityResult{}, fmt.Errorf("load account: %w", err)
	}
	now := s.now()
	streak, counted := advance(acc.ActivityStreak, acc.LastActivityAt, now)
	if !counted {
		return ActivityResult{Account: acc}, nil
	}
	acc.ActivityStreak = streak
	acc.LastActivityAt = now

	var award uint64
	if streak > 1 {
		params, err := s.paramsTx(ctx, tx)
		if err != nil {
			return ActivityResult{}, err
		}
		var ok bool
		if award, ok = mul(streak, params.ActivityStreakBonus); !ok {
			return ActivityResult{}, errs.ErrBalanceOverflow
		}
		if err := credit(&acc, award); err != nil {
			return ActivityResult{}, err
		}
	}
	if err := tx.PutAccount(ctx, acc); err != nil {
		return ActivityResult{}, fmt.Errorf("save account: %w", err)
	}
	if err := s.emit(ctx, tx, model.RecordActivityRecorded, caller, account, map[string]any{
		"streak":  streak,
		"awarded": award,
		"balance": acc.Balance,
	}); err != nil {
		return ActivityResult{}, err
	}
	return ActivityResult{Account: acc, Awarded: award, Counted: true}, nil
}

// SetPoints replaces the point amounts. Owner only.
func (s *Service) SetPoints(ctx context.Context, caller model.Address, p Params) error {
	return s.store.Update(ctx, func(tx store.Tx) error {
		if err := s.access.RequireOwner(caller); err != nil {
			return err
		}
		for key, v := range map[string]uint64{
			paramDailyLogin:          p.DailyLogin,
			paramStreakBonus:         p.StreakBonus,
			paramActivityStreakBonus: p.ActivityStreakBonus,
		} {
			if err := tx.SetParam(ctx, key, v); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}
		}
		return s.emit(ctx, tx, model.RecordParamsChanged, caller, "", map[string]any{
			"component":             "ledger",
			"daily_login":           p.DailyLogin,
			"streak_bonus":          p.StreakBonus,
			"activity_streak_bonus": p.ActivityStreakBonus,
		})
	})
}

func (s *Service) Params(ctx context.Context) (Params, error) {
	var p Params
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		p, err = s.paramsTx(ctx, tx)
		return err
	})
	return p, err
}

func (s *Service) paramsTx(ctx context.Context, tx store.Tx) (Params, error) {
	p := s.defaults
	for key, dst := range map[string]*uint64{
		paramDailyLogin:          &p.DailyLogin,
		paramStreakBonus:         &p.StreakBonus,
		paramActivityStreakBonus: &p.ActivityStreakBonus,
	} {
		v, ok, err := tx.GetParam(ctx, key)
		if err != nil {
			return Params{}, fmt.Errorf("get %s: %w", key, err)
		}
		if ok {
			*dst = v
		}
	}
	return p, nil
}

func (s *Service) Authorize(ctx context.Context, caller, identity model.Address) error {
	return s.store.Update(ctx, func(tx store.Tx) error {
		return s.access.SetAuthorized(ctx, tx, caller, identity, true)
	})
}

func (s *Service) Deauthorize(ctx context.Context, caller, identity model.Address) error {
	return s.store.Update(ctx, func(tx store.Tx) error {
		return s.access.SetAuthorized(ctx, tx, caller, identity, false)
	})
}

func (s *Service) IsAuthorized(ctx context.Context, identity model.Address) (bool, error) {
	var ok bool
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		ok, err = s.access.IsAuthorized(ctx, tx, identity)
		return err
	})
	return ok, err
}

func (s *Service) Account(ctx context.Context, account model.Address) (model.Account, error) {
	var acc model.Account
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		acc, err = s.AccountTx(ctx, tx, account)
		return err
	})
	return acc, err
}

// AccountTx is the read path other components use inside their own unit of work.
func (s *Service) AccountTx(ctx context.Context, tx store.Tx, account model.Address) (model.Account, error) {
	acc, err := tx.GetAccount(ctx, account)
	if err != nil {
		return model.Account{}, fmt.Errorf("load account: %w", err)
	}
	return acc, nil
}

func (s *Service) Points(ctx context.Context, account model.Address) (uint64, error) {
	acc, err := s.Account(ctx, account)
	return acc.Balance, err
}

func (s *Service) LoginStreak(ctx context.Context, account model.Address) (uint64, error) {
	acc, err := s.Account(ctx, account)
	return acc.LoginStreak, err
}

func (s *Service) ActivityStreak(ctx context.Context, account model.Address) (uint64, error) {
	acc, err := s.Account(ctx, account)
	return acc.ActivityStreak, err
}

func (s *Service) Levels() []model.Level {
	return append([]model.Level(nil), s.levels...)
}

// UserLevel returns the highest level whose threshold the balance meets, and
// its index in the level table.
func (s *Service) UserLevel(ctx context.Context, account model.Address) (model.Level, int, error) {
	acc, err := s.Account(ctx, account)
	if err != nil {
		return model.Level{}, 0, err
	}
	lvl, idx := s.LevelFor(acc.Balance)
	return lvl, idx, nil
}

func (s *Service) LevelFor(balance uint64) (model.Level, int) {
	idx := 0
	for i, lvl := range s.levels {
		if balance >= lvl.MinPoints {
			idx = i
		}
	}
	return s.levels[idx], idx
}

type causeKey struct{}

// WithCause marks ledger records emitted under ctx with the id of the record
// of the mutation that triggered them.
func WithCause(ctx context.Context, recordID string) context.Context {
	return context.WithValue(ctx, causeKey{}, recordID)
}

func causeOf(ctx context.Context) string {
	id, _ := ctx.Value(causeKey{}).(string)
	return id
}

func (s *Service) emit(ctx context.Context, tx store.Tx, kind string, actor, account model.Address, data map[string]any) error {
	if cause := causeOf(ctx); cause != "" {
		data["cause"] = cause
	}
	if err := tx.AppendRecord(ctx, &model.Record{
		Kind:      kind,
		Actor:     actor,
		Account:   account,
		Data:      data,
		CreatedAt: s.now(),
	}); err != nil {
		return fmt.Errorf("append %s record: %w", kind, err)
	}
	return nil
}

// advance applies the streak window rule to elapsed time since last.
func advance(streak uint64, last, now time.Time) (uint64, bool) {
	if last.IsZero() {
		return 1, true
	}
	elapsed := now.Sub(last)
	switch {
	case elapsed < Day:
		return streak, false
	case elapsed < 2*Day:
		return streak + 1, true
	default:
		return 1, true
	}
}

// credit keeps balances within what storage can hold.
func credit(acc *model.Account, amount uint64) error {
	sum, ok := add(acc.Balance, amount)
	if !ok || sum > math.MaxInt64 {
		return errs.ErrBalanceOverflow
	}
	acc.Balance = sum
	return nil
}

func add(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum >= a
}

func mul(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	return p, p/a == b
}
