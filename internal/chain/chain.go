// Package chain stores challenges and their nested response chains, awards
// points for taking part, and ranks participants.
//
// Responses live in an id-indexed arena. A response points at its challenge
// and, when nested, at its parent. Children are read back in id order, which
// is insertion order.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/alphabot-ai/vhibes/internal/access"
	"github.com/alphabot-ai/vhibes/internal/errs"
	"github.com/alphabot-ai/vhibes/internal/ledger"
	"github.com/alphabot-ai/vhibes/internal/model"
	"github.com/alphabot-ai/vhibes/internal/store"
)

const (
	MaxActiveChallenges = 50
	MaxTopParticipants  = 100

	paramPerChallenge = "chain.per_challenge"
	paramPerResponse  = "chain.per_response"
)

type Params struct {
	PerChallenge uint64 `json:"per_challenge"`
	PerResponse  uint64 `json:"per_response"`
}

var DefaultParams = Params{PerChallenge: 20, PerResponse: 10}

type Options struct {
	// Identity is who the service acts as when it calls the ledger. It must
	// be in the authorization registry or every start and join fails.
	Identity model.Address
	Defaults *Params
	Now      func() time.Time
}

type Service struct {
	store    store.Store
	access   *access.Registry
	ledger   *ledger.Service
	identity model.Address
	defaults Params
	now      func() time.Time
}

func New(st store.Store, reg *access.Registry, l *ledger.Service, opts Options) *Service {
	defaults := DefaultParams
	if opts.Defaults != nil {
		defaults = *opts.Defaults
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	identity := opts.Identity
	if identity.IsZero() {
		identity = model.Address(model.SourceChain)
	}
	return &Service{
		store:    st,
		access:   reg,
		ledger:   l,
		identity: identity,
		defaults: defaults,
		now:      now,
	}
}

func (s *Service) Identity() model.Address { return s.identity }

func (s *Service) StartChallenge(ctx context.Context, initiator model.Address, text, image string) (int64, error) {
	if initiator.IsZero() {
		return 0, errs.ErrEmptyAddress
	}
	if text == "" && image == "" {
		return 0, errs.ErrEmptyChallenge
	}
	var id int64
	err := s.store.Update(ctx, func(tx store.Tx) error {
		params, err := s.paramsTx(ctx, tx)
		if err != nil {
			return err
		}
		now := s.now()
		id, err = tx.CreateChallenge(ctx, &model.Challenge{
			Initiator:   initiator,
			PromptText:  text,
			PromptImage: image,
			CreatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("create challenge: %w", err)
		}
		recordID := uuid.NewString()
		if err := s.award(ledger.WithCause(ctx, recordID), tx, initiator, params.PerChallenge, fmt.Sprintf("started challenge %d", id)); err != nil {
			return err
		}
		return tx.AppendRecord(ctx, &model.Record{
			ID:      recordID,
			Kind:    model.RecordChallengeStarted,
			Actor:   initiator,
			Account: initiator,
			Data: map[string]any{
				"challenge_id": id,
				"prompt_text":  text,
				"prompt_image": image,
			},
			CreatedAt: now,
		})
	})
	if err != nil {
		return 0, err
	}
	log.Printf("challenge %d started by %s", id, initiator)
	return id, nil
}

func (s *Service) JoinChallenge(ctx context.Context, responder model.Address, challengeID, parentID int64, text, image string) (int64, error) {
	if responder.IsZero() {
		return 0, errs.ErrEmptyAddress
	}
	var id int64
	err := s.store.Update(ctx, func(tx store.Tx) error {
		ok, err := tx.ChallengeExists(ctx, challengeID)
		if err != nil {
			return fmt.Errorf("lookup challenge: %w", err)
		}
		if !ok {
			return errs.ErrChallengeNotFound
		}
		if text == "" && image == "" {
			return errs.ErrEmptyResponse
		}
		if parentID != 0 {
			parent, err := tx.GetResponse(ctx, parentID)
			if errors.Is(err, store.ErrNotFound) {
				return errs.ErrParentNotFound
			}
			if err != nil {
				return fmt.Errorf("lookup parent: %w", err)
			}
			if parent.ChallengeID != challengeID {
				return errs.ErrParentChallengeMismatch
			}
		}
		params, err := s.paramsTx(ctx, tx)
		if err != nil {
			return err
		}
		now := s.now()
		id, err = tx.CreateResponse(ctx, &model.Response{
			Responder:        responder,
			ChallengeID:      challengeID,
			ParentResponseID: parentID,
			Text:             text,
			Image:            image,
			CreatedAt:        now,
		})
		if err != nil {
			return fmt.Errorf("create response: %w", err)
		}
		recordID := uuid.NewString()
		if err := s.award(ledger.WithCause(ctx, recordID), tx, responder, params.PerResponse, fmt.Sprintf("joined challenge %d", challengeID)); err != nil {
			return err
		}
		return tx.AppendRecord(ctx, &model.Record{
			ID:      recordID,
			Kind:    model.RecordChallengeJoined,
			Actor:   responder,
			Account: responder,
			Data: map[string]any{
				"challenge_id":       challengeID,
				"response_id":        id,
				"parent_response_id": parentID,
			},
			CreatedAt: now,
		})
	})
	if err != nil {
		return 0, err
	}
	log.Printf("response %d on challenge %d by %s", id, challengeID, responder)
	return id, nil
}

// award pays the author and advances their activity streak, acting as the
// service identity.
func (s *Service) award(ctx context.Context, tx store.Tx, account model.Address, amount uint64, reason string) error {
	if _, err := s.ledger.Earn(ctx, tx, s.identity, account, amount, reason); err != nil {
		return err
	}
	if _, err := s.ledger.RecordActivityTx(ctx, tx, s.identity, account); err != nil {
		return err
	}
	return nil
}

func (s *Service) GetChallenge(ctx context.Context, id int64) (model.Challenge, error) {
	var c model.Challenge
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		c, err = getChallenge(ctx, tx, id)
		return err
	})
	return c, err
}

func (s *Service) GetResponse(ctx context.Context, id int64) (model.Response, error) {
	var r model.Response
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		r, err = tx.GetResponse(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return errs.ErrResponseNotFound
		}
		return err
	})
	return r, err
}

// ChallengeResponseCount counts top-level responses only.
func (s *Service) ChallengeResponseCount(ctx context.Context, id int64) (uint64, error) {
	var n uint64
	err := s.store.View(ctx, func(tx store.Tx) error {
		ok, err := tx.ChallengeExists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return errs.ErrChallengeNotFound
		}
		n, err = tx.CountChildren(ctx, id, 0)
		return err
	})
	return n, err
}

// ResponseChildCount counts direct replies only.
func (s *Service) ResponseChildCount(ctx context.Context, id int64) (uint64, error) {
	var n uint64
	err := s.store.View(ctx, func(tx store.Tx) error {
		r, err := tx.GetResponse(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return errs.ErrResponseNotFound
		}
		if err != nil {
			return err
		}
		n = uint64(len(r.ChildResponseIDs))
		return nil
	})
	return n, err
}

// ActiveChallenges returns up to limit challenge ids, newest first.
func (s *Service) ActiveChallenges(ctx context.Context, limit int) ([]int64, error) {
	if err := checkLimit(limit, MaxActiveChallenges); err != nil {
		return nil, err
	}
	var ids []int64
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		ids, err = tx.ListChallengeIDs(ctx, limit)
		return err
	})
	return ids, err
}

// ParticipationCount is the number of responses authored by account.
// Started challenges do not count.
func (s *Service) ParticipationCount(ctx context.Context, account model.Address) (uint64, error) {
	var n uint64
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		n, err = tx.CountResponsesByAccount(ctx, account)
		return err
	})
	return n, err
}

// TopParticipants ranks accounts by response count. Ties go to whoever
// responded first.
func (s *Service) TopParticipants(ctx context.Context, limit int) ([]model.Address, []uint64, error) {
	if err := checkLimit(limit, MaxTopParticipants); err != nil {
		return nil, nil, err
	}
	var top []model.Participant
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		top, err = tx.TopResponders(ctx, limit)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	accounts := make([]model.Address, 0, len(top))
	counts := make([]uint64, 0, len(top))
	for _, p := range top {
		accounts = append(accounts, p.Account)
		counts = append(counts, p.Count)
	}
	return accounts, counts, nil
}

func (s *Service) UserChallenges(ctx context.Context, account model.Address) ([]int64, error) {
	var ids []int64
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		ids, err = tx.ListChallengeIDsByAccount(ctx, account)
		return err
	})
	return ids, err
}

func (s *Service) UserResponses(ctx context.Context, account model.Address) ([]int64, error) {
	var ids []int64
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		ids, err = tx.ListResponseIDsByAccount(ctx, account)
		return err
	})
	return ids, err
}

// Profile is one account's ledger state and chain history, read together.
type Profile struct {
	Account       model.Account
	Participation uint64
	ChallengeIDs  []int64
	ResponseIDs   []int64
}

// Profile reads everything in one unit of work so the parts agree.
func (s *Service) Profile(ctx context.Context, account model.Address) (Profile, error) {
	var p Profile
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		if p.Account, err = s.ledger.AccountTx(ctx, tx, account); err != nil {
			return err
		}
		if p.Participation, err = tx.CountResponsesByAccount(ctx, account); err != nil {
			return fmt.Errorf("count responses: %w", err)
		}
		if p.ChallengeIDs, err = tx.ListChallengeIDsByAccount(ctx, account); err != nil {
			return fmt.Errorf("list challenges: %w", err)
		}
		if p.ResponseIDs, err = tx.ListResponseIDsByAccount(ctx, account); err != nil {
			return fmt.Errorf("list responses: %w", err)
		}
		return nil
	})
	return p, err
}

// Thread assembles the whole challenge as nested nodes. The arena is walked
// once in id order, so parents are always seen before their replies.
func (s *Service) Thread(ctx context.Context, challengeID int64) (model.Thread, error) {
	var th model.Thread
	err := s.store.View(ctx, func(tx store.Tx) error {
		c, err := getChallenge(ctx, tx, challengeID)
		if err != nil {
			return err
		}
		responses, err := tx.ListResponsesByChallenge(ctx, challengeID)
		if err != nil {
			return fmt.Errorf("list responses: %w", err)
		}
		th.Challenge = c
		th.Responses = []*model.ThreadNode{}
		nodes := make(map[int64]*model.ThreadNode, len(responses))
		for _, r := range responses {
			node := &model.ThreadNode{Response: r, Children: []*model.ThreadNode{}}
			nodes[r.ID] = node
			if r.ParentResponseID == 0 {
				th.Responses = append(th.Responses, node)
				continue
			}
			if parent, ok := nodes[r.ParentResponseID]; ok {
				parent.Children = append(parent.Children, node)
			}
		}
		return nil
	})
	return th, err
}

func (s *Service) SetPoints(ctx context.Context, caller model.Address, p Params) error {
	return s.store.Update(ctx, func(tx store.Tx) error {
		if err := s.access.RequireOwner(caller); err != nil {
			return err
		}
		if err := tx.SetParam(ctx, paramPerChallenge, p.PerChallenge); err != nil {
			return fmt.Errorf("set %s: %w", paramPerChallenge, err)
		}
		if err := tx.SetParam(ctx, paramPerResponse, p.PerResponse); err != nil {
			return fmt.Errorf("set %s: %w", paramPerResponse, err)
		}
		return tx.AppendRecord(ctx, &model.Record{
			Kind:  model.RecordParamsChanged,
			Actor: caller,
			Data: map[string]any{
				"component":     "chain",
				"per_challenge": p.PerChallenge,
				"per_response":  p.PerResponse,
			},
			CreatedAt: s.now(),
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
	if v, ok, err := tx.GetParam(ctx, paramPerChallenge); err != nil {
		return Params{}, fmt.Errorf("get %s: %w", paramPerChallenge, err)
	} else if ok {
		p.PerChallenge = v
	}
	if v, ok, err := tx.GetParam(ctx, paramPerResponse); err != nil {
		return Params{}, fmt.Errorf("get %s: %w", paramPerResponse, err)
	} else if ok {
		p.PerResponse = v
	}
	return p, nil
}

// Name makes the service the chain activity source.
func (s *Service) Name() model.SourceName { return model.SourceChain }

// ActivityCount reports participation for badge checks.
func (s *Service) ActivityCount(ctx context.Context, tx store.Tx, account model.Address) (uint64, error) {
	return tx.CountResponsesByAccount(ctx, account)
}

func getChallenge(ctx context.Context, tx store.Tx, id int64) (model.Challenge, error) {
	c, err := tx.GetChallenge(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Challenge{}, errs.ErrChallengeNotFound
	}
	return c, err
}

func checkLimit(limit, ceiling int) error {
	if limit < 0 {
		return errs.ErrInvalidLimit
	}
	if limit > ceiling {
		return errs.WithMetadata(errs.CodeLimitTooHigh, fmt.Sprintf("limit %d exceeds %d", limit, ceiling),
			map[string]string{"max": fmt.Sprint(ceiling)})
	}
	return nil
}
