package httpapp

import (
	"time"

	"github.com/alphabot-ai/vhibes/internal/model"
)

type levelView struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	MinPoints uint64 `json:"min_points"`
}

type accountView struct {
	Address        model.Address `json:"address"`
	Balance        uint64        `json:"balance"`
	LoginStreak    uint64        `json:"login_streak"`
	LastLoginAt    *time.Time    `json:"last_login_at,omitempty"`
	ActivityStreak uint64        `json:"activity_streak"`
	LastActivityAt *time.Time    `json:"last_activity_at,omitempty"`
	Level          levelView     `json:"level"`
	Participation  uint64        `json:"participation"`
	ChallengeIDs   []int64       `json:"challenge_ids,omitempty"`
	ResponseIDs    []int64       `json:"response_ids,omitempty"`
}

type challengeView struct {
	ID          int64         `json:"id"`
	Initiator   model.Address `json:"initiator"`
	PromptText  string        `json:"prompt_text,omitempty"`
	PromptImage string        `json:"prompt_image,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	ResponseIDs []int64       `json:"response_ids"`
}

type responseView struct {
	ID               int64         `json:"id"`
	Responder        model.Address `json:"responder"`
	ChallengeID      int64         `json:"challenge_id"`
	ParentResponseID int64         `json:"parent_response_id"`
	Text             string        `json:"text,omitempty"`
	Image            string        `json:"image,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	ChildResponseIDs []int64       `json:"child_response_ids"`
}

type threadNodeView struct {
	responseView
	Replies []threadNodeView `json:"replies"`
}

type threadView struct {
	Challenge challengeView    `json:"challenge"`
	Responses []threadNodeView `json:"responses"`
}

type badgeView struct {
	Type        model.BadgeType `json:"type"`
	Name        string          `json:"name"`
	MetadataRef string          `json:"metadata_ref"`
	Requirement uint64          `json:"requirement"`
}

type claimView struct {
	TokenID   int64           `json:"token_id"`
	Account   model.Address   `json:"account"`
	Type      model.BadgeType `json:"type"`
	ClaimedAt time.Time       `json:"claimed_at"`
}

type statusView struct {
	Type     model.BadgeType `json:"type"`
	Required uint64          `json:"required"`
	Actual   uint64          `json:"actual"`
	Claimed  bool            `json:"claimed"`
	Eligible bool            `json:"eligible"`
	Blocker  string          `json:"blocker,omitempty"`
}

type recordView struct {
	ID        string         `json:"id"`
	Seq       int64          `json:"seq"`
	Kind      string         `json:"kind"`
	Actor     model.Address  `json:"actor"`
	Account   model.Address  `json:"account,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toAccountView(a model.Account) accountView {
	return accountView{
		Address:        a.Address,
		Balance:        a.Balance,
		LoginStreak:    a.LoginStreak,
		LastLoginAt:    optionalTime(a.LastLoginAt),
		ActivityStreak: a.ActivityStreak,
		LastActivityAt: optionalTime(a.LastActivityAt),
	}
}

func toChallengeView(c model.Challenge) challengeView {
	ids := c.ResponseIDs
	if ids == nil {
		ids = []int64{}
	}
	return challengeView{
		ID:          c.ID,
		Initiator:   c.Initiator,
		PromptText:  c.PromptText,
		PromptImage: c.PromptImage,
		CreatedAt:   c.CreatedAt,
		ResponseIDs: ids,
	}
}

func toResponseView(r model.Response) responseView {
	ids := r.ChildResponseIDs
	if ids == nil {
		ids = []int64{}
	}
	return responseView{
		ID:               r.ID,
		Responder:        r.Responder,
		ChallengeID:      r.ChallengeID,
		ParentResponseID: r.ParentResponseID,
		Text:             r.Text,
		Image:            r.Image,
		CreatedAt:        r.CreatedAt,
		ChildResponseIDs: ids,
	}
}

// toThreadView walks the tree with an explicit stack so deep chains do not
// grow the goroutine stack.
func toThreadView(th model.Thread) threadView {
	out := threadView{Challenge: toChallengeView(th.Challenge)}
	out.Responses = convertNodes(th.Responses)
	return out
}

func convertNodes(nodes []*model.ThreadNode) []threadNodeView {
	type frame struct {
		src []*model.ThreadNode
		dst *[]threadNodeView
	}
	root := make([]threadNodeView, len(nodes))
	stack := []frame{{src: nodes, dst: &root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for i, n := range f.src {
			(*f.dst)[i] = threadNodeView{
				responseView: toResponseView(n.Response),
				Replies:      make([]threadNodeView, len(n.Children)),
			}
			if len(n.Children) > 0 {
				stack = append(stack, frame{src: n.Children, dst: &(*f.dst)[i].Replies})
			}
		}
	}
	return root
}

func toClaimView(c model.BadgeClaim) claimView {
	return claimView{TokenID: c.TokenID, Account: c.Account, Type: c.Type, ClaimedAt: c.ClaimedAt}
}

func toStatusView(s model.BadgeStatus) statusView {
	return statusView{
		Type:     s.Type,
		Required: s.Required,
		Actual:   s.Actual,
		Claimed:  s.Claimed,
		Eligible: s.Blocker == "",
		Blocker:  s.Blocker,
	}
}

func toRecordView(r model.Record) recordView {
	return recordView{
		ID:        r.ID,
		Seq:       r.Seq,
		Kind:      r.Kind,
		Actor:     r.Actor,
		Account:   r.Account,
		Data:      r.Data,
		CreatedAt: r.CreatedAt,
	}
}
