package httpapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alphabot-ai/vhibes/internal/activity"
	"github.com/alphabot-ai/vhibes/internal/auth"
	"github.com/alphabot-ai/vhibes/internal/badge"
	"github.com/alphabot-ai/vhibes/internal/chain"
	"github.com/alphabot-ai/vhibes/internal/config"
	"github.com/alphabot-ai/vhibes/internal/errs"
	"github.com/alphabot-ai/vhibes/internal/ledger"
	"github.com/alphabot-ai/vhibes/internal/model"
	"github.com/alphabot-ai/vhibes/internal/rate"
	"github.com/alphabot-ai/vhibes/internal/store"

	_ "github.com/alphabot-ai/vhibes/docs" // swagger docs

	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// Build metadata, set with -ldflags at link time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

const (
	defaultActiveLimit      = 20
	defaultParticipantLimit = 10
	defaultRecordLimit      = 100
	maxRecordLimit          = 500
)

// Services are the domain components the API exposes.
type Services struct {
	Ledger  *ledger.Service
	Chain   *chain.Service
	Badges  *badge.Engine
	Tallies map[model.SourceName]*activity.Tally
	Auth    *auth.Service
}

type Server struct {
	store   store.Store
	svc     Services
	limiter rate.Limiter
	cfg     config.Config
}

func NewServer(st store.Store, svc Services, limiter rate.Limiter, cfg config.Config) *Server {
	return &Server{store: st, svc: svc, limiter: limiter, cfg: cfg}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		s.handleAPI(w, r)
		return
	}
	if strings.HasPrefix(r.URL.Path, "/swagger/") {
		httpSwagger.WrapHandler.ServeHTTP(w, r)
		return
	}
	notFound(w)
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api")
	segments := splitPath(path)

	switch {
	case len(segments) == 2 && segments[0] == "auth" && segments[1] == "challenge":
		if r.Method == http.MethodPost {
			s.handleAuthChallenge(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "auth" && segments[1] == "verify":
		if r.Method == http.MethodPost {
			s.handleAuthVerify(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "levels":
		if r.Method == http.MethodGet {
			s.handleLevels(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "accounts":
		if r.Method == http.MethodGet {
			s.handleGetAccount(w, r, segments[1])
			return
		}
	case len(segments) == 3 && segments[0] == "accounts" && segments[2] == "badges":
		if r.Method == http.MethodGet {
			s.handleAccountBadges(w, r, segments[1])
			return
		}
	case len(segments) == 1 && segments[0] == "login":
		if r.Method == http.MethodPost {
			s.handleDailyLogin(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "points" && (segments[1] == "earn" || segments[1] == "deduct"):
		if r.Method == http.MethodPost {
			s.handlePoints(w, r, segments[1])
			return
		}
	case len(segments) == 1 && segments[0] == "activity":
		if r.Method == http.MethodPost {
			s.handleActivity(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "challenges":
		if r.Method == http.MethodPost {
			s.handleCreateChallenge(w, r)
			return
		}
		if r.Method == http.MethodGet {
			s.handleListChallenges(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "challenges":
		if r.Method == http.MethodGet {
			s.handleGetChallenge(w, r, segments[1])
			return
		}
	case len(segments) == 3 && segments[0] == "challenges" && segments[2] == "thread":
		if r.Method == http.MethodGet {
			s.handleThread(w, r, segments[1])
			return
		}
	case len(segments) == 1 && segments[0] == "responses":
		if r.Method == http.MethodPost {
			s.handleCreateResponse(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "responses":
		if r.Method == http.MethodGet {
			s.handleGetResponse(w, r, segments[1])
			return
		}
	case len(segments) == 1 && segments[0] == "participants":
		if r.Method == http.MethodGet {
			s.handleParticipants(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "badges":
		if r.Method == http.MethodGet {
			s.handleListBadges(w, r)
			return
		}
	case len(segments) == 3 && segments[0] == "badges" && segments[2] == "claim":
		if r.Method == http.MethodPost {
			s.handleClaimBadge(w, r, segments[1])
			return
		}
	case len(segments) == 1 && segments[0] == "records":
		if r.Method == http.MethodGet {
			s.handleRecords(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "admin" && segments[1] == "authorize":
		if r.Method == http.MethodPost {
			s.handleAdminAuthorize(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "admin" && segments[1] == "ledger-points":
		if r.Method == http.MethodPost {
			s.handleAdminLedgerPoints(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "admin" && segments[1] == "chain-points":
		if r.Method == http.MethodPost {
			s.handleAdminChainPoints(w, r)
			return
		}
	case len(segments) == 3 && segments[0] == "admin" && segments[1] == "badges":
		if r.Method == http.MethodPost {
			s.handleAdminBadge(w, r, segments[2])
			return
		}
	case len(segments) == 2 && segments[0] == "admin" && segments[1] == "sources":
		if r.Method == http.MethodPost {
			s.handleAdminSources(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "version":
		if r.Method == http.MethodGet {
			s.handleVersion(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "openapi.json":
		if r.Method == http.MethodGet {
			s.serveOpenAPIJSON(w, r)
			return
		}
	}

	notFound(w)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    Version,
		"commit":     Commit,
		"build_time": BuildTime,
	})
}

func (s *Server) serveOpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, doc)
}

// handleAuthChallenge godoc
//
//	@Summary		Get an authentication challenge
//	@Description	Step 1 of the login flow: request a message to sign with the address key.
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			request	body		object{address=string}	true	"Address to log in as"
//	@Success		200		{object}	map[string]interface{}	"Challenge and expiry"
//	@Router			/api/auth/challenge [post]
func (s *Server) handleAuthChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	address := model.NormalizeAddress(req.Address)
	if address.IsZero() {
		writeError(w, http.StatusBadRequest, errors.New("address required"))
		return
	}
	challenge, err := s.svc.Auth.CreateChallenge(r.Context(), address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"challenge":  challenge.Challenge,
		"expires_at": challenge.ExpiresAt,
	})
}

// handleAuthVerify godoc
//
//	@Summary		Verify signature and get token
//	@Description	Step 2 of the login flow: exchange the personal-sign signature of the challenge for a bearer token.
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			request	body		object{address=string,challenge=string,signature=string}	true	"Signed challenge"
//	@Success		200		{object}	map[string]interface{}	"Access token with expiration"
//	@Failure		401		{object}	map[string]string		"Invalid signature"
//	@Router			/api/auth/verify [post]
func (s *Server) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address   string `json:"address"`
		Challenge string `json:"challenge"`
		Signature string `json:"signature"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Address == "" || req.Challenge == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing fields"))
		return
	}
	address := model.NormalizeAddress(req.Address)
	token, err := s.svc.Auth.VerifyAndCreateToken(r.Context(), address, req.Challenge, strings.TrimSpace(req.Signature))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token.Token,
		"address":      token.Address,
		"expires_at":   token.ExpiresAt,
	})
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	levels := s.svc.Ledger.Levels()
	out := make([]levelView, 0, len(levels))
	for i, l := range levels {
		out = append(out, levelView{Index: i, Name: l.Name, MinPoints: l.MinPoints})
	}
	writeJSON(w, http.StatusOK, map[string]any{"levels": out})
}

// handleGetAccount godoc
//
//	@Summary		Get account
//	@Description	Balance, streaks, level and chain participation for an address.
//	@Tags			Accounts
//	@Produce		json
//	@Param			address	path		string	true	"Account address"
//	@Success		200		{object}	accountView
//	@Router			/api/accounts/{address} [get]
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request, raw string) {
	ctx := r.Context()
	address := model.NormalizeAddress(raw)
	p, err := s.svc.Chain.Profile(ctx, address)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	lvl, idx := s.svc.Ledger.LevelFor(p.Account.Balance)
	view := toAccountView(p.Account)
	view.Level = levelView{Index: idx, Name: lvl.Name, MinPoints: lvl.MinPoints}
	view.Participation = p.Participation
	view.ChallengeIDs = p.ChallengeIDs
	view.ResponseIDs = p.ResponseIDs
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAccountBadges(w http.ResponseWriter, r *http.Request, raw string) {
	ctx := r.Context()
	address := model.NormalizeAddress(raw)
	claims, err := s.svc.Badges.Claims(ctx, address)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	report, err := s.svc.Badges.Eligibility(ctx, address)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	claimViews := make([]claimView, 0, len(claims))
	for _, c := range claims {
		claimViews = append(claimViews, toClaimView(c))
	}
	statusViews := make([]statusView, 0, len(report))
	for _, st := range report {
		statusViews = append(statusViews, toStatusView(st))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"claims":      claimViews,
		"eligibility": statusViews,
	})
}

// handleDailyLogin godoc
//
//	@Summary		Daily login
//	@Description	Counts a login for the caller. Repeats within 24h are a no-op.
//	@Tags			Points
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	map[string]interface{}
//	@Router			/api/login [post]
func (s *Server) handleDailyLogin(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	if !s.allowRateLimit(w, r, "login", caller, rate.PerMinute(s.cfg.RateLimits.LoginPerMinute)) {
		return
	}
	res, err := s.svc.Ledger.DailyLogin(r.Context(), caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"counted": res.Counted,
		"awarded": res.Awarded,
		"account": toAccountView(res.Account),
	})
}

func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request, op string) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req struct {
		Account string `json:"account"`
		Amount  uint64 `json:"amount"`
		Reason  string `json:"reason"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	account := model.NormalizeAddress(req.Account)
	var balance uint64
	var err error
	if op == "earn" {
		balance, err = s.svc.Ledger.EarnPoints(r.Context(), caller, account, req.Amount, req.Reason)
	} else {
		balance, err = s.svc.Ledger.DeductPoints(r.Context(), caller, account, req.Amount, req.Reason)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": account, "balance": balance})
}

// handleActivity godoc
//
//	@Summary		Report activity
//	@Description	An authorized collaborator reports one activity for an account.
//	@Tags			Activity
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		object{source=string,account=string}	true	"Activity"
//	@Success		200		{object}	map[string]interface{}
//	@Failure		403		{object}	map[string]string	"Caller not authorized"
//	@Router			/api/activity [post]
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req struct {
		Source  string `json:"source"`
		Account string `json:"account"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tally, ok := s.svc.Tallies[model.SourceName(req.Source)]
	if !ok {
		writeDomainError(w, errs.ErrUnknownSource)
		return
	}
	account := model.NormalizeAddress(req.Account)
	count, err := tally.Record(r.Context(), caller, account)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": req.Source, "account": account, "count": count})
}

// handleCreateChallenge godoc
//
//	@Summary		Start a challenge
//	@Description	Creates a challenge with a text prompt, an image reference, or both. Awards points to the initiator.
//	@Tags			Challenges
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			challenge	body		object{prompt_text=string,prompt_image=string}	true	"Prompt"
//	@Success		201			{object}	challengeView
//	@Failure		400			{object}	map[string]string	"Empty prompt"
//	@Router			/api/challenges [post]
func (s *Server) handleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	if !s.allowRateLimit(w, r, "challenge", caller, rate.PerMinute(s.cfg.RateLimits.ChallengePerMinute)) {
		return
	}
	var req struct {
		PromptText  string `json:"prompt_text"`
		PromptImage string `json:"prompt_image"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.svc.Chain.StartChallenge(r.Context(), caller, req.PromptText, req.PromptImage)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	c, err := s.svc.Chain.GetChallenge(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChallengeView(c))
}

// handleListChallenges godoc
//
//	@Summary		Active challenges
//	@Description	Most recently created challenges, newest first.
//	@Tags			Challenges
//	@Produce		json
//	@Param			limit	query		int	false	"Max results"	default(20)	maximum(50)
//	@Success		200		{object}	map[string]interface{}
//	@Failure		400		{object}	map[string]string	"Limit too high"
//	@Router			/api/challenges [get]
func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultActiveLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ids, err := s.svc.Chain.ActiveChallenges(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	challenges := make([]challengeView, 0, len(ids))
	for _, id := range ids {
		c, err := s.svc.Chain.GetChallenge(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		challenges = append(challenges, toChallengeView(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids, "challenges": challenges})
}

func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid challenge id"))
		return
	}
	c, err := s.svc.Chain.GetChallenge(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChallengeView(c))
}

// handleThread godoc
//
//	@Summary		Challenge thread
//	@Description	The challenge with every response nested under its parent, replies in posting order.
//	@Tags			Challenges
//	@Produce		json
//	@Param			id	path		int	true	"Challenge ID"
//	@Success		200	{object}	threadView
//	@Failure		404	{object}	map[string]string	"Challenge not found"
//	@Router			/api/challenges/{id}/thread [get]
func (s *Server) handleThread(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid challenge id"))
		return
	}
	th, err := s.svc.Chain.Thread(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toThreadView(th))
}

// handleCreateResponse godoc
//
//	@Summary		Join a challenge
//	@Description	Responds to a challenge, or to an earlier response when parent_response_id is set. Awards points to the responder.
//	@Tags			Challenges
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			response	body		object{challenge_id=int,parent_response_id=int,text=string,image=string}	true	"Response"
//	@Success		201			{object}	responseView
//	@Failure		400			{object}	map[string]string	"Empty response or bad parent"
//	@Failure		404			{object}	map[string]string	"Challenge not found"
//	@Router			/api/responses [post]
func (s *Server) handleCreateResponse(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	if !s.allowRateLimit(w, r, "response", caller, rate.PerMinute(s.cfg.RateLimits.ResponsePerMinute)) {
		return
	}
	var req struct {
		ChallengeID      int64  `json:"challenge_id"`
		ParentResponseID int64  `json:"parent_response_id"`
		Text             string `json:"text"`
		Image            string `json:"image"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ParentResponseID < 0 {
		writeDomainError(w, errs.ErrParentNotFound)
		return
	}
	id, err := s.svc.Chain.JoinChallenge(r.Context(), caller, req.ChallengeID, req.ParentResponseID, req.Text, req.Image)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp, err := s.svc.Chain.GetResponse(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponseView(resp))
}

func (s *Server) handleGetResponse(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid response id"))
		return
	}
	resp, err := s.svc.Chain.GetResponse(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponseView(resp))
}

func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultParticipantLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	accounts, counts, err := s.svc.Chain.TopParticipants(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts, "counts": counts})
}

func (s *Server) handleListBadges(w http.ResponseWriter, r *http.Request) {
	configs, err := s.svc.Badges.Badges(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]badgeView, 0, len(configs))
	for _, c := range configs {
		out = append(out, badgeView{
			Type:        c.Type,
			Name:        c.Type.DisplayName(),
			MetadataRef: c.MetadataRef,
			Requirement: c.Requirement,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"badges": out, "sources": s.svc.Badges.Sources()})
}

// handleClaimBadge godoc
//
//	@Summary		Claim a badge
//	@Description	Mints the badge for the caller when eligible. Each badge can be claimed once per account.
//	@Tags			Badges
//	@Produce		json
//	@Security		BearerAuth
//	@Param			type	path		string	true	"Badge type"	Enums(first_activity, login_streak, activity_streak, top_roaster, chain_master, icebreaker)
//	@Success		201		{object}	claimView
//	@Failure		409		{object}	map[string]interface{}	"Already claimed, not configured or requirement not met"
//	@Router			/api/badges/{type}/claim [post]
func (s *Server) handleClaimBadge(w http.ResponseWriter, r *http.Request, badgeType string) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	if !s.allowRateLimit(w, r, "claim", caller, rate.PerMinute(s.cfg.RateLimits.ClaimPerMinute)) {
		return
	}
	claim, err := s.svc.Badges.Claim(r.Context(), caller, model.BadgeType(badgeType))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClaimView(claim))
}

// handleRecords godoc
//
//	@Summary		Change records
//	@Description	Every successful mutation in commit order, for external indexers. Page with after=<last seq>.
//	@Tags			Records
//	@Produce		json
//	@Param			after	query		int	false	"Return records with seq greater than this"
//	@Param			limit	query		int	false	"Max results"	default(100)	maximum(500)
//	@Success		200		{object}	map[string]interface{}
//	@Router			/api/records [get]
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after := parseInt64Default(q.Get("after"), 0)
	limit, err := parseLimit(q.Get("limit"), defaultRecordLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if limit > maxRecordLimit {
		writeDomainError(w, errs.ErrLimitTooHigh)
		return
	}
	var records []model.Record
	err = s.store.View(r.Context(), func(tx store.Tx) error {
		var err error
		records, err = tx.ListRecords(r.Context(), after, limit)
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]recordView, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordView(rec))
	}
	next := after
	if len(records) > 0 {
		next = records[len(records)-1].Seq
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out, "next": next})
}

func (s *Server) handleAdminAuthorize(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req struct {
		Identity   string `json:"identity"`
		Authorized *bool  `json:"authorized"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	authorized := req.Authorized == nil || *req.Authorized
	identity := model.NormalizeAddress(req.Identity)
	var err error
	if authorized {
		err = s.svc.Ledger.Authorize(r.Context(), caller, identity)
	} else {
		err = s.svc.Ledger.Deauthorize(r.Context(), caller, identity)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"identity": identity, "authorized": authorized})
}

func (s *Server) handleAdminLedgerPoints(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req ledger.Params
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.svc.Ledger.SetPoints(r.Context(), caller, req); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleAdminChainPoints(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req chain.Params
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.svc.Chain.SetPoints(r.Context(), caller, req); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleAdminBadge(w http.ResponseWriter, r *http.Request, badgeType string) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req struct {
		MetadataRef *string `json:"metadata_ref"`
		Requirement *uint64 `json:"requirement"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.MetadataRef == nil && req.Requirement == nil {
		writeError(w, http.StatusBadRequest, errors.New("metadata_ref or requirement required"))
		return
	}
	bt := model.BadgeType(badgeType)
	if req.MetadataRef != nil {
		if err := s.svc.Badges.SetBadgeMetadata(r.Context(), caller, bt, *req.MetadataRef); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	if req.Requirement != nil {
		if err := s.svc.Badges.SetRequirement(r.Context(), caller, bt, *req.Requirement); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAdminSources(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	var req struct {
		Sources []string `json:"sources"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	names := make([]model.SourceName, 0, len(req.Sources))
	for _, src := range req.Sources {
		names = append(names, model.SourceName(strings.TrimSpace(src)))
	}
	if err := s.svc.Badges.SetActivitySources(r.Context(), caller, names); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": s.svc.Badges.Sources()})
}

func (s *Server) allowRateLimit(w http.ResponseWriter, r *http.Request, action string, caller model.Address, rule rate.Rule) bool {
	if rule.Limit <= 0 {
		return true
	}
	ipKey := fmt.Sprintf("%s:ip:%s", action, s.clientIP(r))
	if ok, retry := s.limiter.Allow(ipKey, rule); !ok {
		writeRateLimit(w, retry)
		return false
	}
	callerKey := fmt.Sprintf("%s:addr:%s", action, caller)
	if ok, retry := s.limiter.Allow(callerKey, rule); !ok {
		writeRateLimit(w, retry)
		return false
	}
	return true
}

// caller resolves who is making the request. The admin secret acts as the
// owner; otherwise a bearer token names the address.
func (s *Server) caller(ctx context.Context, r *http.Request) (model.Address, error) {
	if secret := r.Header.Get("X-Admin-Secret"); secret != "" {
		if s.cfg.AdminSecret == "" || secret != s.cfg.AdminSecret {
			return "", errors.New("invalid admin secret")
		}
		return model.NormalizeAddress(s.cfg.Owner), nil
	}
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", errors.New("missing bearer token")
	}
	bearer := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return s.svc.Auth.Authenticate(ctx, bearer)
}

func (s *Server) requireCaller(w http.ResponseWriter, r *http.Request) (model.Address, bool) {
	addr, err := s.caller(r.Context(), r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return "", false
	}
	return addr, true
}

func (s *Server) clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// statusFor maps the domain error taxonomy onto HTTP.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindUnauthorized:
		return http.StatusForbidden
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindInvalidInput, errs.KindInsufficientBalance, errs.KindLimitTooHigh:
		return http.StatusBadRequest
	case errs.KindAlreadyClaimed, errs.KindRequirementNotMet, errs.KindMetadataNotSet, errs.KindSourceNotConfigured:
		return http.StatusConflict
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := map[string]any{"error": err.Error()}
	var e *errs.Error
	if errors.As(err, &e) {
		body["code"] = e.Code
		if len(e.Metadata) > 0 {
			body["metadata"] = e.Metadata
		}
	}
	writeJSON(w, status, body)
}

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeRateLimit(w http.ResponseWriter, retry time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate limit exceeded",
		"retry_after": int(retry.Seconds()),
	})
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, errors.New("not found"))
}

// parseLimit keeps negative and oversize values so the services can reject
// them; only garbage is refused here.
func parseLimit(value string, def int) (int, error) {
	if value == "" {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.New("invalid limit")
	}
	return n, nil
}

func parseInt64Default(value string, def int64) int64 {
	if value == "" {
		return def
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	return def
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
