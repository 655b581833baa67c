package httpapp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alphabot-ai/vhibes/internal/client"
	"github.com/alphabot-ai/vhibes/internal/config"
	httpapp "github.com/alphabot-ai/vhibes/internal/http"
	"github.com/alphabot-ai/vhibes/internal/model"
	"github.com/alphabot-ai/vhibes/internal/rate"
	"github.com/alphabot-ai/vhibes/internal/store/sqlite"
)

const adminSecret = "admin"

type testEnv struct {
	server *httptest.Server
	helper *client.TestHelper
	admin  *client.Client
}

func testConfig() config.Config {
	return config.Config{
		Owner:         "owner",
		AdminSecret:   adminSecret,
		ChainIdentity: "chain",
		TokenTTL:      time.Hour,
		ChallengeTTL:  time.Minute,
		Sources:       []string{"roast", "chain", "icebreaker"},
		Points: config.Points{
			DailyLogin:          5,
			StreakBonus:         2,
			ActivityStreakBonus: 3,
			PerChallenge:        20,
			PerResponse:         10,
		},
		RateLimits: config.RateLimits{
			ChallengePerMinute: 1000,
			ResponsePerMinute:  1000,
			ClaimPerMinute:     1000,
			LoginPerMinute:     1000,
		},
	}
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	st, err := sqlite.Open("file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	svc, err := httpapp.NewServices(context.Background(), st, cfg, nil)
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	server := httpapp.NewServer(st, svc, rate.NewMemory(), cfg)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	helper := client.NewTestHelper(ts.URL)
	return &testEnv{server: ts, helper: helper, admin: helper.Admin(adminSecret)}
}

func (e *testEnv) user(t *testing.T) (*client.Client, *client.Credentials) {
	t.Helper()
	c, creds, err := e.helper.CreateAuthenticatedClient()
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return c, creds
}

func (e *testEnv) post(t *testing.T, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response, out *T) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestChallengeResponseFlow(t *testing.T) {
	env := newTestEnv(t, testConfig())
	alice, aliceCreds := env.user(t)
	bob, bobCreds := env.user(t)
	carol, _ := env.user(t)

	ch, err := alice.StartChallenge("roast my code", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if ch.ID != 1 || ch.Initiator != aliceCreds.Address || len(ch.ResponseIDs) != 0 {
		t.Fatalf("unexpected challenge %+v", ch)
	}

	first, err := bob.JoinChallenge(ch.ID, 0, "it compiles, barely", "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	reply, err := carol.JoinChallenge(ch.ID, first.ID, "", "ipfs://burn")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply.ParentResponseID != first.ID {
		t.Fatalf("unexpected parent %d", reply.ParentResponseID)
	}

	got, err := alice.GetChallenge(ch.ID)
	if err != nil {
		t.Fatalf("get challenge: %v", err)
	}
	if len(got.ResponseIDs) != 1 || got.ResponseIDs[0] != first.ID {
		t.Fatalf("top-level responses should be [%d], got %v", first.ID, got.ResponseIDs)
	}
	parent, err := alice.GetResponse(first.ID)
	if err != nil {
		t.Fatalf("get response: %v", err)
	}
	if len(parent.ChildResponseIDs) != 1 || parent.ChildResponseIDs[0] != reply.ID {
		t.Fatalf("unexpected children %v", parent.ChildResponseIDs)
	}

	th, err := alice.Thread(ch.ID)
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	if len(th.Responses) != 1 || len(th.Responses[0].Replies) != 1 || th.Responses[0].Replies[0].Image != "ipfs://burn" {
		t.Fatalf("unexpected thread %+v", th)
	}

	acc, err := alice.GetAccount(aliceCreds.Address)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acc.Balance != 20 || acc.Participation != 0 || acc.Level.Name != "Vibe Newbie" {
		t.Fatalf("unexpected alice %+v", acc)
	}
	acc, err = bob.GetAccount(bobCreds.Address)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acc.Balance != 10 || acc.ActivityStreak != 1 || acc.Participation != 1 {
		t.Fatalf("unexpected bob %+v", acc)
	}

	top, err := alice.TopParticipants(10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].Address != bobCreds.Address || top[0].Count != 1 {
		t.Fatalf("expected bob then carol, got %+v", top)
	}
}

func TestTreeValidation(t *testing.T) {
	env := newTestEnv(t, testConfig())
	alice, _ := env.user(t)

	_, err := alice.StartChallenge("", "")
	if client.CodeOf(err) != "EMPTY_CHALLENGE" {
		t.Fatalf("expected EMPTY_CHALLENGE, got %v", err)
	}
	_, err = alice.JoinChallenge(99, 0, "hi", "")
	if client.CodeOf(err) != "CHALLENGE_NOT_FOUND" {
		t.Fatalf("expected CHALLENGE_NOT_FOUND, got %v", err)
	}

	first, _ := alice.StartChallenge("one", "")
	second, _ := alice.StartChallenge("two", "")
	resp, err := alice.JoinChallenge(first.ID, 0, "answer", "")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	_, err = alice.JoinChallenge(second.ID, resp.ID, "wrong tree", "")
	if client.CodeOf(err) != "PARENT_CHALLENGE_MISMATCH" {
		t.Fatalf("expected PARENT_CHALLENGE_MISMATCH, got %v", err)
	}
	_, err = alice.JoinChallenge(first.ID, 0, "", "")
	if client.CodeOf(err) != "EMPTY_RESPONSE" {
		t.Fatalf("expected EMPTY_RESPONSE, got %v", err)
	}

	_, err = alice.ActiveChallenges(51)
	if client.CodeOf(err) != "LIMIT_TOO_HIGH" {
		t.Fatalf("expected LIMIT_TOO_HIGH, got %v", err)
	}
	_, err = alice.TopParticipants(101)
	if client.CodeOf(err) != "LIMIT_TOO_HIGH" {
		t.Fatalf("expected LIMIT_TOO_HIGH for participants, got %v", err)
	}
	active, err := alice.ActiveChallenges(50)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 2 || active[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", active)
	}
}

func TestBadgeClaimFlow(t *testing.T) {
	env := newTestEnv(t, testConfig())
	alice, aliceCreds := env.user(t)

	ch, err := alice.StartChallenge("prompt", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := alice.JoinChallenge(ch.ID, 0, "answering myself", ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	_, err = alice.ClaimBadge("chain_master")
	if client.CodeOf(err) != "BADGE_METADATA_NOT_SET" {
		t.Fatalf("expected BADGE_METADATA_NOT_SET, got %v", err)
	}

	if err := env.admin.SetBadgeMetadata("chain_master", "ipfs://chain-master"); err != nil {
		t.Fatalf("set metadata: %v", err)
	}
	_, err = alice.ClaimBadge("chain_master")
	if client.CodeOf(err) != "REQUIREMENT_NOT_MET" {
		t.Fatalf("expected REQUIREMENT_NOT_MET, got %v", err)
	}
	apiErr := err.(*client.APIError)
	if apiErr.Status != http.StatusConflict || apiErr.Metadata["required"] != "5" || apiErr.Metadata["actual"] != "1" {
		t.Fatalf("unexpected error %+v", apiErr)
	}

	resp := env.post(t, "/api/admin/badges/chain_master", map[string]any{"requirement": 1},
		map[string]string{"X-Admin-Secret": adminSecret})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set requirement: %d", resp.StatusCode)
	}
	resp.Body.Close()

	claim, err := alice.ClaimBadge("chain_master")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claim.TokenID == 0 || claim.Account != aliceCreds.Address {
		t.Fatalf("unexpected claim %+v", claim)
	}
	_, err = alice.ClaimBadge("chain_master")
	if client.CodeOf(err) != "BADGE_ALREADY_CLAIMED" {
		t.Fatalf("expected BADGE_ALREADY_CLAIMED, got %v", err)
	}

	claims, report, err := alice.Badges(aliceCreds.Address)
	if err != nil {
		t.Fatalf("badges: %v", err)
	}
	if len(claims) != 1 || len(report) != 6 {
		t.Fatalf("unexpected badges %+v %+v", claims, report)
	}
	for _, st := range report {
		if st.Type == "chain_master" && (!st.Claimed || st.Eligible) {
			t.Fatalf("chain_master should be claimed and not eligible: %+v", st)
		}
	}

	_, err = alice.ClaimBadge("not_a_badge")
	if client.CodeOf(err) != "UNKNOWN_BADGE" {
		t.Fatalf("expected UNKNOWN_BADGE, got %v", err)
	}
}

func TestSourcesMustBeWired(t *testing.T) {
	cfg := testConfig()
	cfg.Sources = []string{"chain"}
	env := newTestEnv(t, cfg)
	alice, _ := env.user(t)

	if err := env.admin.SetBadgeMetadata("top_roaster", "ipfs://roaster"); err != nil {
		t.Fatalf("set metadata: %v", err)
	}
	_, err := alice.ClaimBadge("top_roaster")
	if client.CodeOf(err) != "SOURCE_NOT_CONFIGURED" {
		t.Fatalf("expected SOURCE_NOT_CONFIGURED, got %v", err)
	}

	if err := env.admin.SetSources([]string{"chain", "roast"}); err != nil {
		t.Fatalf("set sources: %v", err)
	}
	_, err = alice.ClaimBadge("top_roaster")
	if client.CodeOf(err) != "REQUIREMENT_NOT_MET" {
		t.Fatalf("expected REQUIREMENT_NOT_MET once wired, got %v", err)
	}

	if err := env.admin.SetSources([]string{"bogus"}); client.CodeOf(err) != "UNKNOWN_SOURCE" {
		t.Fatalf("expected UNKNOWN_SOURCE, got %v", err)
	}
}

func TestSourcesPersistAcrossRestart(t *testing.T) {
	st, err := sqlite.Open("file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	ctx := context.Background()
	cfg := testConfig()

	svc, err := httpapp.NewServices(ctx, st, cfg, nil)
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	if got := svc.Badges.Sources(); len(got) != 3 {
		t.Fatalf("expected configured sources on first start, got %v", got)
	}
	if err := svc.Badges.SetActivitySources(ctx, "owner", []model.SourceName{model.SourceChain}); err != nil {
		t.Fatalf("set sources: %v", err)
	}

	svc, err = httpapp.NewServices(ctx, st, cfg, nil)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if got := svc.Badges.Sources(); len(got) != 1 || got[0] != model.SourceChain {
		t.Fatalf("after restart sources = %v, owner had set [chain]", got)
	}
}

func TestActivityReporting(t *testing.T) {
	env := newTestEnv(t, testConfig())
	roaster, roasterCreds := env.user(t)
	alice, aliceCreds := env.user(t)

	_, err := roaster.ReportActivity("roast", aliceCreds.Address)
	if client.CodeOf(err) != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
	if err.(*client.APIError).Status != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}

	if err := env.admin.Authorize(roasterCreds.Address, true); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	count, err := roaster.ReportActivity("roast", aliceCreds.Address)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
	if _, err := roaster.ReportActivity("darts", aliceCreds.Address); client.CodeOf(err) != "UNKNOWN_SOURCE" {
		t.Fatalf("expected UNKNOWN_SOURCE, got %v", err)
	}

	if err := env.admin.SetBadgeMetadata("first_activity", "ipfs://first"); err != nil {
		t.Fatalf("set metadata: %v", err)
	}
	if _, err := alice.ClaimBadge("first_activity"); err != nil {
		t.Fatalf("first activity from roast alone should be claimable: %v", err)
	}

	if err := env.admin.Authorize(roasterCreds.Address, false); err != nil {
		t.Fatalf("deauthorize: %v", err)
	}
	if _, err := roaster.ReportActivity("roast", aliceCreds.Address); client.CodeOf(err) != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED after revoke, got %v", err)
	}
}

func TestDailyLogin(t *testing.T) {
	env := newTestEnv(t, testConfig())
	alice, _ := env.user(t)

	first, err := alice.DailyLogin()
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !first.Counted || first.Awarded != 7 || first.Account.LoginStreak != 1 {
		t.Fatalf("unexpected first login %+v", first)
	}
	again, err := alice.DailyLogin()
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if again.Counted || again.Awarded != 0 || again.Account.Balance != 7 {
		t.Fatalf("repeat login should be a no-op: %+v", again)
	}
}

func TestAdminAndAuthFailures(t *testing.T) {
	env := newTestEnv(t, testConfig())
	alice, _ := env.user(t)

	resp := env.post(t, "/api/challenges", map[string]string{"prompt_text": "x"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.post(t, "/api/admin/authorize", map[string]any{"identity": "x"},
		map[string]string{"X-Admin-Secret": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad secret, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	if err := alice.Authorize("someone", true); client.CodeOf(err) != "UNAUTHORIZED" {
		t.Fatalf("non-owner authorize should be refused, got %v", err)
	}

	resp = env.post(t, "/api/admin/chain-points", map[string]any{"per_challenge": 50, "per_response": 1},
		map[string]string{"X-Admin-Secret": adminSecret})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set chain points: %d", resp.StatusCode)
	}
	resp.Body.Close()
	ch, err := alice.StartChallenge("worth more now", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	acc, err := alice.GetAccount(ch.Initiator)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acc.Balance != 50 {
		t.Fatalf("expected new amount 50, got %d", acc.Balance)
	}

	resp = env.post(t, "/api/challenges", map[string]any{"prompt_text": "x", "extra": true},
		map[string]string{"Authorization": "Bearer " + alice.Token})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown fields should be rejected, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRateLimiting(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimits.ChallengePerMinute = 1
	env := newTestEnv(t, cfg)
	alice, _ := env.user(t)

	if _, err := alice.StartChallenge("first", ""); err != nil {
		t.Fatalf("first: %v", err)
	}
	resp := env.post(t, "/api/challenges", map[string]string{"prompt_text": "second"},
		map[string]string{"Authorization": "Bearer " + alice.Token})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRecordsFeed(t *testing.T) {
	env := newTestEnv(t, testConfig())
	alice, _ := env.user(t)
	if _, err := alice.StartChallenge("prompt", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := alice.DailyLogin(); err != nil {
		t.Fatalf("login: %v", err)
	}

	all, next, err := alice.Records(0, 100)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	kinds := map[string]bool{}
	for i, rec := range all {
		if i > 0 && rec.Seq <= all[i-1].Seq {
			t.Fatalf("records out of order: %+v", all)
		}
		kinds[rec.Kind] = true
	}
	for _, k := range []string{"caller_authorized", "params_changed", "points_awarded", "challenge_started", "daily_login"} {
		if !kinds[k] {
			t.Errorf("missing %s record in %v", k, kinds)
		}
	}
	if next != all[len(all)-1].Seq {
		t.Fatalf("next should be the last seq")
	}

	page, _, err := alice.Records(all[1].Seq, 1)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 1 || page[0].Seq != all[2].Seq {
		t.Fatalf("unexpected page %+v", page)
	}
	if _, _, err := alice.Records(0, 501); client.CodeOf(err) != "LIMIT_TOO_HIGH" {
		t.Fatalf("expected LIMIT_TOO_HIGH, got %v", err)
	}
}

func TestDocsAndVersion(t *testing.T) {
	env := newTestEnv(t, testConfig())

	resp, err := http.Get(env.server.URL + "/api/openapi.json")
	if err != nil {
		t.Fatalf("openapi: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "vhibes API") {
		t.Fatalf("unexpected openapi %d %s", resp.StatusCode, body)
	}

	resp, err = http.Get(env.server.URL + "/api/version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var v map[string]string
	decodeJSON(t, resp, &v)
	if v["version"] != httpapp.Version {
		t.Fatalf("unexpected version %v", v)
	}

	resp, err = http.Get(env.server.URL + "/api/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
