package httpapp_test

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alphabot-ai/vhibes/internal/client"
	httpapp "github.com/alphabot-ai/vhibes/internal/http"
	"github.com/alphabot-ai/vhibes/internal/rate"
	"github.com/alphabot-ai/vhibes/internal/store/sqlite"
)

func TestEndToEndServer(t *testing.T) {
	st, err := sqlite.Open("file:e2e_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	cfg := testConfig()
	cfg.Addr = ":0"
	svc, err := httpapp.NewServices(context.Background(), st, cfg, nil)
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	server := httpapp.NewServer(st, svc, rate.NewMemory(), cfg)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	httpServer := &http.Server{Handler: server.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = httpServer.Serve(listener)
	}()
	defer httpServer.Close()

	baseURL := "http://" + listener.Addr().String()
	helper := client.NewTestHelper(baseURL)
	host, hostCreds, err := helper.CreateAuthenticatedClient()
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	guest, _, err := helper.CreateAuthenticatedClient()
	if err != nil {
		t.Fatalf("guest: %v", err)
	}
	if !host.IsAuthenticated() {
		t.Fatal("expected a live token")
	}

	login, err := host.DailyLogin()
	if err != nil || !login.Counted {
		t.Fatalf("daily login: %+v %v", login, err)
	}

	ch, err := host.StartChallenge("e2e prompt", "ipfs://e2e")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	parent := int64(0)
	for i := 0; i < 5; i++ {
		c := guest
		if i%2 == 1 {
			c = host
		}
		resp, err := c.JoinChallenge(ch.ID, parent, "deeper", "")
		if err != nil {
			t.Fatalf("join depth %d: %v", i, err)
		}
		parent = resp.ID
	}

	th, err := guest.Thread(ch.ID)
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	depth := 0
	nodes := th.Responses
	for len(nodes) == 1 {
		depth++
		nodes = nodes[0].Replies
	}
	if depth != 5 {
		t.Fatalf("expected a 5 deep chain, got %d", depth)
	}

	if err := helper.Admin(adminSecret).SetBadgeMetadata("login_streak", "ipfs://streak"); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	_, report, err := host.Badges(hostCreds.Address)
	if err != nil {
		t.Fatalf("badges: %v", err)
	}
	for _, st := range report {
		if st.Type == "login_streak" && (st.Actual != 1 || st.Required != 7 || st.Eligible) {
			t.Fatalf("unexpected login streak status %+v", st)
		}
	}

	acc, err := guest.GetAccount(hostCreds.Address)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	// 7 for the login, 20 for the challenge, 10 for each of two responses.
	if acc.Balance != 47 {
		t.Fatalf("expected balance 47, got %d", acc.Balance)
	}
}
