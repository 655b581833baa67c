package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alphabot-ai/vhibes/internal/client"
	"github.com/alphabot-ai/vhibes/internal/config"
	httpapp "github.com/alphabot-ai/vhibes/internal/http"
	"github.com/alphabot-ai/vhibes/internal/rate"
	"github.com/alphabot-ai/vhibes/internal/store/sqlite"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
)

// CLIConfig holds the CLI client configuration persisted to disk.
type CLIConfig struct {
	BaseURL    string    `json:"base_url"`
	Address    string    `json:"address"`
	PrivateKey string    `json:"private_key"`
	Token      string    `json:"token"`
	TokenExp   time.Time `json:"token_expires"`
}

func main() {
	app := &cli.App{
		Name:    "vhibes",
		Usage:   "points, streaks, challenge chains and badges",
		Version: fmt.Sprintf("%s (%s)", httpapp.Version, httpapp.Commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Usage:   "vhibes server URL",
				EnvVars: []string{"VHIBES_URL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server"},
				Usage:   "Start the vhibes server (configured through VHIBES_* variables)",
				Action:  runServer,
			},
			{
				Name:  "keygen",
				Usage: "Create a secp256k1 key and store it in ~/.vhibes/config.json",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "overwrite an existing key"},
				},
				Action: cmdKeygen,
			},
			{
				Name:   "login",
				Usage:  "Authenticate and count today's login",
				Action: cmdLogin,
			},
			{
				Name:    "status",
				Aliases: []string{"whoami"},
				Usage:   "Show balance, streaks, level and badge progress",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "address", Usage: "account to inspect (defaults to yours)"},
				},
				Action: cmdStatus,
			},
			{
				Name:  "challenge",
				Usage: "Start a challenge",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "text", Usage: "prompt text"},
					&cli.StringFlag{Name: "image", Usage: "prompt image reference"},
				},
				Action: cmdChallenge,
			},
			{
				Name:  "respond",
				Usage: "Respond to a challenge or to a response",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "challenge", Usage: "challenge id", Required: true},
					&cli.Int64Flag{Name: "parent", Usage: "response id to reply to"},
					&cli.StringFlag{Name: "text", Usage: "response text"},
					&cli.StringFlag{Name: "image", Usage: "response image reference"},
				},
				Action: cmdRespond,
			},
			{
				Name:      "thread",
				Usage:     "Print a challenge with its nested responses",
				ArgsUsage: "<challenge-id>",
				Action:    cmdThread,
			},
			{
				Name:      "claim",
				Usage:     "Claim a badge",
				ArgsUsage: "<badge-type>",
				Action:    cmdClaim,
			},
			{
				Name:  "top",
				Usage: "Show the most active responders",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 10, Usage: "how many to show"},
				},
				Action: cmdTop,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// ============================================================================
// SERVER
// ============================================================================

func runServer(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := httpapp.NewServices(ctx, store, cfg, nil)
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}
	limiter := rate.NewMemory()
	server := httpapp.NewServer(store, services, limiter, cfg)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go sweepLimiter(ctx, limiter)
	go func() {
		log.Printf("vhibes listening on %s (sources: %s)", cfg.Addr, strings.Join(cfg.Sources, ","))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func sweepLimiter(ctx context.Context, limiter *rate.MemoryLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}

// ============================================================================
// CLIENT COMMANDS
// ============================================================================

func cmdKeygen(c *cli.Context) error {
	if existing, err := loadCLIConfig(); err == nil && !c.Bool("force") {
		return fmt.Errorf("key for %s already exists, pass --force to replace it", existing.Address)
	}
	creds, err := client.GenerateCredentials()
	if err != nil {
		return err
	}
	cfg := CLIConfig{
		BaseURL:    baseURL(c, CLIConfig{}),
		Address:    creds.Address,
		PrivateKey: creds.PrivateKeyHex(),
	}
	if err := saveCLIConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("✓ Address %s\n", creds.Address)
	fmt.Printf("  Saved to %s\n", cliConfigPath())
	return nil
}

func cmdLogin(c *cli.Context) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	creds, err := client.CredentialsFromHex(cfg.PrivateKey)
	if err != nil {
		return err
	}
	cfg.BaseURL = baseURL(c, cfg)
	api := client.New(cfg.BaseURL)
	if err := api.Authenticate(creds); err != nil {
		return err
	}
	cfg.Token = api.Token
	cfg.TokenExp = api.TokenExp
	if err := saveCLIConfig(cfg); err != nil {
		return err
	}

	res, err := api.DailyLogin()
	if err != nil {
		return err
	}
	if !res.Counted {
		fmt.Printf("✓ Authenticated. Already counted today (streak %d)\n", res.Account.LoginStreak)
		return nil
	}
	fmt.Printf("✓ Authenticated. +%s points, streak %d, balance %s\n",
		humanize.Comma(int64(res.Awarded)), res.Account.LoginStreak, humanize.Comma(int64(res.Account.Balance)))
	return nil
}

func cmdStatus(c *cli.Context) error {
	cfg, _ := loadCLIConfig()
	address := c.String("address")
	if address == "" {
		address = cfg.Address
	}
	if address == "" {
		return errors.New("no address - run 'vhibes keygen' or pass --address")
	}
	api := client.New(baseURL(c, cfg))

	acc, err := api.GetAccount(address)
	if err != nil {
		return err
	}
	fmt.Printf("Address:         %s\n", acc.Address)
	fmt.Printf("Balance:         %s points\n", humanize.Comma(int64(acc.Balance)))
	fmt.Printf("Level:           %s\n", acc.Level.Name)
	fmt.Printf("Login streak:    %d (last %s)\n", acc.LoginStreak, since(acc.LastLoginAt))
	fmt.Printf("Activity streak: %d (last %s)\n", acc.ActivityStreak, since(acc.LastActivityAt))
	fmt.Printf("Responses:       %d\n", acc.Participation)
	if address == cfg.Address && cfg.Token != "" {
		if time.Now().After(cfg.TokenExp) {
			fmt.Println("Token:           expired - run 'vhibes login'")
		} else {
			fmt.Printf("Token:           valid, expires %s\n", humanize.Time(cfg.TokenExp))
		}
	}

	_, report, err := api.Badges(address)
	if err != nil {
		return err
	}
	fmt.Println("\nBadges:")
	for _, st := range report {
		switch {
		case st.Claimed:
			fmt.Printf("  ✓ %-16s claimed\n", st.Type)
		case st.Eligible:
			fmt.Printf("  ★ %-16s claimable (%d/%d)\n", st.Type, st.Actual, st.Required)
		default:
			fmt.Printf("    %-16s %d/%d %s\n", st.Type, st.Actual, st.Required, strings.ToLower(st.Blocker))
		}
	}
	return nil
}

func cmdChallenge(c *cli.Context) error {
	api, err := loadAuthenticatedClient(c)
	if err != nil {
		return err
	}
	ch, err := api.StartChallenge(c.String("text"), c.String("image"))
	if err != nil {
		return err
	}
	fmt.Printf("✓ Started challenge #%d\n", ch.ID)
	return nil
}

func cmdRespond(c *cli.Context) error {
	api, err := loadAuthenticatedClient(c)
	if err != nil {
		return err
	}
	resp, err := api.JoinChallenge(c.Int64("challenge"), c.Int64("parent"), c.String("text"), c.String("image"))
	if err != nil {
		return err
	}
	if resp.ParentResponseID != 0 {
		fmt.Printf("✓ Response #%d replying to #%d\n", resp.ID, resp.ParentResponseID)
	} else {
		fmt.Printf("✓ Response #%d on challenge #%d\n", resp.ID, resp.ChallengeID)
	}
	return nil
}

func cmdThread(c *cli.Context) error {
	var id int64
	if _, err := fmt.Sscan(c.Args().First(), &id); err != nil {
		return errors.New("usage: vhibes thread <challenge-id>")
	}
	cfg, _ := loadCLIConfig()
	th, err := client.New(baseURL(c, cfg)).Thread(id)
	if err != nil {
		return err
	}

	fmt.Printf("#%d by %s, %s\n", th.Challenge.ID, th.Challenge.Initiator, humanize.Time(th.Challenge.CreatedAt))
	fmt.Printf("  %s\n", content(th.Challenge.PromptText, th.Challenge.PromptImage))

	type item struct {
		node  client.ThreadNode
		depth int
	}
	stack := make([]item, 0, len(th.Responses))
	for i := len(th.Responses) - 1; i >= 0; i-- {
		stack = append(stack, item{th.Responses[i], 1})
	}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		indent := strings.Repeat("  ", it.depth)
		fmt.Printf("%s↳ #%d %s: %s\n", indent, it.node.ID, it.node.Responder, content(it.node.Text, it.node.Image))
		for i := len(it.node.Replies) - 1; i >= 0; i-- {
			stack = append(stack, item{it.node.Replies[i], it.depth + 1})
		}
	}
	return nil
}

func cmdClaim(c *cli.Context) error {
	badgeType := c.Args().First()
	if badgeType == "" {
		return errors.New("usage: vhibes claim <badge-type>")
	}
	api, err := loadAuthenticatedClient(c)
	if err != nil {
		return err
	}
	claim, err := api.ClaimBadge(badgeType)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Claimed %s (token #%d)\n", claim.Type, claim.TokenID)
	return nil
}

func cmdTop(c *cli.Context) error {
	cfg, _ := loadCLIConfig()
	top, err := client.New(baseURL(c, cfg)).TopParticipants(c.Int("limit"))
	if err != nil {
		return err
	}
	if len(top) == 0 {
		fmt.Println("No responses yet")
		return nil
	}
	for i, p := range top {
		fmt.Printf("%5s  %s  %s responses\n", humanize.Ordinal(i+1), p.Address, humanize.Comma(int64(p.Count)))
	}
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

func content(text, image string) string {
	switch {
	case text != "" && image != "":
		return text + " [" + image + "]"
	case image != "":
		return "[" + image + "]"
	}
	return text
}

func since(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return humanize.Time(*t)
}

func baseURL(c *cli.Context, cfg CLIConfig) string {
	if u := c.String("url"); u != "" {
		return u
	}
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	return "http://localhost:8080"
}

func vhibesDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".vhibes")
}

func cliConfigPath() string {
	return filepath.Join(vhibesDir(), "config.json")
}

func loadCLIConfig() (CLIConfig, error) {
	data, err := os.ReadFile(cliConfigPath())
	if err != nil {
		return CLIConfig{}, errors.New("not initialized - run 'vhibes keygen'")
	}
	var cfg CLIConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, err
	}
	return cfg, nil
}

func saveCLIConfig(cfg CLIConfig) error {
	if err := os.MkdirAll(vhibesDir(), 0700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return os.WriteFile(cliConfigPath(), data, 0600)
}

func loadAuthenticatedClient(c *cli.Context) (*client.Client, error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Token == "" {
		return nil, errors.New("not authenticated - run 'vhibes login'")
	}
	if time.Now().After(cfg.TokenExp) {
		return nil, errors.New("token expired - run 'vhibes login'")
	}
	api := client.New(baseURL(c, cfg))
	api.Token = cfg.Token
	api.TokenExp = cfg.TokenExp
	return api, nil
}
