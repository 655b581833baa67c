package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"

	"github.com/alphabot-ai/vhibes/internal/client"
)

var prompts = []struct {
	text  string
	image string
}{
	{"Roast my morning coffee setup", ""},
	{"Describe your weekend in three emojis", ""},
	{"", "ipfs://bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"},
	{"Worst pickup line you have ever heard?", ""},
	{"Caption this", "ipfs://bafkreihdwdcefgh4dqkjv67uzcmw7ojee6xedzdetojuzjevtenxquvyku"},
	{"Pitch a startup that should not exist", ""},
}

var replies = []string{
	"This is the energy I needed today.",
	"Respectfully, no.",
	"Okay but the lighting is carrying this.",
	"I have questions and none of them are polite.",
	"10/10 would vibe again.",
	"Counterpoint: absolutely not.",
	"Adding this to my list of things to never do.",
	"Underrated take.",
	"The sequel is always worse.",
	"Screenshotting this for later.",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "vhibes server URL")
	adminSecret := flag.String("admin-secret", "", "admin secret; when set, badge metadata is configured too")
	users := flag.Int("users", 5, "number of accounts to create")
	flag.Parse()

	log.Printf("Seeding %s...", *baseURL)

	var clients []*client.Client
	var addrs []string
	for i := 0; i < *users; i++ {
		creds, err := client.GenerateCredentials()
		if err != nil {
			log.Fatalf("generate credentials: %v", err)
		}
		c := client.New(*baseURL)
		if err := c.Authenticate(creds); err != nil {
			log.Fatalf("authenticate %s: %v", creds.Address, err)
		}
		if _, err := c.DailyLogin(); err != nil {
			log.Fatalf("daily login %s: %v", creds.Address, err)
		}
		log.Printf("✓ Account %s", creds.Address)
		clients = append(clients, c)
		addrs = append(addrs, creds.Address)
	}

	var challengeIDs []int64
	for _, p := range prompts {
		idx := rand.Intn(len(clients))
		ch, err := clients[idx].StartChallenge(p.text, p.image)
		if err != nil {
			log.Printf("✗ Failed to start challenge: %v", err)
			continue
		}
		challengeIDs = append(challengeIDs, ch.ID)
		log.Printf("✓ Challenge #%d (by %s)", ch.ID, addrs[idx])
	}

	responses := 0
	for _, id := range challengeIDs {
		// 1-4 top-level responses, each with a short reply chain.
		n := rand.Intn(4) + 1
		for i := 0; i < n; i++ {
			idx := rand.Intn(len(clients))
			resp, err := clients[idx].JoinChallenge(id, 0, replies[rand.Intn(len(replies))], "")
			if err != nil {
				log.Printf("✗ Failed to respond: %v", err)
				continue
			}
			responses++
			parent := resp.ID
			for depth := 0; depth < 3 && rand.Float32() < 0.5; depth++ {
				replyIdx := rand.Intn(len(clients))
				reply, err := clients[replyIdx].JoinChallenge(id, parent, replies[rand.Intn(len(replies))], "")
				if err != nil {
					log.Printf("✗ Failed to reply: %v", err)
					break
				}
				responses++
				log.Printf("  ↳ Reply #%d to #%d (by %s)", reply.ID, parent, addrs[replyIdx])
				parent = reply.ID
			}
		}
	}

	if *adminSecret != "" {
		admin := client.NewTestHelper(*baseURL).Admin(*adminSecret)
		for _, badge := range []string{"first_activity", "login_streak", "activity_streak", "top_roaster", "chain_master", "icebreaker"} {
			if err := admin.SetBadgeMetadata(badge, "ipfs://vhibes/"+badge); err != nil {
				log.Printf("✗ Failed to set %s metadata: %v", badge, err)
			}
		}
		log.Printf("✓ Configured badge metadata")
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("Accounts:   %d\n", len(clients))
	fmt.Printf("Challenges: %d\n", len(challengeIDs))
	fmt.Printf("Responses:  %d\n", responses)
	fmt.Println("\nAPI at:", *baseURL)
}
