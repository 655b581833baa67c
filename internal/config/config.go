package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr           string        `env:"VHIBES_ADDR"`
	DBPath         string        `env:"VHIBES_DB"              envDefault:"vhibes.db"`
	Owner          string        `env:"VHIBES_OWNER"           envDefault:"owner"`
	AdminSecret    string        `env:"VHIBES_ADMIN_SECRET"    envDefault:"dev-admin-secret"`
	ChainIdentity  string        `env:"VHIBES_CHAIN_IDENTITY"  envDefault:"chain"`
	TokenTTL       time.Duration `env:"VHIBES_TOKEN_TTL"       envDefault:"24h"`
	ChallengeTTL   time.Duration `env:"VHIBES_CHALLENGE_TTL"   envDefault:"5m"`
	AllowedOrigins []string      `env:"VHIBES_ALLOWED_ORIGINS" envSeparator:","`
	// Sources seeds the badge engine source set when the store has none saved.
	Sources    []string   `env:"VHIBES_SOURCES" envSeparator:"," envDefault:"roast,chain,icebreaker"`
	Points     Points     `envPrefix:"VHIBES_POINTS_"`
	RateLimits RateLimits `envPrefix:"VHIBES_RL_"`
}

// Points are the initial amounts. Admin overrides stored in the database win.
type Points struct {
	DailyLogin          uint64 `env:"DAILY_LOGIN"           envDefault:"5"`
	StreakBonus         uint64 `env:"STREAK_BONUS"          envDefault:"2"`
	ActivityStreakBonus uint64 `env:"ACTIVITY_STREAK_BONUS" envDefault:"3"`
	PerChallenge        uint64 `env:"PER_CHALLENGE"         envDefault:"20"`
	PerResponse         uint64 `env:"PER_RESPONSE"          envDefault:"10"`
}

type RateLimits struct {
	ChallengePerMinute int `env:"CHALLENGE_PER_MIN" envDefault:"10"`
	ResponsePerMinute  int `env:"RESPONSE_PER_MIN"  envDefault:"30"`
	ClaimPerMinute     int `env:"CLAIM_PER_MIN"     envDefault:"20"`
	LoginPerMinute     int `env:"LOGIN_PER_MIN"     envDefault:"10"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.Addr = ":" + port
		} else {
			cfg.Addr = ":8080"
		}
	}
	return cfg, nil
}
