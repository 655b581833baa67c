package model

import (
	"strings"
	"time"
)

// Address is the opaque identity key of an account or a calling component.
type Address string

// NormalizeAddress trims the input and lowercases hex addresses so that
// 0xAbC... and 0xabc... name the same account.
func NormalizeAddress(s string) Address {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = "0x" + strings.ToLower(s[2:])
	}
	return Address(s)
}

func (a Address) String() string { return string(a) }

func (a Address) IsZero() bool { return a == "" }

type Account struct {
	Address        Address
	Balance        uint64
	LoginStreak    uint64
	LastLoginAt    time.Time
	ActivityStreak uint64
	LastActivityAt time.Time
}

type Level struct {
	Name      string
	MinPoints uint64
}

type Challenge struct {
	ID          int64
	Initiator   Address
	PromptText  string
	PromptImage string
	CreatedAt   time.Time
	ResponseIDs []int64
}

type Response struct {
	ID               int64
	Responder        Address
	ChallengeID      int64
	ParentResponseID int64
	Text             string
	Image            string
	CreatedAt        time.Time
	ChildResponseIDs []int64
}

// ThreadNode is one response with its replies, used to render a whole chain.
type ThreadNode struct {
	Response Response
	Children []*ThreadNode
}

type Thread struct {
	Challenge Challenge
	Responses []*ThreadNode
}

type Participant struct {
	Account Address
	Count   uint64
}

type SourceName string

const (
	SourceLedger     SourceName = "ledger"
	SourceRoast      SourceName = "roast"
	SourceChain      SourceName = "chain"
	SourceIcebreaker SourceName = "icebreaker"
)

type BadgeType string

const (
	BadgeFirstActivity  BadgeType = "first_activity"
	BadgeLoginStreak    BadgeType = "login_streak"
	BadgeActivityStreak BadgeType = "activity_streak"
	BadgeTopRoaster     BadgeType = "top_roaster"
	BadgeChainMaster    BadgeType = "chain_master"
	BadgeIcebreaker     BadgeType = "icebreaker"
)

// BadgeTypes lists every badge in display order.
var BadgeTypes = []BadgeType{
	BadgeFirstActivity,
	BadgeLoginStreak,
	BadgeActivityStreak,
	BadgeTopRoaster,
	BadgeChainMaster,
	BadgeIcebreaker,
}

func (b BadgeType) Valid() bool {
	for _, t := range BadgeTypes {
		if t == b {
			return true
		}
	}
	return false
}

// DisplayName is the human name used in claim errors and records.
func (b BadgeType) DisplayName() string {
	switch b {
	case BadgeFirstActivity:
		return "First Activity"
	case BadgeLoginStreak:
		return "Login Streak"
	case BadgeActivityStreak:
		return "Activity Streak"
	case BadgeTopRoaster:
		return "Top Roaster"
	case BadgeChainMaster:
		return "Chain Master"
	case BadgeIcebreaker:
		return "Icebreaker"
	}
	return string(b)
}

type BadgeConfig struct {
	Type        BadgeType
	MetadataRef string
	Requirement uint64
}

type BadgeClaim struct {
	TokenID   int64
	Account   Address
	Type      BadgeType
	ClaimedAt time.Time
}

// BadgeStatus is a freshly computed eligibility report for one badge.
type BadgeStatus struct {
	Type     BadgeType
	Required uint64
	Actual   uint64
	Claimed  bool
	Blocker  string
}

// Record kinds emitted by successful mutations.
const (
	RecordPointsAwarded      = "points_awarded"
	RecordPointsDeducted     = "points_deducted"
	RecordDailyLogin         = "daily_login"
	RecordActivityRecorded   = "activity_recorded"
	RecordActivityCounted    = "activity_counted"
	RecordChallengeStarted   = "challenge_started"
	RecordChallengeJoined    = "challenge_joined"
	RecordBadgeClaimed       = "badge_claimed"
	RecordParamsChanged      = "params_changed"
	RecordCallerAuthorized   = "caller_authorized"
	RecordCallerDeauthorized = "caller_deauthorized"
)

type Record struct {
	ID        string
	Seq       int64
	Kind      string
	Actor     Address
	Account   Address
	Data      map[string]any
	CreatedAt time.Time
}

type AuthChallenge struct {
	Challenge string
	Address   Address
	ExpiresAt time.Time
}

type Token struct {
	Token     string
	Address   Address
	ExpiresAt time.Time
}
