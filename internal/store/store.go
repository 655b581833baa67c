package store

import (
	"context"
	"errors"

	"github.com/alphabot-ai/vhibes/internal/model"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateClaim = errors.New("duplicate claim")
)

// Store runs units of work. Update serializes every mutating call and commits
// or rolls back everything fn did as one transaction. View runs read-only work.
// Code running inside fn must use the Tx it was given, never the Store.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

type Tx interface {
	AccountStore
	ParamStore
	RegistryStore
	ChallengeStore
	ResponseStore
	BadgeStore
	ActivityStore
	RecordStore
	AuthStore
}

// AccountStore reads missing accounts as zero-initialized.
type AccountStore interface {
	GetAccount(ctx context.Context, addr model.Address) (model.Account, error)
	PutAccount(ctx context.Context, account model.Account) error
}

type ParamStore interface {
	GetParam(ctx context.Context, key string) (value uint64, ok bool, err error)
	SetParam(ctx context.Context, key string, value uint64) error
}

type RegistryStore interface {
	IsAuthorized(ctx context.Context, identity model.Address) (bool, error)
	SetAuthorized(ctx context.Context, identity model.Address, authorized bool) error
	ListAuthorized(ctx context.Context) ([]model.Address, error)
}

type ChallengeStore interface {
	CreateChallenge(ctx context.Context, c *model.Challenge) (int64, error)
	GetChallenge(ctx context.Context, id int64) (model.Challenge, error)
	ChallengeExists(ctx context.Context, id int64) (bool, error)
	ListChallengeIDs(ctx context.Context, limit int) ([]int64, error)
	ListChallengeIDsByAccount(ctx context.Context, addr model.Address) ([]int64, error)
}

type ResponseStore interface {
	CreateResponse(ctx context.Context, r *model.Response) (int64, error)
	GetResponse(ctx context.Context, id int64) (model.Response, error)
	// CountChildren counts the immediate children of parentID within a
	// challenge. parentID 0 counts top-level responses.
	CountChildren(ctx context.Context, challengeID, parentID int64) (uint64, error)
	ListResponsesByChallenge(ctx context.Context, challengeID int64) ([]model.Response, error)
	ListResponseIDsByAccount(ctx context.Context, addr model.Address) ([]int64, error)
	CountResponsesByAccount(ctx context.Context, addr model.Address) (uint64, error)
	TopResponders(ctx context.Context, limit int) ([]model.Participant, error)
}

type BadgeStore interface {
	GetBadgeConfig(ctx context.Context, badge model.BadgeType) (model.BadgeConfig, error)
	ListBadgeConfigs(ctx context.Context) ([]model.BadgeConfig, error)
	SetBadgeMetadata(ctx context.Context, badge model.BadgeType, ref string) error
	SetBadgeRequirement(ctx context.Context, badge model.BadgeType, requirement uint64) error
	// GetBadgeSources reports ok false until a source set was ever saved.
	GetBadgeSources(ctx context.Context) (names []model.SourceName, ok bool, err error)
	SetBadgeSources(ctx context.Context, names []model.SourceName) error
	CreateBadgeClaim(ctx context.Context, claim *model.BadgeClaim) (int64, error)
	GetBadgeClaim(ctx context.Context, addr model.Address, badge model.BadgeType) (model.BadgeClaim, error)
	ListBadgeClaims(ctx context.Context, addr model.Address) ([]model.BadgeClaim, error)
}

type ActivityStore interface {
	IncrementActivity(ctx context.Context, source model.SourceName, addr model.Address) (uint64, error)
	ActivityCount(ctx context.Context, source model.SourceName, addr model.Address) (uint64, error)
}

type RecordStore interface {
	// AppendRecord assigns ID (when empty) and Seq.
	AppendRecord(ctx context.Context, rec *model.Record) error
	ListRecords(ctx context.Context, afterSeq int64, limit int) ([]model.Record, error)
}

type AuthStore interface {
	CreateAuthChallenge(ctx context.Context, c model.AuthChallenge) error
	ConsumeAuthChallenge(ctx context.Context, challenge string) (model.AuthChallenge, error)
	CreateToken(ctx context.Context, token model.Token) error
	GetToken(ctx context.Context, token string) (model.Token, error)
}
