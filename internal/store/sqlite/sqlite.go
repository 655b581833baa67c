package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alphabot-ai/vhibes/internal/model"
	"github.com/alphabot-ai/vhibes/internal/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

var _ store.Store = (*Store)(nil)

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps every unit of work strictly serialized.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run(ctx, false, fn)
}

func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *Store) run(ctx context.Context, readOnly bool, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&txStore{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if readOnly {
		return tx.Rollback()
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// migrations is an ordered list of SQL migrations.
// Each migration runs exactly once, tracked by schema_version table.
var migrations = []string{
	// Migration 1: ledger, registry and response tree
	`
CREATE TABLE IF NOT EXISTS accounts (
	address TEXT PRIMARY KEY,
	balance INTEGER NOT NULL DEFAULT 0,
	login_streak INTEGER NOT NULL DEFAULT 0,
	last_login_at INTEGER NOT NULL DEFAULT 0,
	activity_streak INTEGER NOT NULL DEFAULT 0,
	last_activity_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS params (
	key TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS authorized_callers (
	identity TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS challenges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	initiator TEXT NOT NULL,
	prompt_text TEXT NOT NULL DEFAULT '',
	prompt_image TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_challenges_initiator ON challenges(initiator, id);

CREATE TABLE IF NOT EXISTS responses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	challenge_id INTEGER NOT NULL,
	parent_response_id INTEGER NOT NULL DEFAULT 0,
	responder TEXT NOT NULL,
	text TEXT NOT NULL DEFAULT '',
	image TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	FOREIGN KEY(challenge_id) REFERENCES challenges(id)
);
CREATE INDEX IF NOT EXISTS idx_responses_tree ON responses(challenge_id, parent_response_id, id);
CREATE INDEX IF NOT EXISTS idx_responses_responder ON responses(responder, id);
`,
	// Migration 2: badges, activity tallies and records
	`
CREATE TABLE IF NOT EXISTS badge_config (
	type TEXT PRIMARY KEY,
	metadata_ref TEXT NOT NULL DEFAULT '',
	requirement INTEGER NOT NULL DEFAULT 0
);
INSERT OR IGNORE INTO badge_config (type, requirement) VALUES
	('first_activity', 1),
	('login_streak', 7),
	('activity_streak', 7),
	('top_roaster', 10),
	('chain_master', 5),
	('icebreaker', 10);

CREATE TABLE IF NOT EXISTS badge_claims (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account TEXT NOT NULL,
	type TEXT NOT NULL,
	claimed_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_badge_claims_unique ON badge_claims(account, type);

CREATE TABLE IF NOT EXISTS activity_counts (
	source TEXT NOT NULL,
	account TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (source, account)
);

CREATE TABLE IF NOT EXISTS records (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	actor TEXT NOT NULL DEFAULT '',
	account TEXT NOT NULL DEFAULT '',
	data TEXT,
	created_at INTEGER NOT NULL
);
`,
	// Migration 3: address authentication
	`
CREATE TABLE IF NOT EXISTS auth_challenges (
	challenge TEXT PRIMARY KEY,
	address TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS auth_tokens (
	token TEXT PRIMARY KEY,
	address TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
`,
	// Migration 4: nanosecond streak timestamps and persisted badge sources
	`
UPDATE accounts SET last_login_at = last_login_at * 1000000000 WHERE last_login_at > 0;
UPDATE accounts SET last_activity_at = last_activity_at * 1000000000 WHERE last_activity_at > 0;

CREATE TABLE IF NOT EXISTS badge_sources (
	name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS badge_sources_set (
	id INTEGER PRIMARY KEY CHECK (id = 1)
);
`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return err
	}

	var currentVersion int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	for i := currentVersion; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", i+1, err)
		}
	}

	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (s *txStore) GetAccount(ctx context.Context, addr model.Address) (model.Account, error) {
	row := s.tx.QueryRowContext(ctx, `
SELECT balance, login_streak, last_login_at, activity_streak, last_activity_at
FROM accounts
WHERE address = ?
`, string(addr))
	a := model.Account{Address: addr}
	var balance, loginStreak, lastLogin, activityStreak, lastActivity int64
	if err := row.Scan(&balance, &loginStreak, &lastLogin, &activityStreak, &lastActivity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, nil
		}
		return model.Account{}, err
	}
	a.Balance = uint64(balance)
	a.LoginStreak = uint64(loginStreak)
	a.LastLoginAt = fromUnixNano(lastLogin)
	a.ActivityStreak = uint64(activityStreak)
	a.LastActivityAt = fromUnixNano(lastActivity)
	return a, nil
}

func (s *txStore) PutAccount(ctx context.Context, a model.Account) error {
	_, err := s.tx.ExecContext(ctx, `
INSERT INTO accounts (address, balance, login_streak, last_login_at, activity_streak, last_activity_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(address) DO UPDATE SET
	balance = excluded.balance,
	login_streak = excluded.login_streak,
	last_login_at = excluded.last_login_at,
	activity_streak = excluded.activity_streak,
	last_activity_at = excluded.last_activity_at
`, string(a.Address), int64(a.Balance), int64(a.LoginStreak), toUnixNano(a.LastLoginAt), int64(a.ActivityStreak), toUnixNano(a.LastActivityAt))
	return err
}

func (s *txStore) GetParam(ctx context.Context, key string) (uint64, bool, error) {
	var v int64
	err := s.tx.QueryRowContext(ctx, `SELECT value FROM params WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint64(v), true, nil
}

func (s *txStore) SetParam(ctx context.Context, key string, value uint64) error {
	_, err := s.tx.ExecContext(ctx, `
INSERT INTO params (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value
`, key, int64(value))
	return err
}

func (s *txStore) IsAuthorized(ctx context.Context, identity model.Address) (bool, error) {
	var n int
	err := s.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM authorized_callers WHERE identity = ?`, string(identity)).Scan(&n)
	return n > 0, err
}

func (s *txStore) SetAuthorized(ctx context.Context, identity model.Address, authorized bool) error {
	var err error
	if authorized {
		_, err = s.tx.ExecContext(ctx, `INSERT OR IGNORE INTO authorized_callers (identity) VALUES (?)`, string(identity))
	} else {
		_, err = s.tx.ExecContext(ctx, `DELETE FROM authorized_callers WHERE identity = ?`, string(identity))
	}
	return err
}

func (s *txStore) ListAuthorized(ctx context.Context) ([]model.Address, error) {
	rows, err := s.tx.QueryContext(ctx, `SELECT identity FROM authorized_callers ORDER BY identity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Address
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, model.Address(id))
	}
	return out, rows.Err()
}

func (s *txStore) CreateChallenge(ctx context.Context, c *model.Challenge) (int64, error) {
	res, err := s.tx.ExecContext(ctx, `
INSERT INTO challenges (initiator, prompt_text, prompt_image, created_at)
VALUES (?, ?, ?, ?)
`, string(c.Initiator), c.PromptText, c.PromptImage, c.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *txStore) GetChallenge(ctx context.Context, id int64) (model.Challenge, error) {
	row := s.tx.QueryRowContext(ctx, `
SELECT id, initiator, prompt_text, prompt_image, created_at
FROM challenges
WHERE id = ?
`, id)
	var c model.Challenge
	var initiator string
	var created int64
	if err := row.Scan(&c.ID, &initiator, &c.PromptText, &c.PromptImage, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Challenge{}, store.ErrNotFound
		}
		return model.Challenge{}, err
	}
	c.Initiator = model.Address(initiator)
	c.CreatedAt = time.Unix(created, 0)
	ids, err := s.queryIDs(ctx, `
SELECT id FROM responses WHERE challenge_id = ? AND parent_response_id = 0 ORDER BY id
`, id)
	if err != nil {
		return model.Challenge{}, err
	}
	c.ResponseIDs = ids
	return c, nil
}

func (s *txStore) ChallengeExists(ctx context.Context, id int64) (bool, error) {
	var n int
	err := s.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM challenges WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

func (s *txStore) ListChallengeIDs(ctx context.Context, limit int) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT id FROM challenges ORDER BY id DESC LIMIT ?`, limit)
}

func (s *txStore) ListChallengeIDsByAccount(ctx context.Context, addr model.Address) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT id FROM challenges WHERE initiator = ? ORDER BY id`, string(addr))
}

func (s *txStore) CreateResponse(ctx context.Context, r *model.Response) (int64, error) {
	res, err := s.tx.ExecContext(ctx, `
INSERT INTO responses (challenge_id, parent_response_id, responder, text, image, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, r.ChallengeID, r.ParentResponseID, string(r.Responder), r.Text, r.Image, r.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *txStore) GetResponse(ctx context.Context, id int64) (model.Response, error) {
	row := s.tx.QueryRowContext(ctx, `
SELECT id, challenge_id, parent_response_id, responder, text, image, created_at
FROM responses
WHERE id = ?
`, id)
	r, err := scanResponse(row)
	if err != nil {
		return model.Response{}, err
	}
	ids, err := s.queryIDs(ctx, `
SELECT id FROM responses WHERE challenge_id = ? AND parent_response_id = ? ORDER BY id
`, r.ChallengeID, r.ID)
	if err != nil {
		return model.Response{}, err
	}
	r.ChildResponseIDs = ids
	return r, nil
}

func (s *txStore) CountChildren(ctx context.Context, challengeID, parentID int64) (uint64, error) {
	var n int64
	err := s.tx.QueryRowContext(ctx, `
SELECT COUNT(*) FROM responses WHERE challenge_id = ? AND parent_response_id = ?
`, challengeID, parentID).Scan(&n)
	return uint64(n), err
}

// ListResponsesByChallenge returns every response of the challenge in id
// order, with ChildResponseIDs filled from the same scan.
func (s *txStore) ListResponsesByChallenge(ctx context.Context, challengeID int64) ([]model.Response, error) {
	rows, err := s.tx.QueryContext(ctx, `
SELECT id, challenge_id, parent_response_id, responder, text, image, created_at
FROM responses
WHERE challenge_id = ?
ORDER BY id
`, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Response
	index := map[int64]int{}
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, r := range out {
		if i, ok := index[r.ParentResponseID]; ok {
			out[i].ChildResponseIDs = append(out[i].ChildResponseIDs, r.ID)
		}
	}
	return out, nil
}

func (s *txStore) ListResponseIDsByAccount(ctx context.Context, addr model.Address) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT id FROM responses WHERE responder = ? ORDER BY id`, string(addr))
}

func (s *txStore) CountResponsesByAccount(ctx context.Context, addr model.Address) (uint64, error) {
	var n int64
	err := s.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses WHERE responder = ?`, string(addr)).Scan(&n)
	return uint64(n), err
}

// TopResponders ranks by response count; ties go to whoever responded first.
func (s *txStore) TopResponders(ctx context.Context, limit int) ([]model.Participant, error) {
	rows, err := s.tx.QueryContext(ctx, `
SELECT responder, COUNT(*) AS n, MIN(id) AS first_id
FROM responses
GROUP BY responder
ORDER BY n DESC, first_id ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		var responder string
		var n, first int64
		if err := rows.Scan(&responder, &n, &first); err != nil {
			return nil, err
		}
		out = append(out, model.Participant{Account: model.Address(responder), Count: uint64(n)})
	}
	return out, rows.Err()
}

func (s *txStore) GetBadgeConfig(ctx context.Context, badge model.BadgeType) (model.BadgeConfig, error) {
	row := s.tx.QueryRowContext(ctx, `SELECT type, metadata_ref, requirement FROM badge_config WHERE type = ?`, string(badge))
	return scanBadgeConfig(row)
}

func (s *txStore) ListBadgeConfigs(ctx context.Context) ([]model.BadgeConfig, error) {
	rows, err := s.tx.QueryContext(ctx, `SELECT type, metadata_ref, requirement FROM badge_config`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byType := map[model.BadgeType]model.BadgeConfig{}
	for rows.Next() {
		cfg, err := scanBadgeConfig(rows)
		if err != nil {
			return nil, err
		}
		byType[cfg.Type] = cfg
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]model.BadgeConfig, 0, len(byType))
	for _, t := range model.BadgeTypes {
		if cfg, ok := byType[t]; ok {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (s *txStore) SetBadgeMetadata(ctx context.Context, badge model.BadgeType, ref string) error {
	_, err := s.tx.ExecContext(ctx, `
INSERT INTO badge_config (type, metadata_ref) VALUES (?, ?)
ON CONFLICT(type) DO UPDATE SET metadata_ref = excluded.metadata_ref
`, string(badge), ref)
	return err
}

func (s *txStore) SetBadgeRequirement(ctx context.Context, badge model.BadgeType, requirement uint64) error {
	_, err := s.tx.ExecContext(ctx, `
INSERT INTO badge_config (type, requirement) VALUES (?, ?)
ON CONFLICT(type) DO UPDATE SET requirement = excluded.requirement
`, string(badge), int64(requirement))
	return err
}

func (s *txStore) GetBadgeSources(ctx context.Context) ([]model.SourceName, bool, error) {
	var one int
	err := s.tx.QueryRowContext(ctx, `SELECT id FROM badge_sources_set WHERE id = 1`).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rows, err := s.tx.QueryContext(ctx, `SELECT name FROM badge_sources ORDER BY name`)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	out := []model.SourceName{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, false, err
		}
		out = append(out, model.SourceName(name))
	}
	return out, true, rows.Err()
}

func (s *txStore) SetBadgeSources(ctx context.Context, names []model.SourceName) error {
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM badge_sources`); err != nil {
		return err
	}
	for _, name := range names {
		if _, err := s.tx.ExecContext(ctx, `INSERT OR IGNORE INTO badge_sources (name) VALUES (?)`, string(name)); err != nil {
			return err
		}
	}
	_, err := s.tx.ExecContext(ctx, `INSERT OR IGNORE INTO badge_sources_set (id) VALUES (1)`)
	return err
}

func (s *txStore) CreateBadgeClaim(ctx context.Context, claim *model.BadgeClaim) (int64, error) {
	res, err := s.tx.ExecContext(ctx, `
INSERT INTO badge_claims (account, type, claimed_at) VALUES (?, ?, ?)
`, string(claim.Account), string(claim.Type), claim.ClaimedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, store.ErrDuplicateClaim
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (s *txStore) GetBadgeClaim(ctx context.Context, addr model.Address, badge model.BadgeType) (model.BadgeClaim, error) {
	row := s.tx.QueryRowContext(ctx, `
SELECT id, account, type, claimed_at FROM badge_claims WHERE account = ? AND type = ?
`, string(addr), string(badge))
	return scanBadgeClaim(row)
}

func (s *txStore) ListBadgeClaims(ctx context.Context, addr model.Address) ([]model.BadgeClaim, error) {
	rows, err := s.tx.QueryContext(ctx, `
SELECT id, account, type, claimed_at FROM badge_claims WHERE account = ? ORDER BY id
`, string(addr))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.BadgeClaim
	for rows.Next() {
		c, err := scanBadgeClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *txStore) IncrementActivity(ctx context.Context, source model.SourceName, addr model.Address) (uint64, error) {
	if _, err := s.tx.ExecContext(ctx, `
INSERT INTO activity_counts (source, account, count) VALUES (?, ?, 1)
ON CONFLICT(source, account) DO UPDATE SET count = count + 1
`, string(source), string(addr)); err != nil {
		return 0, err
	}
	return s.ActivityCount(ctx, source, addr)
}

func (s *txStore) ActivityCount(ctx context.Context, source model.SourceName, addr model.Address) (uint64, error) {
	var n int64
	err := s.tx.QueryRowContext(ctx, `
SELECT count FROM activity_counts WHERE source = ? AND account = ?
`, string(source), string(addr)).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return uint64(n), err
}

func (s *txStore) AppendRecord(ctx context.Context, rec *model.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var data any
	if len(rec.Data) > 0 {
		raw, err := json.Marshal(rec.Data)
		if err != nil {
			return err
		}
		data = string(raw)
	}
	res, err := s.tx.ExecContext(ctx, `
INSERT INTO records (id, kind, actor, account, data, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, rec.ID, rec.Kind, string(rec.Actor), string(rec.Account), data, rec.CreatedAt.Unix())
	if err != nil {
		return err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rec.Seq = seq
	return nil
}

func (s *txStore) ListRecords(ctx context.Context, afterSeq int64, limit int) ([]model.Record, error) {
	rows, err := s.tx.QueryContext(ctx, `
SELECT seq, id, kind, actor, account, data, created_at
FROM records
WHERE seq > ?
ORDER BY seq
LIMIT ?
`, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var r model.Record
		var actor, account string
		var data sql.NullString
		var created int64
		if err := rows.Scan(&r.Seq, &r.ID, &r.Kind, &actor, &account, &data, &created); err != nil {
			return nil, err
		}
		r.Actor = model.Address(actor)
		r.Account = model.Address(account)
		r.CreatedAt = time.Unix(created, 0)
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &r.Data); err != nil {
				return nil, fmt.Errorf("decode record %s: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *txStore) CreateAuthChallenge(ctx context.Context, c model.AuthChallenge) error {
	_, err := s.tx.ExecContext(ctx, `
INSERT INTO auth_challenges (challenge, address, expires_at, created_at)
VALUES (?, ?, ?, ?)
`, c.Challenge, string(c.Address), c.ExpiresAt.Unix(), time.Now().Unix())
	return err
}

func (s *txStore) ConsumeAuthChallenge(ctx context.Context, challenge string) (model.AuthChallenge, error) {
	row := s.tx.QueryRowContext(ctx, `
SELECT challenge, address, expires_at
FROM auth_challenges
WHERE challenge = ?
`, challenge)
	var c model.AuthChallenge
	var address string
	var expires int64
	if err := row.Scan(&c.Challenge, &address, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AuthChallenge{}, store.ErrNotFound
		}
		return model.AuthChallenge{}, err
	}
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM auth_challenges WHERE challenge = ?`, challenge); err != nil {
		return model.AuthChallenge{}, err
	}
	c.Address = model.Address(address)
	c.ExpiresAt = time.Unix(expires, 0)
	return c, nil
}

func (s *txStore) CreateToken(ctx context.Context, token model.Token) error {
	_, err := s.tx.ExecContext(ctx, `
INSERT INTO auth_tokens (token, address, expires_at, created_at)
VALUES (?, ?, ?, ?)
`, token.Token, string(token.Address), token.ExpiresAt.Unix(), time.Now().Unix())
	return err
}

func (s *txStore) GetToken(ctx context.Context, token string) (model.Token, error) {
	row := s.tx.QueryRowContext(ctx, `
SELECT token, address, expires_at
FROM auth_tokens
WHERE token = ?
`, token)
	var t model.Token
	var address string
	var expires int64
	if err := row.Scan(&t.Token, &address, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Token{}, store.ErrNotFound
		}
		return model.Token{}, err
	}
	t.Address = model.Address(address)
	t.ExpiresAt = time.Unix(expires, 0)
	return t, nil
}

func (s *txStore) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanResponse(row scanner) (model.Response, error) {
	var r model.Response
	var responder string
	var created int64
	if err := row.Scan(&r.ID, &r.ChallengeID, &r.ParentResponseID, &responder, &r.Text, &r.Image, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Response{}, store.ErrNotFound
		}
		return model.Response{}, err
	}
	r.Responder = model.Address(responder)
	r.CreatedAt = time.Unix(created, 0)
	return r, nil
}

func scanBadgeConfig(row scanner) (model.BadgeConfig, error) {
	var cfg model.BadgeConfig
	var badge string
	var requirement int64
	if err := row.Scan(&badge, &cfg.MetadataRef, &requirement); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BadgeConfig{}, store.ErrNotFound
		}
		return model.BadgeConfig{}, err
	}
	cfg.Type = model.BadgeType(badge)
	cfg.Requirement = uint64(requirement)
	return cfg, nil
}

func scanBadgeClaim(row scanner) (model.BadgeClaim, error) {
	var c model.BadgeClaim
	var account, badge string
	var claimed int64
	if err := row.Scan(&c.TokenID, &account, &badge, &claimed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.BadgeClaim{}, store.ErrNotFound
		}
		return model.BadgeClaim{}, err
	}
	c.Account = model.Address(account)
	c.Type = model.BadgeType(badge)
	c.ClaimedAt = time.Unix(claimed, 0)
	return c, nil
}

// Streak timestamps keep full precision. The stored 0 means "never".
func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
