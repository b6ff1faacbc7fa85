package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/storeauth/account"
	"github.com/redis/go-redis/v9"
)

const (
	fieldID             = "id"
	fieldEmail          = "email"
	fieldName           = "name"
	fieldRole           = "role"
	fieldStatus         = "status"
	fieldVerified       = "verified"
	fieldVersion        = "version"
	fieldCreatedAt      = "created_at"
	fieldUpdatedAt      = "updated_at"
	fieldPasswordHash   = "password_hash"
	fieldOTPHash        = "otp_hash"
	fieldOTPExpiresAt   = "otp_expires_at"
	fieldResetHash      = "reset_hash"
	fieldResetExpiresAt = "reset_expires_at"
)

const createScript = `
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[2], unpack(ARGV, 2))
return 1
`

const updateScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
if redis.call("HGET", KEYS[1], "version") ~= ARGV[1] then
  return 0
end
local n = tonumber(ARGV[4])
local idx = 5
for i = 1, n do
  redis.call("HSET", KEYS[1], ARGV[idx], ARGV[idx + 1])
  idx = idx + 2
end
for i = idx, #ARGV do
  redis.call("HDEL", KEYS[1], ARGV[i])
end
redis.call("HSET", KEYS[1], "updated_at", ARGV[3])
redis.call("HINCRBY", KEYS[1], "version", 1)
if ARGV[2] == "1" then
  redis.call("DEL", KEYS[2])
end
return 1
`

const familyExpiry = `
local function refresh_expiry(key)
  local top = redis.call("ZRANGE", key, -1, -1, "WITHSCORES")
  if top[2] then
    redis.call("PEXPIREAT", key, top[2])
  end
end
`

const addTokenScript = familyExpiry + `
local version = redis.call("HGET", KEYS[1], "version")
if not version then
  return -1
end
if version ~= ARGV[4] then
  return 0
end
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[1])
redis.call("ZREMRANGEBYSCORE", KEYS[2], "-inf", "(" .. ARGV[3])
refresh_expiry(KEYS[2])
return 1
`

const rotateTokenScript = familyExpiry + `
if redis.call("ZREM", KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call("ZADD", KEYS[1], ARGV[3], ARGV[2])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[4])
refresh_expiry(KEYS[1])
return 1
`

var (
	createLua   = redis.NewScript(createScript)
	updateLua   = redis.NewScript(updateScript)
	addTokenLua = redis.NewScript(addTokenScript)
	rotateLua   = redis.NewScript(rotateTokenScript)
)

// Store is a Redis-backed account.Store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps and pruning.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Store using prefix for every key. An empty prefix becomes "sa".
func New(client redis.UniversalClient, prefix string, opts ...Option) *Store {
	if prefix == "" {
		prefix = "sa"
	}
	s := &Store{
		redis:  client,
		prefix: prefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) accountKey(id string) string {
	return s.prefix + ":acct:" + id
}

func (s *Store) emailKey(email string) string {
	return s.prefix + ":email:" + email
}

func (s *Store) familyKey(id string) string {
	return s.prefix + ":rt:" + id
}

// Create persists rec and claims its normalized email.
func (s *Store) Create(ctx context.Context, rec account.Record) error {
	if rec.ID == "" {
		return errors.New("account id is required")
	}
	email := account.NormalizeEmail(rec.Email)
	rec.Email = email

	args := []interface{}{rec.ID}
	args = append(args, encodeRecord(rec)...)

	created, err := createLua.Run(ctx, s.redis, []string{s.emailKey(email), s.accountKey(rec.ID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", account.ErrUnavailable, err)
	}
	if created == 0 {
		return account.ErrDuplicateEmail
	}
	return nil
}

// FindByEmail loads the account registered under email.
func (s *Store) FindByEmail(ctx context.Context, email string) (account.Account, error) {
	acc, _, err := s.loadByEmail(ctx, email)
	return acc, err
}

// FindByID loads an account by id.
func (s *Store) FindByID(ctx context.Context, id string) (account.Account, error) {
	acc, _, err := s.load(ctx, id)
	return acc, err
}

// Secrets loads the account under email together with its hidden fields.
func (s *Store) Secrets(ctx context.Context, email string) (account.Account, account.Secrets, error) {
	return s.loadByEmail(ctx, email)
}

func (s *Store) loadByEmail(ctx context.Context, email string) (account.Account, account.Secrets, error) {
	id, err := s.redis.Get(ctx, s.emailKey(account.NormalizeEmail(email))).Result()
	if errors.Is(err, redis.Nil) {
		return account.Account{}, account.Secrets{}, account.ErrNotFound
	}
	if err != nil {
		return account.Account{}, account.Secrets{}, fmt.Errorf("%w: %v", account.ErrUnavailable, err)
	}
	return s.load(ctx, id)
}

func (s *Store) load(ctx context.Context, id string) (account.Account, account.Secrets, error) {
	if id == "" {
		return account.Account{}, account.Secrets{}, account.ErrNotFound
	}
	fields, err := s.redis.HGetAll(ctx, s.accountKey(id)).Result()
	if err != nil {
		return account.Account{}, account.Secrets{}, fmt.Errorf("%w: %v", account.ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return account.Account{}, account.Secrets{}, account.ErrNotFound
	}
	return decodeRecord(fields)
}

// Update applies patch if the stored version still equals version.
func (s *Store) Update(ctx context.Context, id string, version uint64, patch account.Patch) (account.Account, error) {
	if err := patch.Validate(); err != nil {
		return account.Account{}, err
	}

	set, del := encodePatch(patch)
	revoke := "0"
	if patch.RevokeSessions {
		revoke = "1"
	}

	args := make([]interface{}, 0, 4+len(set)+len(del))
	args = append(args,
		strconv.FormatUint(version, 10),
		revoke,
		unixMilli(s.now()),
		len(set)/2,
	)
	args = append(args, set...)
	args = append(args, del...)

	res, err := updateLua.Run(ctx, s.redis, []string{s.accountKey(id), s.familyKey(id)}, args...).Int()
	if err != nil {
		return account.Account{}, fmt.Errorf("%w: %v", account.ErrUnavailable, err)
	}
	switch res {
	case -1:
		return account.Account{}, account.ErrNotFound
	case 0:
		return account.Account{}, account.ErrVersionConflict
	}
	return s.FindByID(ctx, id)
}

// AddRefreshToken inserts digest into the family and prunes expired digests,
// but only while the account is still at version.
func (s *Store) AddRefreshToken(ctx context.Context, id string, version uint64, digest string, expiresAt time.Time) error {
	res, err := addTokenLua.Run(ctx, s.redis, []string{s.accountKey(id), s.familyKey(id)},
		digest, expiresAt.UnixMilli(), s.now().UnixMilli(), strconv.FormatUint(version, 10),
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", account.ErrUnavailable, err)
	}
	switch res {
	case -1:
		return account.ErrNotFound
	case 0:
		return account.ErrVersionConflict
	}
	return nil
}

// RotateRefreshToken swaps oldDigest for newDigest in one step. Only the
// caller whose removal succeeds inserts the replacement.
func (s *Store) RotateRefreshToken(ctx context.Context, id, oldDigest, newDigest string, expiresAt time.Time) (bool, error) {
	res, err := rotateLua.Run(ctx, s.redis, []string{s.familyKey(id)},
		oldDigest, newDigest, expiresAt.UnixMilli(), s.now().UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", account.ErrUnavailable, err)
	}
	return res == 1, nil
}

// RemoveRefreshToken drops one digest from the family.
func (s *Store) RemoveRefreshToken(ctx context.Context, id, digest string) (bool, error) {
	n, err := s.redis.ZRem(ctx, s.familyKey(id), digest).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", account.ErrUnavailable, err)
	}
	return n == 1, nil
}

// RevokeRefreshTokens empties the family.
func (s *Store) RevokeRefreshTokens(ctx context.Context, id string) (int, error) {
	key := s.familyKey(id)

	var card *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		card = pipe.ZCard(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", account.ErrUnavailable, err)
	}
	return int(card.Val()), nil
}

// RefreshTokenCount counts unexpired digests in the family.
func (s *Store) RefreshTokenCount(ctx context.Context, id string) (int, error) {
	n, err := s.redis.ZCount(ctx, s.familyKey(id), "("+unixMilli(s.now()), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", account.ErrUnavailable, err)
	}
	return int(n), nil
}
