// Package pgstore implements account.Store on PostgreSQL.
//
// Uniqueness comes from the accounts_email_key constraint, optimistic
// concurrency from a version column, and refresh rotation from a single
// DELETE ... RETURNING feeding an INSERT, so the losing side of a concurrent
// rotation sees zero affected rows.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/storeauth/account"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

const uniqueViolation = "23505"

const accountColumns = `id, email, name, role, status, verified, version, created_at, updated_at`

const secretColumns = accountColumns + `, password_hash, otp_hash, otp_expires_at, reset_hash, reset_expires_at`

// poolIface is the subset of *pgxpool.Pool the store needs. pgxmock satisfies it.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is a PostgreSQL-backed account.Store.
type Store struct {
	pool poolIface
	now  func() time.Time
}

// New creates a Store on pool.
func New(pool poolIface) *Store {
	return &Store{pool: pool, now: time.Now}
}

func unavailable(code, operation string, err error) error {
	return oops.Code(code).
		With("operation", operation).
		Wrap(errors.Join(account.ErrUnavailable, err))
}

// Create inserts rec. A taken email maps to account.ErrDuplicateEmail.
func (s *Store) Create(ctx context.Context, rec account.Record) error {
	email := account.NormalizeEmail(rec.Email)

	var otpHash, resetHash *string
	var otpExpires, resetExpires *time.Time
	if rec.OTP != nil {
		otpHash, otpExpires = &rec.OTP.Hash, &rec.OTP.ExpiresAt
	}
	if rec.Reset != nil {
		resetHash, resetExpires = &rec.Reset.Hash, &rec.Reset.ExpiresAt
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (
			id, email, name, role, status, verified, version,
			password_hash, otp_hash, otp_expires_at, reset_hash, reset_expires_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		rec.ID, email, rec.Name, string(rec.Role), string(rec.Status), rec.Verified, int64(rec.Version),
		rec.PasswordHash, otpHash, otpExpires, resetHash, resetExpires,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return oops.Code("ACCOUNT_DUPLICATE_EMAIL").
				With("email", email).
				Wrap(account.ErrDuplicateEmail)
		}
		return unavailable("ACCOUNT_CREATE_FAILED", "insert account", err)
	}
	return nil
}

// FindByEmail loads the account registered under email.
func (s *Store) FindByEmail(ctx context.Context, email string) (account.Account, error) {
	email = account.NormalizeEmail(email)
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)

	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.Account{}, oops.Code("ACCOUNT_NOT_FOUND").With("email", email).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return account.Account{}, unavailable("ACCOUNT_GET_BY_EMAIL_FAILED", "select account by email", err)
	}
	return acc, nil
}

// FindByID loads an account by id.
func (s *Store) FindByID(ctx context.Context, id string) (account.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)

	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.Account{}, oops.Code("ACCOUNT_NOT_FOUND").With("id", id).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return account.Account{}, unavailable("ACCOUNT_GET_BY_ID_FAILED", "select account by id", err)
	}
	return acc, nil
}

// Secrets loads the account under email together with its hidden fields.
func (s *Store) Secrets(ctx context.Context, email string) (account.Account, account.Secrets, error) {
	email = account.NormalizeEmail(email)
	row := s.pool.QueryRow(ctx, `SELECT `+secretColumns+` FROM accounts WHERE email = $1`, email)

	acc, sec, err := scanSecrets(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return account.Account{}, account.Secrets{}, oops.Code("ACCOUNT_NOT_FOUND").With("email", email).Wrap(account.ErrNotFound)
	}
	if err != nil {
		return account.Account{}, account.Secrets{}, unavailable("ACCOUNT_GET_SECRETS_FAILED", "select account secrets", err)
	}
	return acc, sec, nil
}

// Update applies patch when the stored version equals version. A patch with
// RevokeSessions runs the update and the family wipe in one transaction.
func (s *Store) Update(ctx context.Context, id string, version uint64, patch account.Patch) (account.Account, error) {
	if err := patch.Validate(); err != nil {
		return account.Account{}, err
	}

	query, args := buildUpdate(id, version, patch, s.now())

	if !patch.RevokeSessions {
		acc, err := scanAccount(s.pool.QueryRow(ctx, query, args...))
		if errors.Is(err, pgx.ErrNoRows) {
			return account.Account{}, s.missOrConflict(ctx, id)
		}
		if err != nil {
			return account.Account{}, unavailable("ACCOUNT_UPDATE_FAILED", "update account", err)
		}
		return acc, nil
	}

	var acc account.Account
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var scanErr error
		acc, scanErr = scanAccount(tx.QueryRow(ctx, query, args...))
		if scanErr != nil {
			return scanErr
		}
		_, execErr := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE account_id = $1`, id)
		return execErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return account.Account{}, s.missOrConflict(ctx, id)
	}
	if err != nil {
		return account.Account{}, unavailable("ACCOUNT_UPDATE_FAILED", "update account and revoke sessions", err)
	}
	return acc, nil
}

// missOrConflict tells a missing row from a stale version after an update
// matched nothing.
func (s *Store) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return unavailable("ACCOUNT_UPDATE_FAILED", "check account existence", err)
	}
	if !exists {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id).Wrap(account.ErrNotFound)
	}
	return oops.Code("ACCOUNT_VERSION_CONFLICT").With("id", id).Wrap(account.ErrVersionConflict)
}

func buildUpdate(id string, version uint64, p account.Patch, now time.Time) (string, []any) {
	args := []any{id, int64(version)}
	sets := make([]string, 0, 10)

	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p.Verified != nil {
		set("verified", *p.Verified)
	}
	if p.Status != nil {
		set("status", string(*p.Status))
	}
	if p.PasswordHash != nil {
		set("password_hash", *p.PasswordHash)
	}
	switch {
	case p.OTP != nil:
		set("otp_hash", p.OTP.Hash)
		set("otp_expires_at", p.OTP.ExpiresAt)
	case p.ClearOTP:
		sets = append(sets, "otp_hash = NULL", "otp_expires_at = NULL")
	}
	switch {
	case p.Reset != nil:
		set("reset_hash", p.Reset.Hash)
		set("reset_expires_at", p.Reset.ExpiresAt)
	case p.ClearReset:
		sets = append(sets, "reset_hash = NULL", "reset_expires_at = NULL")
	}
	set("updated_at", now)
	sets = append(sets, "version = version + 1")

	query := `UPDATE accounts SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 AND version = $2 RETURNING ` + accountColumns
	return query, args
}

// AddRefreshToken inserts digest and prunes the account's expired digests.
// The insert reads the account row FOR SHARE, so it either waits for a
// concurrent version bump and then matches nothing, or finishes before that
// update's family wipe runs.
func (s *Store) AddRefreshToken(ctx context.Context, id string, version uint64, digest string, expiresAt time.Time) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE account_id = $1 AND expires_at <= $2`,
		id, s.now(),
	); err != nil {
		return unavailable("REFRESH_TOKEN_PRUNE_FAILED", "prune refresh tokens", err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (token_hash, account_id, expires_at)
		SELECT $3, id, $4 FROM accounts
		WHERE id = $1 AND version = $2
		FOR SHARE
	`, id, int64(version), digest, expiresAt)
	if err != nil {
		return unavailable("REFRESH_TOKEN_ADD_FAILED", "insert refresh token", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, id)
	}
	return nil
}

// RotateRefreshToken replaces oldDigest with newDigest only when this call
// deleted oldDigest.
func (s *Store) RotateRefreshToken(ctx context.Context, id, oldDigest, newDigest string, expiresAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		WITH removed AS (
			DELETE FROM refresh_tokens
			WHERE account_id = $1 AND token_hash = $2
			RETURNING account_id
		)
		INSERT INTO refresh_tokens (token_hash, account_id, expires_at)
		SELECT $3, account_id, $4 FROM removed
	`, id, oldDigest, newDigest, expiresAt)
	if err != nil {
		return false, unavailable("REFRESH_TOKEN_ROTATE_FAILED", "rotate refresh token", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RemoveRefreshToken drops one digest.
func (s *Store) RemoveRefreshToken(ctx context.Context, id, digest string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE account_id = $1 AND token_hash = $2`,
		id, digest,
	)
	if err != nil {
		return false, unavailable("REFRESH_TOKEN_REMOVE_FAILED", "delete refresh token", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RevokeRefreshTokens deletes the whole family.
func (s *Store) RevokeRefreshTokens(ctx context.Context, id string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE account_id = $1`, id)
	if err != nil {
		return 0, unavailable("REFRESH_TOKEN_REVOKE_FAILED", "delete refresh tokens", err)
	}
	return int(tag.RowsAffected()), nil
}

// RefreshTokenCount counts unexpired digests.
func (s *Store) RefreshTokenCount(ctx context.Context, id string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM refresh_tokens WHERE account_id = $1 AND expires_at > $2`,
		id, s.now(),
	).Scan(&n)
	if err != nil {
		return 0, unavailable("REFRESH_TOKEN_COUNT_FAILED", "count refresh tokens", err)
	}
	return n, nil
}

func scanAccount(row pgx.Row) (account.Account, error) {
	var (
		acc     account.Account
		role    string
		status  string
		version int64
	)
	if err := row.Scan(
		&acc.ID, &acc.Email, &acc.Name, &role, &status, &acc.Verified, &version,
		&acc.CreatedAt, &acc.UpdatedAt,
	); err != nil {
		return account.Account{}, err
	}
	acc.Role = account.Role(role)
	acc.Status = account.Status(status)
	acc.Version = uint64(version)
	return acc, nil
}

func scanSecrets(row pgx.Row) (account.Account, account.Secrets, error) {
	var (
		acc                      account.Account
		sec                      account.Secrets
		role, status             string
		version                  int64
		otpHash, resetHash       *string
		otpExpires, resetExpires *time.Time
	)
	if err := row.Scan(
		&acc.ID, &acc.Email, &acc.Name, &role, &status, &acc.Verified, &version,
		&acc.CreatedAt, &acc.UpdatedAt,
		&sec.PasswordHash, &otpHash, &otpExpires, &resetHash, &resetExpires,
	); err != nil {
		return account.Account{}, account.Secrets{}, err
	}
	acc.Role = account.Role(role)
	acc.Status = account.Status(status)
	acc.Version = uint64(version)
	if otpHash != nil && otpExpires != nil {
		sec.OTP = &account.Challenge{Hash: *otpHash, ExpiresAt: *otpExpires}
	}
	if resetHash != nil && resetExpires != nil {
		sec.Reset = &account.Challenge{Hash: *resetHash, ExpiresAt: *resetExpires}
	}
	return acc, sec, nil
}
