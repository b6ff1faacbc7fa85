package flows

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/storeauth/account"
)

// SessionDeps captures login, refresh, logout and authorize dependencies.
type SessionDeps struct {
	// UpgradeOnLogin re-hashes legacy or weaker password hashes after a
	// successful login.
	UpgradeOnLogin bool
	// DummyHash is verified against for unknown emails so both failure
	// paths cost one hash comparison.
	DummyHash string

	Now func() time.Time

	Store        account.Store
	VerifySecret func(secret, hash string) (bool, error)
	HashSecret   func(string) (string, error)
	NeedsUpgrade func(hash string) (bool, error)

	MintAccess   func(accountID string) (string, error)
	MintRefresh  func(accountID string) (string, time.Time, error)
	ParseAccess  func(token string) (string, error)
	ParseRefresh func(token string) (string, error)
	Digest       func(token string) string

	Hooks   Hooks
	Metrics Metrics
	Events  Events
	Errors  Errors
}

// SessionResult is the flow-local token pair.
type SessionResult struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	Account          account.Account
}

func normalizeSessionDeps(deps SessionDeps) (SessionDeps, error) {
	deps.Hooks = deps.Hooks.normalize()
	deps.Now = normalizeNow(deps.Now)
	if deps.Store == nil ||
		deps.VerifySecret == nil ||
		deps.MintAccess == nil ||
		deps.MintRefresh == nil ||
		deps.ParseAccess == nil ||
		deps.ParseRefresh == nil ||
		deps.Digest == nil ||
		deps.Errors.Validation == nil {
		return deps, deps.Errors.EngineNotReady
	}
	return deps, nil
}

// RunLogin checks the password before the gate, so verification state and
// status are only disclosed to a caller holding the right password. The
// refresh token joins the family only if the account is still at the version
// that was checked; a reset or status change committed in between fails the
// login with a conflict.
func RunLogin(ctx context.Context, email, password string, deps SessionDeps) (SessionResult, error) {
	deps, err := normalizeSessionDeps(deps)
	if err != nil {
		return SessionResult{}, err
	}

	email = account.NormalizeEmail(email)
	if email == "" || password == "" {
		return SessionResult{}, deps.Errors.Validation("Email and password are required")
	}

	acc, sec, err := deps.Store.Secrets(ctx, email)
	if err != nil {
		if !errors.Is(err, account.ErrNotFound) {
			return SessionResult{}, err
		}
		if deps.DummyHash != "" {
			_, _ = deps.VerifySecret(password, deps.DummyHash)
		}
		return SessionResult{}, loginFailed(ctx, deps, "", "unknown_email", deps.Errors.InvalidCredentials)
	}

	ok, err := deps.VerifySecret(password, sec.PasswordHash)
	if err != nil || !ok {
		return SessionResult{}, loginFailed(ctx, deps, acc.ID, "password_mismatch", deps.Errors.InvalidCredentials)
	}

	if gateErr := Gate(acc, deps.Errors); gateErr != nil {
		return SessionResult{}, loginFailed(ctx, deps, acc.ID, "account_gate", gateErr)
	}

	if deps.UpgradeOnLogin && deps.NeedsUpgrade != nil && deps.HashSecret != nil {
		if needs, err := deps.NeedsUpgrade(sec.PasswordHash); err == nil && needs {
			if upgraded, err := deps.HashSecret(password); err == nil {
				if updated, err := deps.Store.Update(ctx, acc.ID, acc.Version, account.Patch{PasswordHash: &upgraded}); err != nil {
					deps.Hooks.Warn("storeauth: password hash upgrade update failed", "account_id", acc.ID, "error", err)
				} else {
					acc = updated
					deps.Hooks.MetricInc(deps.Metrics.HashUpgraded)
				}
			} else {
				deps.Hooks.Warn("storeauth: password hash upgrade generation failed", "account_id", acc.ID)
			}
		}
	}
	result, err := issuePair(acc, deps)
	if err != nil {
		return SessionResult{}, err
	}
	if err := deps.Store.AddRefreshToken(ctx, acc.ID, acc.Version, deps.Digest(result.RefreshToken), result.RefreshExpiresAt); err != nil {
		switch {
		case errors.Is(err, account.ErrVersionConflict):
			return SessionResult{}, loginFailed(ctx, deps, acc.ID, "concurrent_update", storeError(err, deps.Errors))
		case errors.Is(err, account.ErrNotFound):
			return SessionResult{}, loginFailed(ctx, deps, acc.ID, "account_gone", deps.Errors.InvalidCredentials)
		}
		return SessionResult{}, err
	}

	deps.Hooks.MetricInc(deps.Metrics.LoginSuccess)
	deps.Hooks.EmitAudit(ctx, deps.Events.LoginSuccess, true, acc.ID, nil, nil)
	return result, nil
}

func loginFailed(ctx context.Context, deps SessionDeps, accountID, reason string, err error) error {
	deps.Hooks.MetricInc(deps.Metrics.LoginFailure)
	deps.Hooks.EmitAudit(ctx, deps.Events.LoginFailure, false, accountID, err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return err
}

func issuePair(acc account.Account, deps SessionDeps) (SessionResult, error) {
	access, err := deps.MintAccess(acc.ID)
	if err != nil {
		return SessionResult{}, err
	}
	refresh, expiresAt, err := deps.MintRefresh(acc.ID)
	if err != nil {
		return SessionResult{}, err
	}
	return SessionResult{
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshExpiresAt: expiresAt,
		Account:          acc,
	}, nil
}

// RunRefresh rotates a refresh token. The presented token must still be in
// the account's family; if it is not, or a concurrent refresh consumed it
// first, the whole family is revoked.
func RunRefresh(ctx context.Context, refreshToken string, deps SessionDeps) (SessionResult, error) {
	deps, err := normalizeSessionDeps(deps)
	if err != nil {
		return SessionResult{}, err
	}
	if refreshToken == "" {
		return SessionResult{}, refreshFailed(ctx, deps, "", deps.Errors.MissingToken)
	}

	accountID, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		return SessionResult{}, refreshFailed(ctx, deps, "", deps.Errors.InvalidToken)
	}

	acc, err := deps.Store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return SessionResult{}, refreshFailed(ctx, deps, accountID, deps.Errors.TokenReuse)
		}
		return SessionResult{}, err
	}

	digest := deps.Digest(refreshToken)

	if gateErr := Gate(acc, deps.Errors); gateErr != nil {
		removed, err := deps.Store.RemoveRefreshToken(ctx, acc.ID, digest)
		if err != nil {
			return SessionResult{}, err
		}
		if !removed {
			return SessionResult{}, revokeOnReuse(ctx, deps, acc.ID)
		}
		return SessionResult{}, refreshFailed(ctx, deps, acc.ID, gateErr)
	}

	result, err := issuePair(acc, deps)
	if err != nil {
		return SessionResult{}, err
	}

	rotated, err := deps.Store.RotateRefreshToken(ctx, acc.ID, digest, deps.Digest(result.RefreshToken), result.RefreshExpiresAt)
	if err != nil {
		return SessionResult{}, err
	}
	if !rotated {
		return SessionResult{}, revokeOnReuse(ctx, deps, acc.ID)
	}

	deps.Hooks.MetricInc(deps.Metrics.RefreshSuccess)
	deps.Hooks.EmitAudit(ctx, deps.Events.Refresh, true, acc.ID, nil, nil)
	return result, nil
}

func refreshFailed(ctx context.Context, deps SessionDeps, accountID string, err error) error {
	deps.Hooks.MetricInc(deps.Metrics.RefreshFailure)
	deps.Hooks.EmitAudit(ctx, deps.Events.Refresh, false, accountID, err, nil)
	return err
}

// revokeOnReuse wipes the family. A failed wipe is logged; the caller still
// gets the reuse error.
func revokeOnReuse(ctx context.Context, deps SessionDeps, accountID string) error {
	revoked, err := deps.Store.RevokeRefreshTokens(ctx, accountID)
	if err != nil {
		deps.Hooks.Warn("storeauth: session family revoke failed after reuse", "account_id", accountID, "error", err)
	}
	deps.Hooks.MetricInc(deps.Metrics.ReuseDetected)
	deps.Hooks.EmitAudit(ctx, deps.Events.ReuseDetected, false, accountID, deps.Errors.TokenReuse, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(revoked)}
	})
	return deps.Errors.TokenReuse
}

// RunLogout removes the presented refresh token from its family. Logging out
// a token that is already gone succeeds.
func RunLogout(ctx context.Context, refreshToken string, deps SessionDeps) error {
	deps, err := normalizeSessionDeps(deps)
	if err != nil {
		return err
	}
	if refreshToken == "" {
		return deps.Errors.MissingToken
	}

	accountID, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		return deps.Errors.InvalidToken
	}

	if _, err := deps.Store.RemoveRefreshToken(ctx, accountID, deps.Digest(refreshToken)); err != nil {
		return err
	}

	deps.Hooks.MetricInc(deps.Metrics.Logout)
	deps.Hooks.EmitAudit(ctx, deps.Events.Logout, true, accountID, nil, nil)
	return nil
}

// RunLogoutAll empties the family of accountID and returns how many sessions
// it held.
func RunLogoutAll(ctx context.Context, accountID string, deps SessionDeps) (int, error) {
	deps, err := normalizeSessionDeps(deps)
	if err != nil {
		return 0, err
	}
	if accountID == "" {
		return 0, deps.Errors.Validation("Account id is required")
	}

	revoked, err := deps.Store.RevokeRefreshTokens(ctx, accountID)
	if err != nil {
		return 0, err
	}

	deps.Hooks.MetricInc(deps.Metrics.LogoutAll)
	deps.Hooks.EmitAudit(ctx, deps.Events.LogoutAll, true, accountID, nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(revoked)}
	})
	return revoked, nil
}

// RunAuthorize resolves an access token to its account and applies the gate
// against the stored record.
func RunAuthorize(ctx context.Context, accessToken string, deps SessionDeps) (account.Account, error) {
	deps, err := normalizeSessionDeps(deps)
	if err != nil {
		return account.Account{}, err
	}
	if accessToken == "" {
		return account.Account{}, deps.Errors.MissingToken
	}

	accountID, err := deps.ParseAccess(accessToken)
	if err != nil {
		return account.Account{}, deps.Errors.InvalidToken
	}

	acc, err := deps.Store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return account.Account{}, deps.Errors.InvalidToken
		}
		return account.Account{}, err
	}

	if err := Gate(acc, deps.Errors); err != nil {
		return account.Account{}, err
	}
	return acc, nil
}
