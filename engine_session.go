package storeauth

import (
	"context"
	"time"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/internal"
	"github.com/MrEthical07/storeauth/internal/flows"
)

// Login checks the password and opens a new session.
//
// An unknown email and a wrong password both return ErrInvalidCredentials.
// Verification and status are only checked after the password matched, so
// they are never disclosed to someone guessing. Each login adds one refresh
// token to the account; sessions on other devices stay valid.
func (e *Engine) Login(ctx context.Context, email, password string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	res, err := e.flows.Login(ctx, email, password)
	if err != nil {
		return TokenPair{}, err
	}
	return tokenPair(res), nil
}

// Refresh consumes refreshToken and returns a new pair.
//
// A token that was already consumed, by this caller or anyone else, revokes
// every session of the account and returns ErrTokenReuse. When two requests
// race with the same token exactly one succeeds.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	res, err := e.flows.Refresh(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	return tokenPair(res), nil
}

// Logout ends the session of refreshToken. Logging out twice is not an error.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.Logout(ctx, refreshToken)
}

// LogoutAll ends every session of accountID and returns how many there were.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	return e.flows.LogoutAll(ctx, accountID)
}

// Authorize validates an access token and returns the account it belongs to,
// after running the gate against the account's current state.
func (e *Engine) Authorize(ctx context.Context, accessToken string) (account.Account, error) {
	if !e.ready() {
		return account.Account{}, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricAuthorizeLatency, time.Since(start))
	}()
	return e.flows.Authorize(ctx, accessToken)
}

func tokenPair(res flows.SessionResult) TokenPair {
	return TokenPair{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.RefreshExpiresAt,
		Account:          res.Account,
	}
}

func (e *Engine) sessionFlowDeps() flows.SessionDeps {
	return flows.SessionDeps{
		UpgradeOnLogin: e.config.Password.UpgradeOnLogin,
		DummyHash:      e.dummyHash,
		Now:            e.now,
		Store:          e.store,
		VerifySecret:   e.passwordHash.Verify,
		HashSecret:     e.passwordHash.Hash,
		NeedsUpgrade:   e.passwordHash.NeedsUpgrade,
		MintAccess: func(accountID string) (string, error) {
			token, _, err := e.access.Create(accountID)
			return token, err
		},
		MintRefresh: func(accountID string) (string, time.Time, error) {
			token, claims, err := e.refresh.Create(accountID)
			if err != nil {
				return "", time.Time{}, err
			}
			return token, claims.ExpiresAt.Time, nil
		},
		ParseAccess: func(token string) (string, error) {
			claims, err := e.access.Parse(token)
			if err != nil {
				return "", err
			}
			return claims.AccountID(), nil
		},
		ParseRefresh: func(token string) (string, error) {
			claims, err := e.refresh.Parse(token)
			if err != nil {
				return "", err
			}
			return claims.AccountID(), nil
		},
		Digest:  internal.TokenDigest,
		Hooks:   e.flowHooks(),
		Metrics: flowMetrics(),
		Events:  flowEvents(),
		Errors:  flowErrors(),
	}
}
