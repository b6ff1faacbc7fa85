package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/storeauth/account"
)

// StatusDeps captures administrative status change dependencies.
type StatusDeps struct {
	Store account.Store

	Hooks   Hooks
	Metrics Metrics
	Events  Events
	Errors  Errors
}

// RunUpdateAccountStatus sets the status of accountID. Moving an account out
// of active revokes its family in the same update, so the block applies at
// the next refresh rather than when the refresh token expires.
func RunUpdateAccountStatus(ctx context.Context, accountID string, status account.Status, deps StatusDeps) error {
	deps.Hooks = deps.Hooks.normalize()
	if deps.Store == nil || deps.Errors.Validation == nil {
		return deps.Errors.EngineNotReady
	}
	if accountID == "" || !status.Valid() {
		return deps.Errors.Validation("Invalid request")
	}

	acc, err := deps.Store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return deps.Errors.AccountNotFound
		}
		return err
	}
	if acc.Status == status {
		return nil
	}

	if _, err := deps.Store.Update(ctx, acc.ID, acc.Version, account.Patch{
		Status:         &status,
		RevokeSessions: status != account.StatusActive,
	}); err != nil {
		return storeError(err, deps.Errors)
	}

	deps.Hooks.MetricInc(deps.Metrics.StatusChanged)
	deps.Hooks.EmitAudit(ctx, deps.Events.StatusChanged, true, acc.ID, nil, func() map[string]string {
		return map[string]string{
			"from": string(acc.Status),
			"to":   string(status),
		}
	})
	return nil
}
