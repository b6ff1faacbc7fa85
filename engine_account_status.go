package storeauth

import (
	"context"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/internal/flows"
)

// Gate reports whether acc may hold a session: nil for a verified, active
// account, ErrNotVerified or an *AccountBlockedError otherwise.
func (e *Engine) Gate(acc account.Account) error {
	return flows.Gate(acc, flowErrors())
}

// UpdateAccountStatus sets the status of an account. Any status other than
// active also revokes every session, so the block applies on the next
// refresh instead of when the refresh token expires. Access tokens already
// issued are refused by Authorize as soon as the status changes.
func (e *Engine) UpdateAccountStatus(ctx context.Context, accountID string, status account.Status) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.UpdateAccountStatus(ctx, accountID, status)
}

func (e *Engine) statusFlowDeps() flows.StatusDeps {
	return flows.StatusDeps{
		Store:   e.store,
		Hooks:   e.flowHooks(),
		Metrics: flowMetrics(),
		Events:  flowEvents(),
		Errors:  flowErrors(),
	}
}
