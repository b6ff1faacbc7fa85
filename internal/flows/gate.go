package flows

import "github.com/MrEthical07/storeauth/account"

// Gate admits an account only when it is verified and active. Login, refresh
// and per-request authorization all go through it.
func Gate(acc account.Account, errs Errors) error {
	if !acc.Verified {
		return errs.NotVerified
	}
	if acc.Status != account.StatusActive {
		if errs.Blocked == nil {
			return errs.EngineNotReady
		}
		return errs.Blocked(acc.Status)
	}
	return nil
}
