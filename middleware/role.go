package middleware

import (
	"net/http"
	"slices"

	"github.com/MrEthical07/storeauth"
	"github.com/MrEthical07/storeauth/account"
)

// RequireRole lets through accounts holding one of roles. It must run after
// RequireAccount.
func RequireRole(roles ...account.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc, ok := AccountFromContext(r.Context())
			if !ok {
				writeError(w, storeauth.ErrMissingToken)
				return
			}
			if !slices.Contains(roles, acc.Role) {
				writeError(w, storeauth.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
