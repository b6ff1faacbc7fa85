package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrEthical07/storeauth"
	"github.com/MrEthical07/storeauth/account"
)

// Authorizer validates an access token and returns the account behind it.
// *storeauth.Engine implements it.
type Authorizer interface {
	Authorize(ctx context.Context, accessToken string) (account.Account, error)
}

type accountContextKey struct{}

// AccountFromContext returns the account stored by RequireAccount.
func AccountFromContext(ctx context.Context) (account.Account, bool) {
	acc, ok := ctx.Value(accountContextKey{}).(account.Account)
	return acc, ok
}

// ContextWithAccount returns ctx carrying acc, as RequireAccount does.
func ContextWithAccount(ctx context.Context, acc account.Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, acc)
}

type options struct {
	cookieName string
}

// Option configures RequireAccount.
type Option func(*options)

// WithCookieName reads the access token from the named cookie when no
// Authorization header is sent. An empty name disables the cookie.
func WithCookieName(name string) Option {
	return func(o *options) {
		o.cookieName = name
	}
}

// RequireAccount rejects requests without a valid access token. The token is
// taken from "Authorization: Bearer" first and from the access cookie second.
// Rejections are written as JSON with the status from
// storeauth.AccessErrorResponse.
func RequireAccount(auth Authorizer, opts ...Option) func(http.Handler) http.Handler {
	o := options{cookieName: "token"}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				writeError(w, storeauth.ErrEngineNotReady)
				return
			}

			token, ok := accessToken(r, o.cookieName)
			if !ok {
				writeError(w, storeauth.ErrMissingToken)
				return
			}

			acc, err := auth.Authorize(r.Context(), token)
			if err != nil {
				writeError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithAccount(r.Context(), acc)))
		})
	}
}

func accessToken(r *http.Request, cookieName string) (string, bool) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	if cookieName == "" {
		return "", false
	}
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func writeError(w http.ResponseWriter, err error) {
	status, resp := storeauth.AccessErrorResponse(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
