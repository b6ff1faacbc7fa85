package test

import (
	"context"
	"net/http"
	"testing"

	"github.com/MrEthical07/storeauth"
	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/account/pgstore"
	"github.com/MrEthical07/storeauth/account/redisstore"
	"github.com/MrEthical07/storeauth/httpapi"
	"github.com/MrEthical07/storeauth/mail"
	"github.com/MrEthical07/storeauth/middleware"
)

// Guards the exported surface that consumers compile against.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = storeauth.New

	var _ *storeauth.Engine
	var _ storeauth.Config
	var _ storeauth.TokenPair
	var _ storeauth.RegisterRequest
	var _ storeauth.RegisterResult
	var _ storeauth.AuditSink
	var _ storeauth.MetricsSnapshot

	var _ account.Store = (*redisstore.Store)(nil)
	var _ account.Store = (*pgstore.Store)(nil)
	var _ mail.Sender = (*mail.LogSender)(nil)
	var _ mail.Sender = (*mail.SMTPSender)(nil)
	var _ httpapi.Service = (*storeauth.Engine)(nil)
	var _ middleware.Authorizer = (*storeauth.Engine)(nil)

	var _ error = storeauth.ErrInvalidCredentials
	var _ error = storeauth.ErrTokenReuse
	var _ error = storeauth.ErrInvalidToken
	var _ error = storeauth.ErrNotVerified
	var _ error = storeauth.ErrAccountBlocked
	var _ error = storeauth.ErrResetInvalid

	var _ func(middleware.Authorizer, ...middleware.Option) func(http.Handler) http.Handler = middleware.RequireAccount
	var _ func(...account.Role) func(http.Handler) http.Handler = middleware.RequireRole

	var _ func(*storeauth.Engine, context.Context, string, string) (storeauth.TokenPair, error) = (*storeauth.Engine).Login
	var _ func(*storeauth.Engine, context.Context, string) (storeauth.TokenPair, error) = (*storeauth.Engine).Refresh
	var _ func(*storeauth.Engine, context.Context, string) (account.Account, error) = (*storeauth.Engine).Authorize
	var _ func(*storeauth.Engine, context.Context, string) error = (*storeauth.Engine).Logout
	var _ func(*storeauth.Engine, context.Context, string) (int, error) = (*storeauth.Engine).LogoutAll
}
