package flows

import (
	"context"

	"github.com/MrEthical07/storeauth/account"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Session.Store != nil
}

func (s Service) Register(ctx context.Context, in RegisterInput) (account.Account, error) {
	return RunRegister(ctx, in, s.deps.Registration)
}

func (s Service) VerifyEmail(ctx context.Context, email, otp string) error {
	return RunVerifyEmail(ctx, email, otp, s.deps.Registration)
}

func (s Service) ResendOTP(ctx context.Context, email string) error {
	return RunResendOTP(ctx, email, s.deps.Registration)
}

func (s Service) Login(ctx context.Context, email, password string) (SessionResult, error) {
	return RunLogin(ctx, email, password, s.deps.Session)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) (SessionResult, error) {
	return RunRefresh(ctx, refreshToken, s.deps.Session)
}

func (s Service) Logout(ctx context.Context, refreshToken string) error {
	return RunLogout(ctx, refreshToken, s.deps.Session)
}

func (s Service) LogoutAll(ctx context.Context, accountID string) (int, error) {
	return RunLogoutAll(ctx, accountID, s.deps.Session)
}

func (s Service) Authorize(ctx context.Context, accessToken string) (account.Account, error) {
	return RunAuthorize(ctx, accessToken, s.deps.Session)
}

func (s Service) Gate(acc account.Account) error {
	return Gate(acc, s.deps.Session.Errors)
}

func (s Service) ForgotPassword(ctx context.Context, email string) error {
	return RunForgotPassword(ctx, email, s.deps.Recovery)
}

func (s Service) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	return RunResetPassword(ctx, email, otp, newPassword, s.deps.Recovery)
}

func (s Service) UpdateAccountStatus(ctx context.Context, accountID string, status account.Status) error {
	return RunUpdateAccountStatus(ctx, accountID, status, s.deps.Status)
}
