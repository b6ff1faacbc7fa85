package storeauth

import (
	"context"

	"github.com/google/uuid"

	"github.com/MrEthical07/storeauth/internal/flows"
)

// Register creates an unverified account and emails a verification OTP.
//
// The email is trimmed and lower-cased before use, so "Alice@X.com" and
// "alice@x.com" collide with ErrEmailExists. Mail delivery happens in the
// background and never affects the result.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	if !e.ready() {
		return RegisterResult{}, ErrEngineNotReady
	}
	acc, err := e.flows.Register(ctx, flows.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return RegisterResult{}, err
	}
	return RegisterResult{Account: acc}, nil
}

// VerifyEmail consumes the registration OTP and marks the account verified.
// A code is accepted once. When another verify of the same account commits
// first it fails with ErrConcurrentUpdate; unrelated concurrent writes such as
// a password reset request do not make a correct code fail.
func (e *Engine) VerifyEmail(ctx context.Context, email, otp string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.VerifyEmail(ctx, email, otp)
}

// ResendOTP issues a fresh verification code once the previous one expired.
// While a code is live it fails with ErrOTPNotExpired.
func (e *Engine) ResendOTP(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.ResendOTP(ctx, email)
}

func (e *Engine) registrationFlowDeps() flows.RegistrationDeps {
	cfg := e.config
	return flows.RegistrationDeps{
		OTPDigits:         cfg.OTP.Digits,
		OTPTTL:            cfg.OTP.TTL,
		DefaultRole:       cfg.Account.DefaultRole,
		MinPasswordLength: cfg.Password.MinLength,
		Now:               e.now,
		NewID:             uuid.NewString,
		Store:             e.store,
		HashSecret:        e.passwordHash.Hash,
		VerifySecret:      e.passwordHash.Verify,
		SendOTP:           e.sendOTP,
		Hooks:             e.flowHooks(),
		Metrics:           flowMetrics(),
		Events:            flowEvents(),
		Errors:            flowErrors(),
	}
}
