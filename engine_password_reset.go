package storeauth

import (
	"context"

	"github.com/MrEthical07/storeauth/internal/flows"
)

// ForgotPassword emails a reset OTP when the account exists and has no live
// reset code. The result is the same whether or not the email is registered.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.ForgotPassword(ctx, email)
}

// ResetPassword replaces the password when otp matches the live reset code.
// Every session of the account is revoked in the same update. All failure
// causes return ErrResetInvalid.
func (e *Engine) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.ResetPassword(ctx, email, otp, newPassword)
}

func (e *Engine) recoveryFlowDeps() flows.RecoveryDeps {
	cfg := e.config
	return flows.RecoveryDeps{
		OTPDigits:         cfg.OTP.Digits,
		OTPTTL:            cfg.OTP.TTL,
		MinPasswordLength: cfg.Password.MinLength,
		Now:               e.now,
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
