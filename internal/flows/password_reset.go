package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/internal"
)

// RecoveryDeps captures forgot/reset password dependencies.
type RecoveryDeps struct {
	OTPDigits         int
	OTPTTL            time.Duration
	MinPasswordLength int

	Now func() time.Time

	Store        account.Store
	HashSecret   func(string) (string, error)
	VerifySecret func(secret, hash string) (bool, error)
	SendOTP      func(ctx context.Context, purpose Purpose, acc account.Account, code string)

	Hooks   Hooks
	Metrics Metrics
	Events  Events
	Errors  Errors
}

func normalizeRecoveryDeps(deps RecoveryDeps) (RecoveryDeps, error) {
	deps.Hooks = deps.Hooks.normalize()
	deps.Now = normalizeNow(deps.Now)
	if deps.Store == nil || deps.HashSecret == nil || deps.VerifySecret == nil || deps.Errors.Validation == nil {
		return deps, deps.Errors.EngineNotReady
	}
	if deps.SendOTP == nil {
		deps.SendOTP = func(context.Context, Purpose, account.Account, string) {}
	}
	if deps.OTPDigits == 0 {
		deps.OTPDigits = DefaultOTPDigits
	}
	if deps.OTPTTL <= 0 {
		deps.OTPTTL = DefaultOTPTTL
	}
	return deps, nil
}

// RunForgotPassword issues a reset OTP when the account exists and has no
// live reset challenge. The result is the same for unknown emails, live
// challenges and fresh issues.
func RunForgotPassword(ctx context.Context, email string, deps RecoveryDeps) error {
	deps, err := normalizeRecoveryDeps(deps)
	if err != nil {
		return err
	}

	email = account.NormalizeEmail(email)
	if email == "" {
		return deps.Errors.Validation("Invalid request")
	}

	acc, sec, err := deps.Store.Secrets(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil
		}
		return err
	}

	now := deps.Now()
	if sec.Reset.Live(now) {
		return nil
	}

	code, challenge, err := internal.IssueChallenge(otpHasher(deps.HashSecret), deps.OTPDigits, deps.OTPTTL, now)
	if err != nil {
		return err
	}
	updated, err := deps.Store.Update(ctx, acc.ID, acc.Version, account.Patch{Reset: challenge})
	if err != nil {
		if errors.Is(err, account.ErrVersionConflict) {
			// A concurrent request won and mailed its own code.
			return nil
		}
		return err
	}

	deps.SendOTP(ctx, PurposeResetPassword, updated, code)
	deps.Hooks.MetricInc(deps.Metrics.ResetRequested)
	deps.Hooks.EmitAudit(ctx, deps.Events.ResetRequested, true, acc.ID, nil, nil)
	return nil
}

// RunResetPassword consumes the reset OTP, stores the new password hash and
// revokes every session in one update. Every failure cause yields the same
// error.
func RunResetPassword(ctx context.Context, email, otp, newPassword string, deps RecoveryDeps) error {
	deps, err := normalizeRecoveryDeps(deps)
	if err != nil {
		return err
	}

	email = account.NormalizeEmail(email)
	otp = strings.TrimSpace(otp)
	if email == "" || otp == "" || newPassword == "" {
		return deps.Errors.Validation("Invalid request")
	}
	if deps.MinPasswordLength > 0 && len(newPassword) < deps.MinPasswordLength {
		return deps.Errors.Validation("Password is too short")
	}

	acc, sec, err := deps.Store.Secrets(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return resetFailed(ctx, deps, "", "unknown_email")
		}
		return err
	}

	now := deps.Now()
	if !sec.Reset.Live(now) {
		return resetFailed(ctx, deps, acc.ID, "no_live_challenge")
	}
	ok, err := deps.VerifySecret(otp, sec.Reset.Hash)
	if err != nil || !ok {
		return resetFailed(ctx, deps, acc.ID, "otp_mismatch")
	}

	hash, err := deps.HashSecret(newPassword)
	if err != nil {
		return err
	}

	if _, err := deps.Store.Update(ctx, acc.ID, acc.Version, account.Patch{
		PasswordHash:   &hash,
		ClearReset:     true,
		RevokeSessions: true,
	}); err != nil {
		return storeError(err, deps.Errors)
	}

	deps.Hooks.MetricInc(deps.Metrics.ResetSuccess)
	deps.Hooks.EmitAudit(ctx, deps.Events.ResetConfirmed, true, acc.ID, nil, nil)
	return nil
}

func resetFailed(ctx context.Context, deps RecoveryDeps, accountID, reason string) error {
	deps.Hooks.MetricInc(deps.Metrics.ResetFailure)
	deps.Hooks.EmitAudit(ctx, deps.Events.ResetConfirmed, false, accountID, deps.Errors.ResetInvalid, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return deps.Errors.ResetInvalid
}
