package storeauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/storeauth/account"
)

const (
	auditEventRegister     = "register"
	auditEventVerifyEmail  = "email_verify"
	auditEventResendOTP    = "email_verify_resend"
	auditEventLoginSuccess = "login_success"
	auditEventLoginFailure = "login_failure"
	auditEventRefresh      = "refresh"
	auditEventRefreshReuse = "refresh_reuse_detected"
	auditEventLogout       = "logout"
	auditEventLogoutAll    = "logout_all"
	auditEventResetRequest = "password_reset_request"
	auditEventResetConfirm = "password_reset_confirm"
	auditEventStatusChange = "account_status_change"
)

// AuditErrorCode is the stable error label stored on audit events.
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrInvalidEmail       AuditErrorCode = "invalid_email"
	auditErrInvalidOTP         AuditErrorCode = "invalid_otp"
	auditErrOTPExpired         AuditErrorCode = "otp_expired"
	auditErrAlreadyVerified    AuditErrorCode = "already_verified"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrNotVerified        AuditErrorCode = "account_unverified"
	auditErrAccountBlocked     AuditErrorCode = "account_blocked"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrResetInvalid       AuditErrorCode = "reset_invalid"
	auditErrConflict           AuditErrorCode = "conflict"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrEmailExists):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidEmail):
		return auditErrInvalidEmail
	case errors.Is(err, ErrInvalidOTP):
		return auditErrInvalidOTP
	case errors.Is(err, ErrOTPExpired):
		return auditErrOTPExpired
	case errors.Is(err, ErrAlreadyVerified):
		return auditErrAlreadyVerified
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrNotVerified):
		return auditErrNotVerified
	case errors.Is(err, ErrAccountBlocked):
		return auditErrAccountBlocked
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrMissingToken),
		errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrTokenReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrResetInvalid):
		return auditErrResetInvalid
	case errors.Is(err, ErrConcurrentUpdate):
		return auditErrConflict
	case errors.Is(err, account.ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
