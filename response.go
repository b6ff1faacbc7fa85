package storeauth

import (
	"errors"
	"net/http"
)

// Public success messages.
const (
	MsgRegistered     = "User registered successfully, please verify your email"
	MsgEmailVerified  = "Email verified successfully"
	MsgOTPSent        = "OTP sent successfully"
	MsgLoggedIn       = "User logged in successfully"
	MsgTokenRefreshed = "Token refreshed successfully"
	MsgLoggedOut      = "User logged out successfully"
	MsgResetRequested = "If the email exists, an OTP has been sent"
	MsgPasswordReset  = "Password reset successfully"
	MsgServerError    = "Server error"
)

// Response is the body of every JSON reply.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// OK builds a success response.
func OK(message string, data any) Response {
	return Response{Success: true, Message: message, Data: data}
}

// ErrorResponse maps err to an HTTP status and a public message. Errors not
// produced by the engine become a 500 with no detail.
func ErrorResponse(err error) (int, Response) {
	status, msg := errorStatus(err, "Refresh token is required", "Invalid refresh token")
	return status, Response{Success: false, Message: msg}
}

// AccessErrorResponse is ErrorResponse for access-token checks, which word
// the missing and invalid token cases differently.
func AccessErrorResponse(err error) (int, Response) {
	status, msg := errorStatus(err, "User token not found", "Invalid or expired token")
	return status, Response{Success: false, Message: msg}
}

func errorStatus(err error, missingToken, invalidToken string) (int, string) {
	var ve *ValidationError
	var be *AccountBlockedError

	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Message
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, "All fields are required"
	case errors.Is(err, ErrEmailExists):
		return http.StatusBadRequest, "Email already exists"
	case errors.Is(err, ErrInvalidEmail):
		return http.StatusBadRequest, "Invalid email"
	case errors.Is(err, ErrInvalidOTP):
		return http.StatusBadRequest, "Invalid OTP"
	case errors.Is(err, ErrOTPExpired):
		return http.StatusBadRequest, "OTP has expired"
	case errors.Is(err, ErrOTPNotExpired):
		return http.StatusBadRequest, "OTP has not expired yet"
	case errors.Is(err, ErrAlreadyVerified):
		return http.StatusBadRequest, "Email is already verified"
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusBadRequest, "Invalid email or password"
	case errors.Is(err, ErrNotVerified):
		return http.StatusBadRequest, "Please verify your email"
	case errors.As(err, &be):
		return http.StatusUnauthorized, "Your account has been " + string(be.Status) + ". Please contact support for more information."
	case errors.Is(err, ErrAccountNotFound):
		return http.StatusNotFound, "Account not found"
	case errors.Is(err, ErrMissingToken):
		return http.StatusUnauthorized, missingToken
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized, invalidToken
	case errors.Is(err, ErrTokenReuse):
		return http.StatusForbidden, "Token reuse detected"
	case errors.Is(err, ErrResetInvalid):
		return http.StatusBadRequest, "Invalid or expired OTP"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "Unauthorized access"
	case errors.Is(err, ErrConcurrentUpdate):
		return http.StatusConflict, "Request conflicted with another update, please retry"
	default:
		return http.StatusInternalServerError, MsgServerError
	}
}
