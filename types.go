package storeauth

import (
	"time"

	"github.com/MrEthical07/storeauth/account"
)

// RegisterRequest is the input of [Engine.Register].
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResult is returned by [Engine.Register]. The account is unverified
// and cannot log in until [Engine.VerifyEmail] succeeds.
type RegisterResult struct {
	Account account.Account
}

// TokenPair is returned by [Engine.Login] and [Engine.Refresh].
//
// The refresh token is single use: presenting it a second time revokes every
// session of the account.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	Account          account.Account
}
