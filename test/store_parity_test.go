//go:build integration

package test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/storeauth"
	"github.com/MrEthical07/storeauth/account"
)

func registerVerified(t *testing.T, engine *storeauth.Engine, box *inbox, email, password string) {
	t.Helper()
	ctx := context.Background()
	_, err := engine.Register(ctx, storeauth.RegisterRequest{Name: "Alice", Email: email, Password: password})
	require.NoError(t, err)
	require.NoError(t, engine.VerifyEmail(ctx, email, box.code(t, email, "OTP for Email Verification")))
}

func TestBackendsAgreeOnLifecycle(t *testing.T) {
	for _, be := range backends() {
		t.Run(be.name, func(t *testing.T) {
			box := &inbox{}
			engine := newEngine(t, be, box)
			ctx := context.Background()

			registerVerified(t, engine, box, "alice@x.com", "correct horse")

			_, err := engine.Login(ctx, "ALICE@x.com", "wrong")
			require.ErrorIs(t, err, storeauth.ErrInvalidCredentials)

			phone, err := engine.Login(ctx, "alice@x.com", "correct horse")
			require.NoError(t, err)
			laptop, err := engine.Login(ctx, "alice@x.com", "correct horse")
			require.NoError(t, err)

			acc, err := engine.Authorize(ctx, phone.AccessToken)
			require.NoError(t, err)
			assert.Equal(t, "alice@x.com", acc.Email)

			rotated, err := engine.Refresh(ctx, phone.RefreshToken)
			require.NoError(t, err)

			_, err = engine.Refresh(ctx, phone.RefreshToken)
			require.ErrorIs(t, err, storeauth.ErrTokenReuse)
			_, err = engine.Refresh(ctx, rotated.RefreshToken)
			require.ErrorIs(t, err, storeauth.ErrTokenReuse)
			_, err = engine.Refresh(ctx, laptop.RefreshToken)
			require.ErrorIs(t, err, storeauth.ErrTokenReuse)

			require.NoError(t, engine.ForgotPassword(ctx, "alice@x.com"))
			otp := box.code(t, "alice@x.com", "Password Reset OTP")
			require.NoError(t, engine.ResetPassword(ctx, "alice@x.com", otp, "battery staple"))
			require.ErrorIs(t, engine.ResetPassword(ctx, "alice@x.com", otp, "another one"), storeauth.ErrResetInvalid)

			pair, err := engine.Login(ctx, "alice@x.com", "battery staple")
			require.NoError(t, err)
			require.NoError(t, engine.UpdateAccountStatus(ctx, pair.Account.ID, account.StatusSuspended))
			_, err = engine.Authorize(ctx, pair.AccessToken)
			require.ErrorIs(t, err, storeauth.ErrAccountBlocked)
		})
	}
}

func TestBackendsConcurrentRefreshSingleWinner(t *testing.T) {
	for _, be := range backends() {
		t.Run(be.name, func(t *testing.T) {
			box := &inbox{}
			engine := newEngine(t, be, box)
			ctx := context.Background()

			registerVerified(t, engine, box, "bob@x.com", "correct horse")
			pair, err := engine.Login(ctx, "bob@x.com", "correct horse")
			require.NoError(t, err)

			const workers = 16
			var (
				wg      sync.WaitGroup
				winners atomic.Int32
				start   = make(chan struct{})
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					if _, err := engine.Refresh(ctx, pair.RefreshToken); err == nil {
						winners.Add(1)
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int32(1), winners.Load())
		})
	}
}
