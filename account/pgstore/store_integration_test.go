//go:build integration

package pgstore_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/account/pgstore"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("storeauth_test"),
		postgres.WithUsername("storeauth"),
		postgres.WithPassword("storeauth"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pgstore.Migrate(ctx, pool))
	return pool
}

func TestPostgresStoreLifecycle(t *testing.T) {
	pool := setupPostgres(t)
	s := pgstore.New(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	rec := account.Record{
		Account: account.Account{ID: "a1", Email: "alice@x.com", Name: "Alice", Role: account.RoleUser, Status: account.StatusActive, CreatedAt: now, UpdatedAt: now},
		Secrets: account.Secrets{PasswordHash: "hash", OTP: &account.Challenge{Hash: "otp", ExpiresAt: now.Add(10 * time.Minute)}},
	}
	require.NoError(t, s.Create(ctx, rec))

	dup := rec
	dup.ID = "a2"
	dup.Email = "ALICE@x.com"
	require.ErrorIs(t, s.Create(ctx, dup), account.ErrDuplicateEmail)

	verified := true
	acc, err := s.Update(ctx, "a1", 0, account.Patch{Verified: &verified, ClearOTP: true})
	require.NoError(t, err)
	assert.True(t, acc.Verified)

	_, err = s.Update(ctx, "a1", 0, account.Patch{Verified: &verified})
	require.ErrorIs(t, err, account.ErrVersionConflict)

	_, sec, err := s.Secrets(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Nil(t, sec.OTP)

	exp := now.Add(time.Hour)
	require.ErrorIs(t, s.AddRefreshToken(ctx, "a1", 0, "stale", exp), account.ErrVersionConflict)
	require.NoError(t, s.AddRefreshToken(ctx, "a1", acc.Version, "fresh", exp))

	hash := "new-hash"
	_, err = s.Update(ctx, "a1", acc.Version, account.Patch{PasswordHash: &hash, RevokeSessions: true})
	require.NoError(t, err)
	require.ErrorIs(t, s.AddRefreshToken(ctx, "a1", acc.Version, "late", exp), account.ErrVersionConflict)

	n, err := s.RefreshTokenCount(ctx, "a1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPostgresConcurrentRotateSingleWinner(t *testing.T) {
	pool := setupPostgres(t)
	s := pgstore.New(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Create(ctx, account.Record{
		Account: account.Account{ID: "a1", Email: "alice@x.com", Name: "Alice", Role: account.RoleUser, Status: account.StatusActive, CreatedAt: now, UpdatedAt: now},
		Secrets: account.Secrets{PasswordHash: "hash"},
	}))
	exp := now.Add(time.Hour)
	require.NoError(t, s.AddRefreshToken(ctx, "a1", 0, "old", exp))

	const workers = 16
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ok, err := s.RotateRefreshToken(ctx, "a1", "old", fmt.Sprintf("new-%d", i), exp)
			if err == nil && ok {
				winners.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	n, err := s.RefreshTokenCount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
