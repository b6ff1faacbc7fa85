package redisstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/storeauth/account"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, "test"), mr
}

func testRecord(id, email string) account.Record {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return account.Record{
		Account: account.Account{
			ID:        id,
			Email:     email,
			Name:      "Alice",
			Role:      account.RoleUser,
			Status:    account.StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Secrets: account.Secrets{
			PasswordHash: "hash",
			OTP:          &account.Challenge{Hash: "otp-hash", ExpiresAt: now.Add(10 * time.Minute)},
		},
	}
}

func TestCreateAndLoad(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, testRecord("a1", "Alice@X.com")))

	acc, err := s.FindByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, "a1", acc.ID)
	assert.Equal(t, "alice@x.com", acc.Email)
	assert.Equal(t, account.StatusActive, acc.Status)
	assert.False(t, acc.Verified)

	byID, err := s.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, acc, byID)

	_, sec, err := s.Secrets(ctx, " ALICE@x.com ")
	require.NoError(t, err)
	assert.Equal(t, "hash", sec.PasswordHash)
	require.NotNil(t, sec.OTP)
	assert.Equal(t, "otp-hash", sec.OTP.Hash)
	assert.Nil(t, sec.Reset)
}

func TestCreateDuplicateEmail(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, testRecord("a1", "alice@x.com")))
	err := s.Create(ctx, testRecord("a2", "ALICE@x.com"))
	require.ErrorIs(t, err, account.ErrDuplicateEmail)

	_, err = s.FindByID(ctx, "a2")
	require.ErrorIs(t, err, account.ErrNotFound)
}

func TestFindMissing(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.FindByEmail(context.Background(), "nobody@x.com")
	require.ErrorIs(t, err, account.ErrNotFound)
	_, err = s.FindByID(context.Background(), "nope")
	require.ErrorIs(t, err, account.ErrNotFound)
}

func TestUpdateVersionCheck(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, testRecord("a1", "alice@x.com")))

	verified := true
	acc, err := s.Update(ctx, "a1", 0, account.Patch{Verified: &verified, ClearOTP: true})
	require.NoError(t, err)
	assert.True(t, acc.Verified)
	assert.Equal(t, uint64(1), acc.Version)

	_, sec, err := s.Secrets(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Nil(t, sec.OTP)

	_, err = s.Update(ctx, "a1", 0, account.Patch{Verified: &verified})
	require.ErrorIs(t, err, account.ErrVersionConflict)

	_, err = s.Update(ctx, "missing", 0, account.Patch{Verified: &verified})
	require.ErrorIs(t, err, account.ErrNotFound)
}

func TestUpdateRevokesSessions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, testRecord("a1", "alice@x.com")))

	exp := time.Now().Add(time.Hour)
	require.NoError(t, s.AddRefreshToken(ctx, "a1", 0, "d1", exp))
	require.NoError(t, s.AddRefreshToken(ctx, "a1", 0, "d2", exp))

	hash := "new-hash"
	reset := account.Challenge{Hash: "r", ExpiresAt: exp}
	_, err := s.Update(ctx, "a1", 0, account.Patch{Reset: &reset})
	require.NoError(t, err)

	_, err = s.Update(ctx, "a1", 1, account.Patch{PasswordHash: &hash, ClearReset: true, RevokeSessions: true})
	require.NoError(t, err)

	n, err := s.RefreshTokenCount(ctx, "a1")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, sec, err := s.Secrets(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", sec.PasswordHash)
	assert.Nil(t, sec.Reset)
}

func TestAddRefreshTokenRequiresCurrentVersion(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	require.NoError(t, s.Create(ctx, testRecord("a1", "alice@x.com")))

	hash := "new-hash"
	_, err := s.Update(ctx, "a1", 0, account.Patch{PasswordHash: &hash, RevokeSessions: true})
	require.NoError(t, err)

	require.ErrorIs(t, s.AddRefreshToken(ctx, "a1", 0, "stale", exp), account.ErrVersionConflict)
	require.ErrorIs(t, s.AddRefreshToken(ctx, "missing", 0, "d1", exp), account.ErrNotFound)
	require.NoError(t, s.AddRefreshToken(ctx, "a1", 1, "fresh", exp))

	n, err := s.RefreshTokenCount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRotateRefreshToken(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	require.NoError(t, s.Create(ctx, testRecord("a1", "alice@x.com")))

	require.NoError(t, s.AddRefreshToken(ctx, "a1", 0, "old", exp))

	ok, err := s.RotateRefreshToken(ctx, "a1", "old", "new", exp)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.RotateRefreshToken(ctx, "a1", "old", "other", exp)
	require.NoError(t, err)
	assert.False(t, ok, "consumed digest must not rotate again")

	n, err := s.RefreshTokenCount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRotateSingleWinnerUnderConcurrency(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	require.NoError(t, s.Create(ctx, testRecord("a1", "alice@x.com")))
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

func TestRemoveAndRevoke(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	require.NoError(t, s.Create(ctx, testRecord("a1", "alice@x.com")))

	require.NoError(t, s.AddRefreshToken(ctx, "a1", 0, "d1", exp))
	require.NoError(t, s.AddRefreshToken(ctx, "a1", 0, "d2", exp))
	require.NoError(t, s.AddRefreshToken(ctx, "a1", 0, "d3", exp))

	removed, err := s.RemoveRefreshToken(ctx, "a1", "d1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveRefreshToken(ctx, "a1", "d1")
	require.NoError(t, err)
	assert.False(t, removed)

	n, err := s.RevokeRefreshTokens(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.RefreshTokenCount(ctx, "a1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExpiredDigestsArePruned(t *testing.T) {
	now := time.Now()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	clock := now
	s := New(client, "test", WithClock(func() time.Time { return clock }))
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, testRecord("a1", "alice@x.com")))

	require.NoError(t, s.AddRefreshToken(ctx, "a1", 0, "short", now.Add(time.Minute)))
	require.NoError(t, s.AddRefreshToken(ctx, "a1", 0, "long", now.Add(time.Hour)))

	clock = now.Add(2 * time.Minute)
	n, err := s.RefreshTokenCount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.AddRefreshToken(ctx, "a1", 0, "fresh", clock.Add(time.Hour)))
	members, err := client.ZRange(ctx, "test:rt:a1", 0, -1).Result()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"long", "fresh"}, members)
}

func TestBackendFailureWrapsUnavailable(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	_, err := s.FindByID(context.Background(), "a1")
	require.ErrorIs(t, err, account.ErrUnavailable)
}
