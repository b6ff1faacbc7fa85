//go:build integration

package test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/MrEthical07/storeauth"
	"github.com/MrEthical07/storeauth/account/pgstore"
	"github.com/MrEthical07/storeauth/mail"
)

type backend struct {
	name  string
	build func(t *testing.T, b *storeauth.Builder) *storeauth.Builder
}

func backends() []backend {
	return []backend{
		{name: "redis", build: withMiniredis},
		{name: "postgres", build: withPostgres},
	}
}

func withMiniredis(t *testing.T, b *storeauth.Builder) *storeauth.Builder {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return b.WithRedis(rdb)
}

func withPostgres(t *testing.T, b *storeauth.Builder) *storeauth.Builder {
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

	return b.WithPostgres(pool)
}

func testConfig() storeauth.Config {
	cfg := storeauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte(strings.Repeat("a", 32))
	cfg.JWT.RefreshSecret = []byte(strings.Repeat("r", 32))
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newEngine(t *testing.T, be backend, box *inbox) *storeauth.Engine {
	t.Helper()
	b := be.build(t, storeauth.New().WithConfig(testConfig()).WithMailer(box))
	engine, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

type inbox struct {
	mu   sync.Mutex
	msgs []mail.Message
}

func (i *inbox) Send(_ context.Context, msg mail.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, msg)
	return nil
}

func (i *inbox) code(t *testing.T, to, subject string) string {
	t.Helper()
	var code string
	require.Eventually(t, func() bool {
		i.mu.Lock()
		defer i.mu.Unlock()
		for n := len(i.msgs) - 1; n >= 0; n-- {
			m := i.msgs[n]
			if m.To != to || m.Subject != subject {
				continue
			}
			start := strings.Index(m.HTML, "<h1>")
			end := strings.Index(m.HTML, "</h1>")
			if start < 0 || end < start {
				return false
			}
			code = m.HTML[start+len("<h1>") : end]
			return true
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return code
}
