package storeauth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/storeauth/mail"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte(strings.Repeat("a", 32))
	cfg.JWT.RefreshSecret = []byte(strings.Repeat("r", 32))
	// Cheap argon2 parameters keep the suite fast.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

// inbox captures OTP emails and pulls the code back out of the HTML.
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

// lastCode waits for the newest message to email and returns its OTP.
func (i *inbox) lastCode(t *testing.T, email, subject string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		i.mu.Lock()
		for n := len(i.msgs) - 1; n >= 0; n-- {
			m := i.msgs[n]
			if m.To == email && m.Subject == subject {
				i.mu.Unlock()
				return extractCode(t, m.HTML)
			}
		}
		i.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %q email for %s", subject, email)
	return ""
}

func (i *inbox) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.msgs)
}

func extractCode(t *testing.T, html string) string {
	t.Helper()
	start := strings.Index(html, "<h1>")
	end := strings.Index(html, "</h1>")
	if start < 0 || end < start {
		t.Fatalf("no code in email body %q", html)
	}
	return html[start+len("<h1>") : end]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEngine struct {
	*Engine
	redis *redis.Client
	inbox *inbox
	clock *testClock
}

func newTestEngine(t *testing.T, cfg Config, sink AuditSink) *testEngine {
	t.Helper()

	_, rdb := newTestRedis(t)
	box := &inbox{}
	clock := newTestClock()

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithMailer(box).
		WithClock(clock.Now)
	if sink != nil {
		b = b.WithAuditSink(sink)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{Engine: engine, redis: rdb, inbox: box, clock: clock}
}

// registerVerified registers and verifies an account and returns its email.
func (te *testEngine) registerVerified(t *testing.T, email, password string) {
	t.Helper()
	ctx := context.Background()

	if _, err := te.Register(ctx, RegisterRequest{Name: "Alice", Email: email, Password: password}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	code := te.inbox.lastCode(t, strings.ToLower(email), "OTP for Email Verification")
	if err := te.VerifyEmail(ctx, email, code); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
}
