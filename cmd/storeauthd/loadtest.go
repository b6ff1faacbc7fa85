package main

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/storeauth"
	"github.com/MrEthical07/storeauth/mail"
)

type loadtestConfig struct {
	accounts    int
	sessions    int
	concurrency int
	ops         int
	redisAddr   string
}

type sessionState struct {
	mu      sync.Mutex
	access  string
	refresh string
}

// NewLoadtestCmd creates the loadtest subcommand.
func NewLoadtestCmd() *cobra.Command {
	cfg := &loadtestConfig{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure authorize and refresh throughput",
		Long: `Seed verified accounts and sessions against Redis (or an in-process
miniredis), then run concurrent authorize and refresh phases and report
latency percentiles.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.accounts <= 0 || cfg.sessions <= 0 || cfg.concurrency <= 0 || cfg.ops <= 0 {
				return fmt.Errorf("accounts, sessions, concurrency and ops must be > 0")
			}
			return runLoadtest(cmd, cfg)
		},
	}
	cmd.Flags().IntVar(&cfg.accounts, "accounts", 50, "number of accounts to register")
	cmd.Flags().IntVar(&cfg.sessions, "sessions", 1000, "number of sessions to open")
	cmd.Flags().IntVar(&cfg.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&cfg.ops, "ops", 20000, "operations per phase")
	cmd.Flags().StringVar(&cfg.redisAddr, "redis-addr", "", "redis address; empty uses miniredis")
	return cmd
}

func runLoadtest(cmd *cobra.Command, cfg *loadtestConfig) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	addr := cfg.redisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		cmd.Printf("using miniredis at %s\n", addr)
	} else {
		cmd.Printf("using redis at %s\n", addr)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer func() { _ = client.Close() }()

	codes := &codeBook{codes: map[string]string{}}
	engineCfg := storeauth.DefaultConfig()
	engineCfg.JWT.AccessSecret = []byte(strings.Repeat("a", 32))
	engineCfg.JWT.RefreshSecret = []byte(strings.Repeat("r", 32))
	engineCfg.Account.RedisPrefix = fmt.Sprintf("loadtest-%d", time.Now().UnixNano())
	engineCfg.Password.Memory = 8 * 1024
	engineCfg.Password.Time = 1
	engineCfg.Password.Parallelism = 1
	engineCfg.Mail.QueueSize = cfg.accounts

	engine, err := storeauth.New().
		WithConfig(engineCfg).
		WithRedis(client).
		WithMailer(codes).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	cmd.Printf("registering %d accounts...\n", cfg.accounts)
	startSeed := time.Now()
	emails := make([]string, cfg.accounts)
	for i := range emails {
		emails[i] = fmt.Sprintf("load-%d@example.com", i)
		if _, err := engine.Register(ctx, storeauth.RegisterRequest{Name: "Load", Email: emails[i], Password: "loadtest"}); err != nil {
			return fmt.Errorf("register %s: %w", emails[i], err)
		}
	}
	for _, email := range emails {
		code, err := codes.wait(email, 5*time.Second)
		if err != nil {
			return err
		}
		if err := engine.VerifyEmail(ctx, email, code); err != nil {
			return fmt.Errorf("verify %s: %w", email, err)
		}
	}

	states := make([]sessionState, cfg.sessions)
	for i := range states {
		pair, err := engine.Login(ctx, emails[i%len(emails)], "loadtest")
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		states[i].access = pair.AccessToken
		states[i].refresh = pair.RefreshToken
	}
	cmd.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authorizeStats := runPhase(cfg.ops, cfg.concurrency, func(r *rand.Rand, _ int) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		token := s.access
		s.mu.Unlock()
		_, err := engine.Authorize(ctx, token)
		return err
	})
	refreshStats := runPhase(cfg.ops, cfg.concurrency, func(r *rand.Rand, _ int) error {
		s := &states[r.Intn(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		pair, err := engine.Refresh(ctx, s.refresh)
		if err != nil {
			return err
		}
		s.access = pair.AccessToken
		s.refresh = pair.RefreshToken
		return nil
	})

	cmd.Println("---- results ----")
	printStats(cmd, "authorize", authorizeStats)
	printStats(cmd, "refresh", refreshStats)
	return nil
}

// codeBook is a mail.Sender that keeps the latest OTP per recipient.
type codeBook struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *codeBook) Send(_ context.Context, msg mail.Message) error {
	start := strings.Index(msg.HTML, "<h1>")
	end := strings.Index(msg.HTML, "</h1>")
	if start < 0 || end < start {
		return fmt.Errorf("no code in message to %s", msg.To)
	}
	c.mu.Lock()
	c.codes[msg.To] = msg.HTML[start+len("<h1>") : end]
	c.mu.Unlock()
	return nil
}

func (c *codeBook) wait(email string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		code, ok := c.codes[email]
		c.mu.Unlock()
		if ok {
			return code, nil
		}
		time.Sleep(2 * time.Millisecond)
	}
	return "", fmt.Errorf("no otp delivered to %s", email)
}

func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(cmd *cobra.Command, name string, s phaseStats) {
	cmd.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
