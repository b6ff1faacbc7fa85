package storeauth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/account/pgstore"
	"github.com/MrEthical07/storeauth/account/redisstore"
	internalaudit "github.com/MrEthical07/storeauth/internal/audit"
	"github.com/MrEthical07/storeauth/internal/flows"
	"github.com/MrEthical07/storeauth/jwt"
	"github.com/MrEthical07/storeauth/mail"
	"github.com/MrEthical07/storeauth/password"
)

// dummyPassword is hashed once per engine so that login against an unknown
// email costs the same as a wrong password.
const dummyPassword = "storeauth-dummy-password"

// Builder assembles an Engine. Configure it during startup, call Build once
// and discard it.
type Builder struct {
	config Config

	store account.Store
	redis redis.UniversalClient
	pg    *pgxpool.Pool

	mailer    mail.Sender
	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore uses store for accounts and sessions.
func (b *Builder) WithStore(store account.Store) *Builder {
	b.store = store
	return b
}

// WithRedis stores accounts in Redis under Config.Account.RedisPrefix.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPostgres stores accounts in PostgreSQL. The schema must already be
// migrated with pgstore.Migrate.
func (b *Builder) WithPostgres(pool *pgxpool.Pool) *Builder {
	b.pg = pool
	return b
}

// WithMailer sets the sender used for OTP emails. Without one, emails are
// logged at warn level and discarded.
func (b *Builder) WithMailer(sender mail.Sender) *Builder {
	b.mailer = sender
	return b
}

// WithAuditSink sets the audit destination. It only takes effect when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for OTP expiry and token timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine. A Builder
// can build once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	store, err := b.resolveStore(cfg, now)
	if err != nil {
		return nil, err
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	dummyHash, err := ph.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}

	access, err := jwt.NewManager(tokenConfig(cfg.JWT, jwt.KindAccess, now))
	if err != nil {
		return nil, err
	}
	refresh, err := jwt.NewManager(tokenConfig(cfg.JWT, jwt.KindRefresh, now))
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		now:          now,
		logger:       logger.With("component", "storeauth"),
		store:        store,
		passwordHash: ph,
		dummyHash:    dummyHash,
		access:       access,
		refresh:      refresh,
		metrics:      NewMetrics(cfg.Metrics),
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	if b.mailer != nil {
		engine.mail = mail.NewDispatcher(mail.DispatcherConfig{
			QueueSize:   cfg.Mail.QueueSize,
			SendTimeout: cfg.Mail.SendTimeout,
		}, b.mailer,
			mail.WithLogger(logger),
			mail.WithOutcomeHook(engine.mailOutcome),
		)
	}
	engine.flows = flows.New(engine.flowDeps())

	b.built = true
	return engine, nil
}

func (b *Builder) resolveStore(cfg Config, now func() time.Time) (account.Store, error) {
	n := 0
	for _, set := range []bool{b.store != nil, b.redis != nil, b.pg != nil} {
		if set {
			n++
		}
	}
	switch {
	case n == 0:
		return nil, errors.New("an account store is required: use WithStore, WithRedis or WithPostgres")
	case n > 1:
		return nil, errors.New("exactly one of WithStore, WithRedis or WithPostgres may be used")
	case b.redis != nil:
		return redisstore.New(b.redis, cfg.Account.RedisPrefix, redisstore.WithClock(now)), nil
	case b.pg != nil:
		return pgstore.New(b.pg), nil
	default:
		return b.store, nil
	}
}

func tokenConfig(cfg JWTConfig, kind jwt.Kind, now func() time.Time) jwt.Config {
	out := jwt.Config{
		Kind:          kind,
		SigningMethod: jwt.SigningMethod(cfg.SigningMethod),
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		Leeway:        cfg.Leeway,
		RequireIAT:    cfg.RequireIAT,
		MaxFutureIAT:  cfg.MaxFutureIAT,
		Now:           now,
	}
	if kind == jwt.KindAccess {
		out.KeyID = cfg.AccessKeyID
		out.VerifyKeys = cloneKeyRing(cfg.AccessVerifyKeys)
	} else {
		out.KeyID = cfg.RefreshKeyID
		out.VerifyKeys = cloneKeyRing(cfg.RefreshVerifyKeys)
	}
	switch {
	case kind == jwt.KindAccess && out.SigningMethod == jwt.MethodHS256:
		out.TTL = cfg.AccessTTL
		out.PrivateKey = cloneBytes(cfg.AccessSecret)
	case kind == jwt.KindAccess:
		out.TTL = cfg.AccessTTL
		out.PrivateKey = cloneBytes(cfg.AccessPrivateKey)
		out.PublicKey = cloneBytes(cfg.AccessPublicKey)
	case out.SigningMethod == jwt.MethodHS256:
		out.TTL = cfg.RefreshTTL
		out.PrivateKey = cloneBytes(cfg.RefreshSecret)
	default:
		out.TTL = cfg.RefreshTTL
		out.PrivateKey = cloneBytes(cfg.RefreshPrivateKey)
		out.PublicKey = cloneBytes(cfg.RefreshPublicKey)
	}
	return out
}
