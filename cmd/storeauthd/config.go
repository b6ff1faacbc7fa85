package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/MrEthical07/storeauth"
)

// serveConfig is the non-secret daemon configuration. It is read from the
// YAML file and overlaid with command-line flags.
type serveConfig struct {
	Env  string `koanf:"env"`
	HTTP struct {
		Addr            string        `koanf:"addr"`
		MetricsAddr     string        `koanf:"metrics_addr"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	} `koanf:"http"`
	Log struct {
		Format string `koanf:"format"`
		Level  string `koanf:"level"`
	} `koanf:"log"`
	Store struct {
		Backend     string `koanf:"backend"`
		RedisAddr   string `koanf:"redis_addr"`
		RedisDB     int    `koanf:"redis_db"`
		RedisPrefix string `koanf:"redis_prefix"`
		AutoMigrate bool   `koanf:"auto_migrate"`
	} `koanf:"store"`
	Mail struct {
		Mailer      string `koanf:"mailer"`
		AppName     string `koanf:"app_name"`
		SMTPHost    string `koanf:"smtp_host"`
		SMTPPort    int    `koanf:"smtp_port"`
		SMTPUser    string `koanf:"smtp_user"`
		From        string `koanf:"from"`
		ImplicitTLS bool   `koanf:"implicit_tls"`
	} `koanf:"mail"`
	Auth struct {
		AccessTTL         time.Duration `koanf:"access_ttl"`
		RefreshTTL        time.Duration `koanf:"refresh_ttl"`
		OTPTTL            time.Duration `koanf:"otp_ttl"`
		MinPasswordLength int           `koanf:"min_password_length"`
		Issuer            string        `koanf:"issuer"`
		Audience          string        `koanf:"audience"`
		CookieDomain      string        `koanf:"cookie_domain"`
	} `koanf:"auth"`
	Audit struct {
		Enabled bool `koanf:"enabled"`
	} `koanf:"audit"`
}

// secrets come from the environment only.
type secrets struct {
	AccessSecret  string `env:"STOREAUTH_ACCESS_SECRET,required"`
	RefreshSecret string `env:"STOREAUTH_REFRESH_SECRET,required"`
	SMTPPassword  string `env:"STOREAUTH_SMTP_PASSWORD"`
	RedisPassword string `env:"STOREAUTH_REDIS_PASSWORD"`
	DatabaseURL   string `env:"STOREAUTH_DATABASE_URL"`

	// Key rotation: the current secret is published under the key id, and
	// retired secrets keep verifying as "kid:secret,kid:secret".
	AccessKeyID            string            `env:"STOREAUTH_ACCESS_KEY_ID"`
	RefreshKeyID           string            `env:"STOREAUTH_REFRESH_KEY_ID"`
	PreviousAccessSecrets  map[string]string `env:"STOREAUTH_ACCESS_PREVIOUS_SECRETS"`
	PreviousRefreshSecrets map[string]string `env:"STOREAUTH_REFRESH_PREVIOUS_SECRETS"`
}

func defaultServeConfig() serveConfig {
	var c serveConfig
	c.Env = "development"
	c.HTTP.Addr = ":8080"
	c.HTTP.MetricsAddr = "127.0.0.1:9100"
	c.HTTP.ShutdownTimeout = 10 * time.Second
	c.Log.Format = "json"
	c.Log.Level = "info"
	c.Store.Backend = "redis"
	c.Store.RedisAddr = "localhost:6379"
	c.Store.RedisPrefix = "storeauth"
	c.Mail.Mailer = "log"
	c.Mail.AppName = "Storefront"
	c.Mail.SMTPPort = 587
	c.Auth.AccessTTL = 15 * time.Minute
	c.Auth.RefreshTTL = 7 * 24 * time.Hour
	c.Auth.OTPTTL = 10 * time.Minute
	return c
}

// registerServeFlags adds one flag per config key. Flag names are the koanf
// key paths so posflag can overlay them.
func registerServeFlags(fs *pflag.FlagSet) {
	d := defaultServeConfig()
	fs.String("env", d.Env, "deployment environment (development or production)")
	fs.String("http.addr", d.HTTP.Addr, "API listen address")
	fs.String("http.metrics_addr", d.HTTP.MetricsAddr, "metrics listen address (empty = disabled)")
	fs.Duration("http.shutdown_timeout", d.HTTP.ShutdownTimeout, "graceful shutdown timeout")
	fs.String("log.format", d.Log.Format, "log format (json or text)")
	fs.String("log.level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("store.backend", d.Store.Backend, "account store (redis or postgres)")
	fs.String("store.redis_addr", d.Store.RedisAddr, "redis address")
	fs.Int("store.redis_db", d.Store.RedisDB, "redis database number")
	fs.String("store.redis_prefix", d.Store.RedisPrefix, "redis key prefix")
	fs.Bool("store.auto_migrate", d.Store.AutoMigrate, "apply postgres migrations on start")
	fs.String("mail.mailer", d.Mail.Mailer, "OTP mailer (smtp or log)")
	fs.String("mail.app_name", d.Mail.AppName, "app name shown in OTP emails")
	fs.String("mail.smtp_host", d.Mail.SMTPHost, "SMTP relay host")
	fs.Int("mail.smtp_port", d.Mail.SMTPPort, "SMTP relay port")
	fs.String("mail.smtp_user", d.Mail.SMTPUser, "SMTP username")
	fs.String("mail.from", d.Mail.From, "sender address (defaults to the SMTP username)")
	fs.Bool("mail.implicit_tls", d.Mail.ImplicitTLS, "dial SMTP over TLS instead of STARTTLS")
	fs.Duration("auth.access_ttl", d.Auth.AccessTTL, "access token lifetime")
	fs.Duration("auth.refresh_ttl", d.Auth.RefreshTTL, "refresh token lifetime")
	fs.Duration("auth.otp_ttl", d.Auth.OTPTTL, "OTP lifetime")
	fs.Int("auth.min_password_length", d.Auth.MinPasswordLength, "minimum password length (0 = none)")
	fs.String("auth.issuer", d.Auth.Issuer, "JWT issuer")
	fs.String("auth.audience", d.Auth.Audience, "JWT audience")
	fs.String("auth.cookie_domain", d.Auth.CookieDomain, "refresh cookie domain")
	fs.Bool("audit.enabled", d.Audit.Enabled, "log audit events")
}

// loadServeConfig reads path (if set) and overlays the flags in fs.
func loadServeConfig(path string, fs *pflag.FlagSet) (serveConfig, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return serveConfig{}, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
		}
	}
	if fs != nil {
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return serveConfig{}, oops.Code("CONFIG_INVALID").With("operation", "load flags").Wrap(err)
		}
	}

	cfg := defaultServeConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return serveConfig{}, oops.Code("CONFIG_INVALID").With("operation", "decode config").Wrap(err)
	}

	switch cfg.Store.Backend {
	case "redis", "postgres":
	default:
		return serveConfig{}, oops.Code("CONFIG_INVALID").Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	switch cfg.Mail.Mailer {
	case "smtp", "log":
	default:
		return serveConfig{}, oops.Code("CONFIG_INVALID").Errorf("unknown mailer %q", cfg.Mail.Mailer)
	}
	return cfg, nil
}

func loadSecrets() (secrets, error) {
	var s secrets
	if err := env.Parse(&s); err != nil {
		return secrets{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}

func (c serveConfig) production() bool {
	return strings.EqualFold(c.Env, "production")
}

// engineConfig maps the daemon settings onto the library defaults.
func (c serveConfig) engineConfig(s secrets) storeauth.Config {
	cfg := storeauth.DefaultConfig()
	cfg.JWT.AccessSecret = []byte(s.AccessSecret)
	cfg.JWT.RefreshSecret = []byte(s.RefreshSecret)
	cfg.JWT.AccessKeyID = s.AccessKeyID
	cfg.JWT.RefreshKeyID = s.RefreshKeyID
	cfg.JWT.AccessVerifyKeys = keyRing(s.AccessKeyID, s.AccessSecret, s.PreviousAccessSecrets)
	cfg.JWT.RefreshVerifyKeys = keyRing(s.RefreshKeyID, s.RefreshSecret, s.PreviousRefreshSecrets)
	cfg.JWT.AccessTTL = c.Auth.AccessTTL
	cfg.JWT.RefreshTTL = c.Auth.RefreshTTL
	cfg.JWT.Issuer = c.Auth.Issuer
	cfg.JWT.Audience = c.Auth.Audience
	cfg.OTP.TTL = c.Auth.OTPTTL
	cfg.Password.MinLength = c.Auth.MinPasswordLength
	cfg.Account.RedisPrefix = c.Store.RedisPrefix
	cfg.Mail.AppName = c.Mail.AppName
	cfg.Audit.Enabled = c.Audit.Enabled
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Cookie.Secure = c.production()
	cfg.Cookie.Domain = c.Auth.CookieDomain
	return cfg
}

func keyRing(kid, current string, previous map[string]string) map[string][]byte {
	if kid == "" {
		return nil
	}
	ring := map[string][]byte{kid: []byte(current)}
	for id, secret := range previous {
		if id != kid {
			ring[id] = []byte(secret)
		}
	}
	return ring
}

type databaseEnv struct {
	URL string `env:"STOREAUTH_DATABASE_URL,required"`
}

func loadDatabaseURL() (string, error) {
	d, err := env.ParseAs[databaseEnv]()
	if err != nil {
		return "", oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return d.URL, nil
}
