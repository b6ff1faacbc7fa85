package storeauth

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/password"
)

// Config is the engine configuration. It is loaded once, validated by Build
// and never mutated afterwards.
type Config struct {
	JWT      JWTConfig
	Password PasswordConfig
	OTP      OTPConfig
	Account  AccountConfig
	Mail     MailConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Cookie   CookieConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the access and refresh token managers. The two kinds
// are always signed with different keys.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"

	// HS256 secrets, at least 32 bytes each.
	AccessSecret  []byte
	RefreshSecret []byte

	// Ed25519 key pairs, raw or PEM.
	AccessPrivateKey  []byte
	AccessPublicKey   []byte
	RefreshPrivateKey []byte
	RefreshPublicKey  []byte

	Issuer       string
	Audience     string
	Leeway       time.Duration
	RequireIAT   bool
	MaxFutureIAT time.Duration

	// Key rotation. A non-empty KeyID is written to the "kid" header of new
	// tokens. With a VerifyKeys ring, tokens are verified by the key their kid
	// names: HS256 secrets or Ed25519 public keys, and the ring must hold the
	// current key under KeyID. Keep a retired key in the ring until the
	// tokens it signed have expired.
	AccessKeyID       string
	RefreshKeyID      string
	AccessVerifyKeys  map[string][]byte
	RefreshVerifyKeys map[string][]byte
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id cost and the password length policy.
type PasswordConfig struct {
	Memory           uint32 // in KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	// MinLength of zero disables the minimum length check.
	MinLength      int
	UpgradeOnLogin bool
}

// OTPConfig controls verification and reset codes.
type OTPConfig struct {
	Digits int
	TTL    time.Duration
}

// AccountConfig controls new accounts and the built-in Redis store.
type AccountConfig struct {
	DefaultRole account.Role
	// RedisPrefix namespaces every key written by Builder.WithRedis.
	RedisPrefix string
}

// MailConfig controls OTP emails.
type MailConfig struct {
	AppName     string
	QueueSize   int
	SendTimeout time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// CookieConfig describes the refresh token cookie set by the HTTP layer.
type CookieConfig struct {
	RefreshName string
	AccessName  string
	Path        string
	Domain      string
	Secure      bool
	SameSite    http.SameSite
}

// DefaultConfig returns the defaults: 15 minute access tokens, 7 day refresh
// tokens, 6 digit codes valid for 10 minutes. JWT secrets must still be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			RequireIAT:    true,
			MaxFutureIAT:  10 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:           65536,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: password.DefaultMaxPasswordBytes,
			UpgradeOnLogin:   true,
		},
		OTP: OTPConfig{
			Digits: 6,
			TTL:    10 * time.Minute,
		},
		Account: AccountConfig{
			DefaultRole: account.RoleUser,
			RedisPrefix: "storeauth",
		},
		Mail: MailConfig{
			AppName:     "Storefront",
			QueueSize:   256,
			SendTimeout: 15 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Cookie: CookieConfig{
			RefreshName: "refreshToken",
			AccessName:  "token",
			Path:        "/",
			Secure:      false,
			SameSite:    http.SameSiteNoneMode,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	out.JWT.AccessPrivateKey = cloneBytes(cfg.JWT.AccessPrivateKey)
	out.JWT.AccessPublicKey = cloneBytes(cfg.JWT.AccessPublicKey)
	out.JWT.RefreshPrivateKey = cloneBytes(cfg.JWT.RefreshPrivateKey)
	out.JWT.RefreshPublicKey = cloneBytes(cfg.JWT.RefreshPublicKey)
	out.JWT.AccessVerifyKeys = cloneKeyRing(cfg.JWT.AccessVerifyKeys)
	out.JWT.RefreshVerifyKeys = cloneKeyRing(cfg.JWT.RefreshVerifyKeys)
	return out
}

func cloneKeyRing(ring map[string][]byte) map[string][]byte {
	if len(ring) == 0 {
		return nil
	}
	out := maps.Clone(ring)
	for kid, key := range out {
		out[kid] = cloneBytes(key)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

func validateKeyRing(kind, kid string, ring map[string][]byte, current []byte) error {
	if len(ring) == 0 {
		return nil
	}
	if strings.TrimSpace(kid) == "" {
		return fmt.Errorf("JWT %sKeyID is required with %sVerifyKeys", kind, kind)
	}
	for id := range ring {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("JWT %sVerifyKeys contains an empty kid", kind)
		}
	}
	key, ok := ring[strings.TrimSpace(kid)]
	if !ok {
		return fmt.Errorf("JWT %sVerifyKeys has no entry for %sKeyID %q", kind, kind, kid)
	}
	if !bytes.Equal(key, current) {
		return fmt.Errorf("JWT %sVerifyKeys[%q] must hold the current signing key", kind, kid)
	}
	return nil
}

// Validate rejects unusable or unsafe configurations.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be longer than AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.MaxFutureIAT < 0 || c.JWT.MaxFutureIAT > 24*time.Hour {
		return errors.New("JWT MaxFutureIAT must be between 0 and 24h")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}

	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.AccessSecret) < 32 || len(c.JWT.RefreshSecret) < 32 {
			return errors.New("hs256 requires AccessSecret and RefreshSecret of at least 32 bytes")
		}
		if bytes.Equal(c.JWT.AccessSecret, c.JWT.RefreshSecret) {
			return errors.New("AccessSecret and RefreshSecret must differ")
		}
	case "ed25519":
		if len(c.JWT.AccessPrivateKey) == 0 || len(c.JWT.AccessPublicKey) == 0 {
			return errors.New("ed25519 requires an access key pair")
		}
		if len(c.JWT.RefreshPrivateKey) == 0 || len(c.JWT.RefreshPublicKey) == 0 {
			return errors.New("ed25519 requires a refresh key pair")
		}
		if bytes.Equal(c.JWT.AccessPublicKey, c.JWT.RefreshPublicKey) {
			return errors.New("access and refresh key pairs must differ")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	accessKey, refreshKey := c.JWT.AccessSecret, c.JWT.RefreshSecret
	if c.JWT.SigningMethod == "ed25519" {
		accessKey, refreshKey = c.JWT.AccessPublicKey, c.JWT.RefreshPublicKey
	}
	if err := validateKeyRing("Access", c.JWT.AccessKeyID, c.JWT.AccessVerifyKeys, accessKey); err != nil {
		return err
	}
	if err := validateKeyRing("Refresh", c.JWT.RefreshKeyID, c.JWT.RefreshVerifyKeys, refreshKey); err != nil {
		return err
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MaxPasswordBytes < 0 {
		return errors.New("Password MaxPasswordBytes must be >= 0")
	}
	if c.Password.MinLength < 0 {
		return errors.New("Password MinLength must be >= 0")
	}
	if c.Password.MaxPasswordBytes > 0 && c.Password.MinLength > c.Password.MaxPasswordBytes {
		return errors.New("Password MinLength exceeds MaxPasswordBytes")
	}

	// OTP
	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 6 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}

	// Account
	if !c.Account.DefaultRole.Valid() {
		return errors.New("Account DefaultRole is not a known role")
	}

	// Mail
	if c.Mail.QueueSize <= 0 {
		return errors.New("Mail QueueSize must be > 0")
	}
	if c.Mail.SendTimeout <= 0 {
		return errors.New("Mail SendTimeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	// Cookie
	if strings.TrimSpace(c.Cookie.RefreshName) == "" {
		return errors.New("Cookie RefreshName must not be empty")
	}
	if c.Cookie.SameSite == http.SameSiteNoneMode && !c.Cookie.Secure && c.Cookie.Domain != "" {
		return errors.New("Cookie SameSite=None on a named domain requires Secure")
	}

	return nil
}

// LintWarning is a configuration that is valid but unusual enough to flag.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult is the list of warnings from Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (ws LintResult) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that pass Validate but weaken the deployment.
func (c Config) Lint() LintResult {
	var ws LintResult
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if c.JWT.Leeway > time.Minute {
		add("leeway_large", "JWT leeway above one minute widens the replay window")
	}
	if c.JWT.AccessTTL > 15*time.Minute {
		add("access_ttl_long", "access tokens cannot be revoked; keep them short")
	}
	if c.JWT.RefreshTTL > 30*24*time.Hour {
		add("refresh_ttl_long", "refresh tokens live longer than 30 days")
	}
	if c.OTP.TTL > 30*time.Minute {
		add("otp_ttl_long", "OTP codes stay valid longer than 30 minutes")
	}
	if !c.Cookie.Secure {
		add("cookie_insecure", "refresh cookie is sent over plain HTTP")
	}
	if c.Password.MinLength == 0 {
		add("password_min_length_disabled", "no minimum password length is enforced")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "audit events are not recorded")
	}

	return ws
}
