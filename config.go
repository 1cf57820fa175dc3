package goFactor

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config holds every tunable of the Engine. Obtain one from [DefaultConfig],
// adjust it, and pass it to [Builder.WithConfig].
type Config struct {
	Token        TokenConfig
	OTP          OTPConfig
	Password     PasswordConfig
	Lockout      LockoutConfig
	Session      SessionConfig
	Location     LocationConfig
	Notification NotificationConfig
	Links        LinksConfig
	Registration RegistrationConfig
	Throttle     ThrottleConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures the signed links and destination tokens. All three
// token purposes share the secret and the age.
type TokenConfig struct {
	Secret []byte
	MaxAge time.Duration
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig selects the HOTP parameters.
type OTPConfig struct {
	Digits    int
	Algorithm string // "SHA1" (default), "SHA256", "SHA512"
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the Argon2id cost parameters.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MaxBytes    int
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig sets how many failed password checks from one session lock
// the identity.
type LockoutConfig struct {
	MaxAttempts int
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the Redis session store.
type SessionConfig struct {
	RedisPrefix string
	// IdleTTL bounds both the session and any pending second factor in it.
	IdleTTL time.Duration
}

/*
====================================
LOCATION CONFIG
====================================
*/

// LocationConfig configures new-location detection.
type LocationConfig struct {
	Enabled        bool
	ResolveTimeout time.Duration
}

/*
====================================
NOTIFICATION CONFIG
====================================
*/

// NotificationConfig bounds outbound delivery.
type NotificationConfig struct {
	SendTimeout time.Duration
}

/*
====================================
LINKS CONFIG
====================================
*/

// LinksConfig builds the absolute URLs embedded in mails.
type LinksConfig struct {
	BaseURL            string
	VerifyEmailPath    string
	ChangePasswordPath string
}

/*
====================================
REGISTRATION CONFIG
====================================
*/

// RegistrationConfig holds registration defaults.
type RegistrationConfig struct {
	TwoFactorDefault bool
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleConfig caps outbound mails and texts per identity, per kind of
// message, within a fixed window.
type ThrottleConfig struct {
	Enabled          bool
	MaxSends         int
	Window           time.Duration
	EnableIPThrottle bool
	RedisPrefix      string
}

// AuditConfig controls async audit dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. Token.Secret is left empty and
// must be supplied.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			MaxAge: time.Hour,
		},
		OTP: OTPConfig{
			Digits:    6,
			Algorithm: "SHA1",
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MaxBytes:    1024,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 4,
		},
		Session: SessionConfig{
			RedisPrefix: "gf:sess",
			IdleTTL:     30 * time.Minute,
		},
		Location: LocationConfig{
			Enabled:        true,
			ResolveTimeout: 2 * time.Second,
		},
		Notification: NotificationConfig{
			SendTimeout: 5 * time.Second,
		},
		Links: LinksConfig{
			BaseURL:            "http://localhost:8080",
			VerifyEmailPath:    "/verify-email",
			ChangePasswordPath: "/change-password",
		},
		Registration: RegistrationConfig{
			TwoFactorDefault: true,
		},
		Throttle: ThrottleConfig{
			Enabled:          true,
			MaxSends:         5,
			Window:           15 * time.Minute,
			EnableIPThrottle: false,
			RedisPrefix:      "gf:send",
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
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
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

// Validate reports the first configuration error, or nil.
func (c *Config) Validate() error {
	// Token
	if len(c.Token.Secret) < 16 {
		return errors.New("Token Secret must be at least 16 bytes")
	}
	if c.Token.MaxAge <= 0 {
		return errors.New("Token MaxAge must be > 0")
	}

	// OTP
	if c.OTP.Digits != 6 && c.OTP.Digits != 8 {
		return errors.New("OTP Digits must be 6 or 8")
	}
	switch strings.ToUpper(c.OTP.Algorithm) {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("OTP Algorithm must be SHA1, SHA256 or SHA512")
	}

	// Lockout
	if c.Lockout.MaxAttempts < 1 {
		return errors.New("Lockout MaxAttempts must be >= 1")
	}

	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must be set")
	}
	if c.Session.IdleTTL <= 0 {
		return errors.New("Session IdleTTL must be > 0")
	}

	// Location
	if c.Location.Enabled && c.Location.ResolveTimeout <= 0 {
		return errors.New("Location ResolveTimeout must be > 0 when enabled")
	}

	// Notification
	if c.Notification.SendTimeout <= 0 {
		return errors.New("Notification SendTimeout must be > 0")
	}

	// Links
	base, err := url.Parse(c.Links.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return errors.New("Links BaseURL must be an absolute URL")
	}
	if !strings.HasPrefix(c.Links.VerifyEmailPath, "/") || !strings.HasPrefix(c.Links.ChangePasswordPath, "/") {
		return errors.New("Links paths must start with /")
	}

	// Throttle
	if c.Throttle.Enabled {
		if c.Throttle.MaxSends < 1 {
			return errors.New("Throttle MaxSends must be >= 1 when enabled")
		}
		if c.Throttle.Window <= 0 {
			return errors.New("Throttle Window must be > 0 when enabled")
		}
		if c.Throttle.RedisPrefix == "" {
			return errors.New("Throttle RedisPrefix must be set when enabled")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
