package goFactor

import (
	"errors"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goFactor/internal/audit"
	"github.com/MrEthical07/goFactor/otp"
	"github.com/MrEthical07/goFactor/password"
	"github.com/MrEthical07/goFactor/session"
	"github.com/MrEthical07/goFactor/token"
	"github.com/redis/go-redis/v9"
)

// Token purposes. A token minted for one purpose never redeems for another.
const (
	purposeEmailVerification = "email-verification"
	purposePasswordReset     = "password-reset"
	purposeOTPDestination    = "otp-destination"
)

// Builder assembles an [Engine]. A Builder builds exactly once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	identities IdentityStore
	notifier   NotificationSender
	geo        GeoResolver
	auditSink  AuditSink
	logger     *slog.Logger
	clock      func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the session store. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityStore sets the durable identity store. Required.
func (b *Builder) WithIdentityStore(store IdentityStore) *Builder {
	b.identities = store
	return b
}

// WithNotifier sets the mail and SMS sender. Required.
func (b *Builder) WithNotifier(n NotificationSender) *Builder {
	b.notifier = n
	return b
}

// WithGeoResolver sets the location resolver. Without one, location checks
// treat every address as unresolved.
func (b *Builder) WithGeoResolver(g GeoResolver) *Builder {
	b.geo = g
	return b
}

// WithAuditSink sets where audit events go when Config.Audit is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for fire-and-forget failures.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source. Tests use it to pin moving factors and
// age tokens.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.identities == nil {
		return nil, errors.New("identity store required")
	}
	if b.notifier == nil {
		return nil, errors.New("notification sender required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	engine := &Engine{
		config:     cloneConfig(cfg),
		identities: b.identities,
		notifier:   b.notifier,
		geo:        b.geo,
		logger:     logger,
		clock:      clock,
	}

	// -------- TOKENS --------
	for purpose, dst := range map[string]**token.Service{
		purposeEmailVerification: &engine.verifyTokens,
		purposePasswordReset:     &engine.resetTokens,
		purposeOTPDestination:    &engine.destTokens,
	} {
		svc, err := token.New(token.Config{
			Secret:  cloneBytes(cfg.Token.Secret),
			MaxAge:  cfg.Token.MaxAge,
			Purpose: purpose,
			Now:     clock,
		})
		if err != nil {
			return nil, err
		}
		*dst = svc
	}

	// -------- OTP --------
	codes, err := otp.New(otp.Config{
		Digits:    cfg.OTP.Digits,
		Algorithm: cfg.OTP.Algorithm,
	})
	if err != nil {
		return nil, err
	}
	engine.codes = codes

	// -------- PASSWORDS --------
	hasher, err := password.New(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MaxBytes:    cfg.Password.MaxBytes,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	// -------- SESSIONS --------
	engine.sessions = session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.IdleTTL)
	engine.lockout = &LockoutPolicy{
		engine:      engine,
		maxAttempts: int64(cfg.Lockout.MaxAttempts),
	}
	engine.location = &LocationGuard{engine: engine}
	engine.sendLimiter = newSendLimiter(b.redis, cfg.Throttle.RedisPrefix, cfg.Throttle)

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
