package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	goFactor "github.com/MrEthical07/goFactor"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type config struct {
	Addr       string `env:"FACTOR_ADDR" envDefault:":8080"`
	LogLevel   string `env:"FACTOR_LOG_LEVEL" envDefault:"info"`
	SecretKey  string `env:"FACTOR_SECRET_KEY,required"`
	TokenAge   int    `env:"FACTOR_TOKEN_AGE" envDefault:"3600"`
	BaseURL    string `env:"FACTOR_BASE_URL" envDefault:"http://localhost:8080"`
	TrustProxy bool   `env:"FACTOR_TRUST_PROXY" envDefault:"false"`
	TwoFactor  bool   `env:"FACTOR_TWO_FACTOR_DEFAULT" envDefault:"true"`
	Metrics    bool   `env:"FACTOR_METRICS" envDefault:"true"`
	Audit      bool   `env:"FACTOR_AUDIT" envDefault:"true"`

	OTelStdout   bool          `env:"FACTOR_OTEL_STDOUT" envDefault:"false"`
	OTelInterval time.Duration `env:"FACTOR_OTEL_INTERVAL" envDefault:"1m"`

	MaxAttempts int           `env:"FACTOR_MAX_LOGIN_ATTEMPTS" envDefault:"4"`
	SessionTTL  time.Duration `env:"FACTOR_SESSION_TTL" envDefault:"30m"`
	CookieName  string        `env:"FACTOR_COOKIE_NAME" envDefault:"gf_session"`
	SecureOnly  bool          `env:"FACTOR_COOKIE_SECURE" envDefault:"true"`

	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"factord.db"`

	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	PostmarkFrom         string `env:"POSTMARK_FROM"`
	PostmarkReplyTo      string `env:"POSTMARK_REPLY_TO"`

	SMSAccountSID string `env:"SMS_ACCOUNT_SID"`
	SMSAuthToken  string `env:"SMS_AUTH_TOKEN"`
	SMSFrom       string `env:"SMS_FROM"`

	IPInfoToken string  `env:"IPINFO_TOKEN"`
	IPInfoRate  float64 `env:"IPINFO_RATE" envDefault:"10"`
	GeoEnabled  bool    `env:"FACTOR_GEO" envDefault:"true"`
}

// loadConfig reads .env files, when present, then the process environment.
func loadConfig(files ...string) (config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c config) engineConfig() goFactor.Config {
	cfg := goFactor.DefaultConfig()
	cfg.Token.Secret = []byte(c.SecretKey)
	cfg.Token.MaxAge = time.Duration(c.TokenAge) * time.Second
	cfg.Lockout.MaxAttempts = c.MaxAttempts
	cfg.Session.IdleTTL = c.SessionTTL
	cfg.Location.Enabled = c.GeoEnabled
	cfg.Links.BaseURL = c.BaseURL
	cfg.Registration.TwoFactorDefault = c.TwoFactor
	cfg.Audit.Enabled = c.Audit
	cfg.Metrics.Enabled = c.Metrics
	cfg.Metrics.EnableLatencyHistograms = c.Metrics
	return cfg
}
