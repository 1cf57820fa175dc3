package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalid is returned when a token is malformed, carries a bad
	// signature, or was minted for a different purpose.
	ErrInvalid = errors.New("invalid token")
	// ErrExpired is returned when a token verifies but is older than MaxAge.
	ErrExpired = errors.New("expired token")
)

const minSecretBytes = 16

// Config defines a token service.
type Config struct {
	Secret  []byte
	MaxAge  time.Duration
	Purpose string
	Now     func() time.Time
}

// Service mints and redeems tokens for one purpose. It is safe for
// concurrent use.
type Service struct {
	config Config
}

// IssuedNano keeps the sub-second issue time that the registered iat
// claim truncates.
type claims struct {
	Payload    string `json:"p"`
	IssuedNano int64  `json:"n"`
	jwt.RegisteredClaims
}

// New validates cfg and returns a Service.
func New(cfg Config) (*Service, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("token secret must be at least %d bytes", minSecretBytes)
	}
	if cfg.MaxAge <= 0 {
		return nil, errors.New("token max age must be positive")
	}
	cfg.Purpose = strings.TrimSpace(cfg.Purpose)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	return &Service{config: cfg}, nil
}

// MaxAge reports the configured token lifetime.
func (s *Service) MaxAge() time.Duration {
	return s.config.MaxAge
}

// Issue signs payload together with the current time.
func (s *Service) Issue(payload string) (string, error) {
	now := s.config.Now()
	c := claims{
		Payload:    payload,
		IssuedNano: now.UnixNano(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.config.Purpose != "" {
		c.Audience = jwt.ClaimStrings{s.config.Purpose}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.config.Secret)
}

// Redeem verifies tok and returns its payload.
//
// The signature is checked before the age, so a tampered token always
// yields ErrInvalid even when it would also be expired.
func (s *Service) Redeem(tok string) (string, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.config.Now),
	}
	if s.config.Purpose != "" {
		options = append(options, jwt.WithAudience(s.config.Purpose))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(tok, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return s.config.Secret, nil
	})
	if err != nil {
		return "", ErrInvalid
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.IssuedAt == nil || c.IssuedNano <= 0 {
		return "", ErrInvalid
	}
	if s.config.Now().Sub(time.Unix(0, c.IssuedNano)) > s.config.MaxAge {
		return "", ErrExpired
	}

	return c.Payload, nil
}
