package otp

import (
	"encoding/base32"
	"errors"
	"strings"

	potp "github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

var (
	// ErrEmptySecret is returned when the secret source attribute is empty.
	ErrEmptySecret = errors.New("otp secret source is empty")
	// ErrNegativeFactor is returned for moving factors below zero.
	ErrNegativeFactor = errors.New("otp moving factor must not be negative")
)

// Config selects the HOTP parameters.
type Config struct {
	Digits    int
	Algorithm string // "SHA1" (default), "SHA256", "SHA512"
}

// Engine generates and verifies codes. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	opts hotp.ValidateOpts
}

// New returns an Engine; zero-valued fields default to 6 digits and SHA1.
func New(cfg Config) (*Engine, error) {
	var digits potp.Digits
	switch cfg.Digits {
	case 0, 6:
		digits = potp.DigitsSix
	case 8:
		digits = potp.DigitsEight
	default:
		return nil, errors.New("otp digits must be 6 or 8")
	}

	var algorithm potp.Algorithm
	switch strings.ToUpper(cfg.Algorithm) {
	case "", "SHA1":
		algorithm = potp.AlgorithmSHA1
	case "SHA256":
		algorithm = potp.AlgorithmSHA256
	case "SHA512":
		algorithm = potp.AlgorithmSHA512
	default:
		return nil, errors.New("unsupported otp algorithm")
	}

	return &Engine{opts: hotp.ValidateOpts{Digits: digits, Algorithm: algorithm}}, nil
}

// SecretFor returns the HOTP key for a user identified by email.
func SecretFor(email string) []byte {
	return []byte(email)
}

func encodedSecret(email string) (string, error) {
	if email == "" {
		return "", ErrEmptySecret
	}
	return base32.StdEncoding.EncodeToString(SecretFor(email)), nil
}

// Generate returns the code for (email, movingFactor).
func (e *Engine) Generate(email string, movingFactor int64) (string, error) {
	if movingFactor < 0 {
		return "", ErrNegativeFactor
	}
	secret, err := encodedSecret(email)
	if err != nil {
		return "", err
	}
	return hotp.GenerateCodeCustom(secret, uint64(movingFactor), e.opts)
}

// Verify reports whether code is the code for (email, movingFactor).
// Malformed input verifies as false.
func (e *Engine) Verify(email, code string, movingFactor int64) bool {
	if movingFactor < 0 {
		return false
	}
	secret, err := encodedSecret(email)
	if err != nil {
		return false
	}
	ok, err := hotp.ValidateCustom(strings.TrimSpace(code), uint64(movingFactor), secret, e.opts)
	return err == nil && ok
}
