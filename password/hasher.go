package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	// DefaultMaxBytes caps plaintext length when Config.MaxBytes is zero.
	DefaultMaxBytes = 1024
)

var (
	// ErrEmpty is returned when hashing an empty password.
	ErrEmpty = errors.New("password is empty")
	// ErrTooLong is returned when the plaintext exceeds Config.MaxBytes.
	ErrTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config holds the Argon2id cost parameters.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MaxBytes    int
}

// DefaultConfig returns interactive-login parameters (64 MiB, t=3, p=2).
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		MaxBytes:    DefaultMaxBytes,
	}
}

// Hasher hashes and verifies passwords. It is safe for concurrent use.
type Hasher struct {
	cfg  Config
	rand io.Reader
}

// New validates cfg and returns a Hasher.
func New(cfg Config) (*Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &Hasher{cfg: cfg, rand: rand.Reader}, nil
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KiB", minMemoryKB)
	case c.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case c.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	case c.MaxBytes < 0:
		return errors.New("password max bytes must not be negative")
	}
	return nil
}

// Hash returns a PHC-encoded Argon2id hash with a fresh random salt.
// Plaintext bytes are used as given, without Unicode normalization.
func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmpty
	}
	if len(plain) > h.cfg.MaxBytes {
		return "", ErrTooLong
	}

	salt := make([]byte, h.cfg.SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", err
	}

	p := phc{
		memory:      h.cfg.Memory,
		time:        h.cfg.Time,
		parallelism: h.cfg.Parallelism,
		salt:        salt,
	}
	p.hash = p.derive(plain, h.cfg.KeyLength)
	return p.String(), nil
}

// Verify reports whether plain matches encoded. An unparsable hash is an
// error; a mismatch is (false, nil).
func (h *Hasher) Verify(plain, encoded string) (bool, error) {
	if len(plain) > h.cfg.MaxBytes {
		return false, ErrTooLong
	}
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	computed := p.derive(plain, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(computed, p.hash) == 1, nil
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than the Hasher's current configuration.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return h.cfg.Memory > p.memory ||
		h.cfg.Time > p.time ||
		h.cfg.Parallelism > p.parallelism ||
		h.cfg.KeyLength != uint32(len(p.hash)), nil
}

func (p phc) derive(plain string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(plain), p.salt, p.time, p.memory, p.parallelism, keyLen)
}

func encodeB64(b []byte) string {
	return base64.RawStdEncoding.EncodeToString(b)
}
