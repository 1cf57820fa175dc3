package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goFactor/internal"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when the session key is absent or expired.
var ErrNotFound = errors.New("session not found")

// ErrRedisUnavailable wraps every Redis failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	fieldUserID        = "user_id"
	fieldEmailVerified = "email_verified"
	fieldSecondFactor  = "second_factor"
	fieldMovingFactor  = "moving_factor"
	fieldLoginAttempts = "login_attempts"
	fieldReturnTo      = "return_to"
	fieldCreatedAt     = "created_at"
)

// The counter only moves on a live session; a missing key must not be
// recreated by HINCRBY.
const incrementAttemptsScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
local n = redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return n
`

var incrementAttemptsLua = redis.NewScript(incrementAttemptsScript)

// Store persists sessions in Redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewStore returns a Store that namespaces keys under prefix and expires
// idle sessions after ttl.
func NewStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "gf:sess"
	}
	return &Store{
		redis:  rdb,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL returns the idle lifetime applied to every write and read.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) key(id string) string {
	return s.prefix + ":" + id
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

// Create starts an anonymous session under a fresh random id.
func (s *Store) Create(ctx context.Context) (*Session, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	sess := &Session{ID: sid.String(), CreatedAt: s.now().Unix()}
	if err := s.write(ctx, sess, ""); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get loads the session and refreshes its idle TTL.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	if _, err := internal.ParseSessionID(id); err != nil {
		return nil, ErrNotFound
	}

	key := s.key(id)
	var fields *redis.MapStringStringCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, key)
		pipe.PExpire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}

	values := fields.Val()
	if len(values) == 0 {
		return nil, ErrNotFound
	}
	sess, err := decode(id, values)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Save overwrites the stored fields of sess.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return ErrNotFound
	}
	return s.write(ctx, sess, "")
}

// Rotate moves sess to a fresh id, deleting the old key in the same
// transaction. Callers rotate whenever the bound identity changes.
func (s *Store) Rotate(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return ErrNotFound
	}
	sid, err := internal.NewSessionID()
	if err != nil {
		return err
	}
	old := sess.ID
	sess.ID = sid.String()
	if err := s.write(ctx, sess, old); err != nil {
		sess.ID = old
		return err
	}
	return nil
}

// IncrementAttempts atomically bumps the failed-login counter of sess and
// stores the new value on it.
func (s *Store) IncrementAttempts(ctx context.Context, sess *Session) (int64, error) {
	n, err := incrementAttemptsLua.Run(ctx, s.redis,
		[]string{s.key(sess.ID)},
		fieldLoginAttempts, s.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	if n < 0 {
		return 0, ErrNotFound
	}
	sess.LoginAttempts = n
	return n, nil
}

// Delete removes the session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Ping measures a Redis round trip.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), unavailable(err)
	}
	return time.Since(start), nil
}

func (s *Store) write(ctx context.Context, sess *Session, replaced string) error {
	key := s.key(sess.ID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if replaced != "" {
			pipe.Del(ctx, s.key(replaced))
		}
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, encode(sess))
		pipe.PExpire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func encode(sess *Session) map[string]any {
	return map[string]any{
		fieldUserID:        sess.UserID,
		fieldEmailVerified: boolField(sess.EmailVerified),
		fieldSecondFactor:  boolField(sess.SecondFactorPassed),
		fieldMovingFactor:  sess.MovingFactor,
		fieldLoginAttempts: sess.LoginAttempts,
		fieldReturnTo:      sess.ReturnTo,
		fieldCreatedAt:     sess.CreatedAt,
	}
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func decode(id string, values map[string]string) (*Session, error) {
	sess := &Session{
		ID:                 id,
		UserID:             values[fieldUserID],
		EmailVerified:      values[fieldEmailVerified] == "1",
		SecondFactorPassed: values[fieldSecondFactor] == "1",
		ReturnTo:           values[fieldReturnTo],
	}

	var err error
	if sess.MovingFactor, err = intField(values, fieldMovingFactor); err != nil {
		return nil, err
	}
	if sess.LoginAttempts, err = intField(values, fieldLoginAttempts); err != nil {
		return nil, err
	}
	if sess.CreatedAt, err = intField(values, fieldCreatedAt); err != nil {
		return nil, err
	}
	return sess, nil
}

func intField(values map[string]string, name string) (int64, error) {
	raw, ok := values[name]
	if !ok || raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("session field %s: %w", name, err)
	}
	return n, nil
}
