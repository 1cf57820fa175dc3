package goFactor

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// sendKind scopes a throttle window to one kind of outbound message.
type sendKind string

const (
	sendVerification  sendKind = "verify"
	sendPasswordReset sendKind = "reset"
	sendUsername      sendKind = "username"
	sendChallenge     sendKind = "otp"
)

// sendWindowScript counts one send and arms the window TTL in the same step.
// A key left without a TTL gets one on its next count.
const sendWindowScript = `
local n = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`

var sendWindowLua = redis.NewScript(sendWindowScript)

// sendLimiter caps outbound mail and SMS per identity with a fixed window in
// Redis, so that an anonymous caller cannot flood an inbox or phone.
type sendLimiter struct {
	redis  redis.UniversalClient
	prefix string
	config ThrottleConfig
}

func newSendLimiter(client redis.UniversalClient, prefix string, cfg ThrottleConfig) *sendLimiter {
	return &sendLimiter{
		redis:  client,
		prefix: prefix,
		config: cfg,
	}
}

// Allow counts one send of kind for userID and reports ErrRateLimited once
// the window is exhausted. IP keys are counted as well when ip is set.
func (l *sendLimiter) Allow(ctx context.Context, kind sendKind, userID, ip string) error {
	if l == nil || !l.config.Enabled {
		return nil
	}
	if err := l.enforceFixedWindow(ctx, l.identityKey(kind, userID)); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, l.ipKey(kind, ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *sendLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := sendWindowLua.Run(ctx, l.redis, []string{key}, l.config.Window.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	if count > int64(l.config.MaxSends) {
		return ErrRateLimited
	}
	return nil
}

func (l *sendLimiter) identityKey(kind sendKind, userID string) string {
	return l.prefix + ":" + string(kind) + ":u:" + userID
}

func (l *sendLimiter) ipKey(kind sendKind, ip string) string {
	return l.prefix + ":" + string(kind) + ":ip:" + ip
}

// throttle applies the send limiter and accounts for rejections.
func (e *Engine) throttle(ctx context.Context, kind sendKind, userID string) error {
	err := e.sendLimiter.Allow(ctx, kind, userID, clientIPFromContext(ctx))
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRateLimited) {
		e.metricInc(MetricNotificationThrottled)
		e.emitAudit(ctx, auditEventNotificationThrottled, false, userID, "", err, func() map[string]string {
			return map[string]string{"kind": string(kind)}
		})
	}
	return err
}
