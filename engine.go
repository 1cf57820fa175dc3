package goFactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goFactor/internal/audit"
	"github.com/MrEthical07/goFactor/otp"
	"github.com/MrEthical07/goFactor/password"
	"github.com/MrEthical07/goFactor/session"
	"github.com/MrEthical07/goFactor/token"
)

// errDeliveryFailed marks a notification that could not be delivered. It is
// logged and audited, never returned.
var errDeliveryFailed = errors.New("notification delivery failed")

// Engine runs the authentication funnel. It is safe for concurrent use; all
// per-caller state lives in the [session.Session] passed to each operation.
type Engine struct {
	config Config

	identities IdentityStore
	notifier   NotificationSender
	geo        GeoResolver
	sessions   *session.Store

	verifyTokens *token.Service
	resetTokens  *token.Service
	destTokens   *token.Service
	codes        *otp.Engine
	hasher       *password.Hasher

	lockout     *LockoutPolicy
	location    *LocationGuard
	sendLimiter *sendLimiter

	audit   *internalaudit.Dispatcher
	metrics *Metrics
	logger  *slog.Logger
	clock   func() time.Time
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the current counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Methods:    map[MetricID]map[Method]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Sessions exposes the session store to the web layer.
func (e *Engine) Sessions() *session.Store {
	if e == nil {
		return nil
	}
	return e.sessions
}

// Lockout returns the lockout policy.
func (e *Engine) Lockout() *LockoutPolicy {
	if e == nil {
		return nil
	}
	return e.lockout
}

// Location returns the location guard.
func (e *Engine) Location() *LocationGuard {
	if e == nil {
		return nil
	}
	return e.location
}

// NewSession starts an anonymous caller session.
func (e *Engine) NewSession(ctx context.Context) (*session.Session, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	sess, err := e.sessions.Create(ctx)
	if err != nil {
		return nil, sessionError(err)
	}
	return sess, nil
}

// LoadSession fetches a live caller session by id.
func (e *Engine) LoadSession(ctx context.Context, id string) (*session.Session, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	sess, err := e.sessions.Get(ctx, id)
	if err != nil {
		return nil, sessionError(err)
	}
	return sess, nil
}

// SaveSession persists changes the web layer made to sess, such as ReturnTo.
func (e *Engine) SaveSession(ctx context.Context, sess *session.Session) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if sess == nil {
		return ErrSessionNotFound
	}
	return e.saveSession(ctx, sess)
}

// Logout destroys the caller session, including any pending second factor.
func (e *Engine) Logout(ctx context.Context, sess *session.Session) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if sess == nil {
		return ErrSessionNotFound
	}
	if err := e.sessions.Delete(ctx, sess.ID); err != nil {
		return sessionError(err)
	}
	userID := sess.UserID
	sessionID := sess.ID
	sess.Clear()
	sess.ReturnTo = ""
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, userID, sessionID, nil, nil)
	return nil
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricIncMethod(id MetricID, method Method) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.IncMethod(id, method)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) ready() error {
	if e == nil || e.identities == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) saveSession(ctx context.Context, sess *session.Session) error {
	if err := e.sessions.Save(ctx, sess); err != nil {
		return sessionError(err)
	}
	return nil
}

// dispatch sends msg within the configured timeout. Failures are logged,
// counted and audited; callers never see them.
func (e *Engine) dispatch(ctx context.Context, userID string, msg Message) bool {
	sendCtx, cancel := context.WithTimeout(ctx, e.config.Notification.SendTimeout)
	defer cancel()

	err := e.notifier.Send(sendCtx, msg)
	if err == nil {
		return true
	}

	e.logger.WarnContext(ctx, "notification dispatch failed",
		"channel", string(msg.Channel),
		"user_id", userID,
		"error", err,
	)
	e.metricInc(MetricNotificationFailure)
	e.emitAudit(ctx, auditEventNotificationFailed, false, userID, "", fmt.Errorf("%w: %v", errDeliveryFailed, err), func() map[string]string {
		return map[string]string{"channel": string(msg.Channel)}
	})
	return false
}

func sessionError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	default:
		return err
	}
}

// storeError maps identity store failures onto the engine taxonomy. Known
// sentinels pass through; anything else is a backend failure.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrIdentityNotFound),
		errors.Is(err, ErrIdentityConflict),
		errors.Is(err, ErrStoreUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func tokenError(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ErrExpiredToken
	default:
		return ErrInvalidToken
	}
}
