package goFactor

import (
	"context"
	"strconv"

	"github.com/MrEthical07/goFactor/session"
)

// LockoutPolicy locks an identity after repeated failed password checks
// from one caller session. Locking is monotonic: only a password change or
// an explicit Clear unlocks.
type LockoutPolicy struct {
	engine      *Engine
	maxAttempts int64
}

// MaxAttempts is the failure count that locks.
func (p *LockoutPolicy) MaxAttempts() int {
	return int(p.maxAttempts)
}

// RecordFailure counts one failed password check for ident from sess and
// reports whether ident is now locked. An already locked identity is left
// alone and the counter is not advanced.
func (p *LockoutPolicy) RecordFailure(ctx context.Context, sess *session.Session, ident Identity) (bool, error) {
	if ident.Locked {
		return true, nil
	}
	if sess == nil {
		return false, ErrSessionNotFound
	}

	attempts, err := p.engine.sessions.IncrementAttempts(ctx, sess)
	if err != nil {
		return false, sessionError(err)
	}
	if attempts < p.maxAttempts {
		return false, nil
	}

	if err := p.engine.identities.SetLocked(ctx, ident.ID, true); err != nil {
		return false, storeError(err)
	}

	p.engine.metricInc(MetricAccountLocked)
	p.engine.emitAudit(ctx, auditEventAccountLocked, true, ident.ID, sess.ID, nil, func() map[string]string {
		return map[string]string{"attempts": strconv.FormatInt(attempts, 10)}
	})
	return true, nil
}

// Clear unlocks ident and resets the attempt counter of sess, if given.
func (p *LockoutPolicy) Clear(ctx context.Context, sess *session.Session, ident Identity) error {
	if err := p.engine.identities.SetLocked(ctx, ident.ID, false); err != nil {
		return storeError(err)
	}
	return p.resetAttempts(ctx, sess)
}

func (p *LockoutPolicy) resetAttempts(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.LoginAttempts == 0 {
		return nil
	}
	sess.LoginAttempts = 0
	return p.engine.saveSession(ctx, sess)
}
