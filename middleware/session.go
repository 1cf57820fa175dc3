package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	goFactor "github.com/MrEthical07/goFactor"
	"github.com/MrEthical07/goFactor/session"
)

// SessionSource is the slice of [goFactor.Engine] the middleware needs.
type SessionSource interface {
	NewSession(ctx context.Context) (*session.Session, error)
	LoadSession(ctx context.Context, id string) (*session.Session, error)
	SaveSession(ctx context.Context, sess *session.Session) error
}

// CookieConfig shapes the session cookie.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	// MaxAge of zero issues a browser-session cookie.
	MaxAge time.Duration
}

// DefaultCookieConfig returns a secure, host-only cookie named gf_session.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Name:     "gf_session",
		Path:     "/",
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

type sessionContextKey struct{}

// SessionFromContext returns the session installed by [Sessions].
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess, ok && sess != nil
}

// WithSession installs sess in ctx.
func WithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// Sessions resolves the caller session from its cookie, starting a new one
// when the cookie is missing or stale. The cookie written with the response
// always carries the session's current id, so a rotation during the request
// reaches the browser.
func Sessions(src SessionSource, cfg CookieConfig) func(http.Handler) http.Handler {
	if cfg.Name == "" {
		cfg.Name = DefaultCookieConfig().Name
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if src == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			sess, err := resolveSession(r, src, cfg.Name)
			if err != nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			cw := &cookieWriter{ResponseWriter: w, sess: sess, cfg: cfg}
			next.ServeHTTP(cw, r.WithContext(WithSession(r.Context(), sess)))
			if !cw.wroteHeader {
				cw.WriteHeader(http.StatusOK)
			}
		})
	}
}

func resolveSession(r *http.Request, src SessionSource, name string) (*session.Session, error) {
	if c, err := r.Cookie(name); err == nil && c.Value != "" {
		sess, err := src.LoadSession(r.Context(), c.Value)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, goFactor.ErrSessionNotFound) {
			return nil, err
		}
	}
	return src.NewSession(r.Context())
}

type cookieWriter struct {
	http.ResponseWriter
	sess        *session.Session
	cfg         CookieConfig
	wroteHeader bool
}

func (w *cookieWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	c := &http.Cookie{
		Name:     w.cfg.Name,
		Value:    w.sess.ID,
		Path:     w.cfg.Path,
		Domain:   w.cfg.Domain,
		Secure:   w.cfg.Secure,
		HttpOnly: true,
		SameSite: w.cfg.SameSite,
	}
	if w.cfg.MaxAge > 0 {
		c.MaxAge = int(w.cfg.MaxAge / time.Second)
	}
	http.SetCookie(w.ResponseWriter, c)
	w.ResponseWriter.WriteHeader(code)
}

func (w *cookieWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *cookieWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
