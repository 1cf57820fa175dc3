package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	goFactor "github.com/MrEthical07/goFactor"
	"github.com/MrEthical07/goFactor/metrics/export/prometheus"
	"github.com/MrEthical07/goFactor/middleware"
	"github.com/MrEthical07/goFactor/session"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type server struct {
	engine   *goFactor.Engine
	cfg      config
	logger   *slog.Logger
	exporter *prometheus.Exporter
	paths    middleware.Paths
}

func newServer(engine *goFactor.Engine, cfg config, logger *slog.Logger, exporter *prometheus.Exporter) *server {
	return &server{
		engine:   engine,
		cfg:      cfg,
		logger:   logger,
		exporter: exporter,
		paths:    middleware.DefaultPaths(),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/metrics", s.exporter.Handler())

	cookie := middleware.DefaultCookieConfig()
	cookie.Name = s.cfg.CookieName
	cookie.Secure = s.cfg.SecureOnly

	r.Group(func(r chi.Router) {
		r.Use(middleware.ClientIP(s.cfg.TrustProxy))
		r.Use(middleware.Sessions(s.engine, cookie))

		guard := func(g goFactor.Guard) func(http.Handler) http.Handler {
			return middleware.Guard(s.engine, g, s.paths)
		}

		r.With(guard(goFactor.RequireAnonymous)).Post("/register", s.register)
		r.With(guard(goFactor.RequireAnonymous)).Post("/login", s.login)
		r.With(guard(goFactor.RequireAnonymous)).Post("/forgot-username", s.forgotUsername)
		r.With(guard(goFactor.RequireAnonymous)).Post("/forgot-password", s.forgotPassword)

		r.With(guard(goFactor.RequireUnverifiedEmail)).Get("/verify-email", s.verifyEmail)
		r.With(guard(goFactor.RequireUnverifiedEmail)).Post("/confirm-email", s.requestVerification)

		r.Route("/challenge", func(r chi.Router) {
			r.Use(guard(goFactor.RequirePendingSecondFactor))
			r.Post("/", s.requestChallenge)
			r.Post("/resend", s.resendChallenge)
			r.Post("/verify", s.verifyChallenge)
		})

		r.Get("/change-password", s.changePasswordForm)
		r.Post("/change-password", s.changePassword)
		r.Get("/logout", s.logout)
		r.Post("/logout", s.logout)

		r.Group(func(r chi.Router) {
			r.Use(guard(goFactor.RequireAuthenticated))
			r.Get("/", s.home)
			r.Post("/account/email", s.changeEmail)
			r.Post("/account/two-factor", s.setTwoFactor)
		})
	})

	return r
}

func (s *server) session(r *http.Request) *session.Session {
	sess, _ := middleware.SessionFromContext(r.Context())
	return sess
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, goFactor.ErrBadCredentials), errors.Is(err, goFactor.ErrAccountLocked):
		return http.StatusUnauthorized
	case errors.Is(err, goFactor.ErrUserNotInContext),
		errors.Is(err, goFactor.ErrSecondFactorNotPending),
		errors.Is(err, goFactor.ErrSessionNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, goFactor.ErrAlreadyRegistered), errors.Is(err, goFactor.ErrEmailExists):
		return http.StatusConflict
	case errors.Is(err, goFactor.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, goFactor.ErrStoreUnavailable),
		errors.Is(err, goFactor.ErrSessionUnavailable),
		errors.Is(err, goFactor.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		s.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, map[string]string{"error": goFactor.UserMessage(err)})
}

type registerRequest struct {
	Username string `json:"username"`
	First    string `json:"first"`
	Last     string `json:"last"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	_, err := s.engine.Register(r.Context(), goFactor.RegisterRequest{
		Username: req.Username,
		First:    req.First,
		Last:     req.Last,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"next": s.paths.Login})
}

// verifyEmail ends the caller session on success so a caller parked at the
// confirmation stage logs in again with the verified marker.
func (s *server) verifyEmail(w http.ResponseWriter, r *http.Request) {
	ident, err := s.engine.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.engine.Logout(r.Context(), s.session(r)); err != nil && !errors.Is(err, goFactor.ErrSessionNotFound) {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"username": ident.Username, "next": s.paths.Login})
}

func (s *server) requestVerification(w http.ResponseWriter, r *http.Request) {
	sent, err := s.engine.RequestVerification(r.Context(), s.session(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"sent": sent})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	sess := s.session(r)
	res, err := s.engine.Login(r.Context(), sess, req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	next := s.paths.For(res.Next)
	if res.Next == goFactor.RedirectHome {
		if back := sess.PopReturnTo(); back != "" {
			next = back
			if err := s.engine.SaveSession(r.Context(), sess); err != nil {
				s.fail(w, r, err)
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"next": next})
}

type challengeRequest struct {
	Method      goFactor.Method `json:"method"`
	Destination string          `json:"destination"`
	Token       string          `json:"token"`
	Code        string          `json:"code"`
}

func (s *server) requestChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !decode(w, r, &req) {
		return
	}
	tok, err := s.engine.RequestChallenge(r.Context(), s.session(r), req.Method, req.Destination)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"token": tok})
}

func (s *server) resendChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.Resend(r.Context(), s.session(r), req.Method, req.Token); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) verifyChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !decode(w, r, &req) {
		return
	}
	sess := s.session(r)
	if err := s.engine.VerifyChallenge(r.Context(), sess, req.Method, req.Token, req.Code); err != nil {
		s.fail(w, r, err)
		return
	}

	next := s.paths.Home
	if back := sess.PopReturnTo(); back != "" {
		next = back
		if err := s.engine.SaveSession(r.Context(), sess); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"next": next})
}

func (s *server) forgotUsername(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}
	if _, err := s.engine.ForgotUsername(r.Context(), req.Email); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if !decode(w, r, &req) {
		return
	}
	if _, err := s.engine.ForgotPassword(r.Context(), req.Username); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// changePasswordForm is the landing target of reset links; the client
// posts the token back with the new password.
func (s *server) changePasswordForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"token": r.URL.Query().Get("token")})
}

func (s *server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
		Token    string `json:"token"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.ChangePassword(r.Context(), s.session(r), req.Password, req.Token); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"next": s.paths.Login})
}

func (s *server) changeEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.ChangeEmail(r.Context(), s.session(r), req.Email); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) setTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !decode(w, r, &req) {
		return
	}
	changed, err := s.engine.SetTwoFactor(r.Context(), s.session(r), req.Enabled)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Logout(r.Context(), s.session(r)); err != nil && !errors.Is(err, goFactor.ErrSessionNotFound) {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"next": s.paths.Login})
}

func (s *server) home(w http.ResponseWriter, r *http.Request) {
	ident, err := s.engine.FindByID(r.Context(), s.session(r).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":   ident.Username,
		"email":      ident.Email,
		"two_factor": ident.TwoFactorEnabled,
	})
}
