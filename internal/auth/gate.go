// ABOUTME: HTTP middleware gating the private area on a validated session cookie
// ABOUTME: Pages redirect on failure; JSON APIs answer 401/403 with an error code

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Default gate settings.
const (
	DefaultCookieName = "ep_private"
	DefaultAuthPath   = "/private/auth"
	DefaultHomePath   = "/private"
)

// SessionValidator validates a session hash. *Validator implements it.
type SessionValidator interface {
	Validate(ctx context.Context, sessionHash string) Result
}

// GateConfig configures the private area gate.
type GateConfig struct {
	CookieName string // cookie carrying the session hash
	AuthPath   string // authentication entry point, must be outside the gate
	HomePath   string // non-privileged landing page for forbidden redirects
}

// Gate wraps protected handlers with session validation.
type Gate struct {
	validator SessionValidator
	cfg       GateConfig
	logger    *slog.Logger
}

// NewGate creates a Gate. Empty config fields take the defaults.
func NewGate(validator SessionValidator, cfg GateConfig) *Gate {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.AuthPath == "" {
		cfg.AuthPath = DefaultAuthPath
	}
	if cfg.HomePath == "" {
		cfg.HomePath = DefaultHomePath
	}
	return &Gate{
		validator: validator,
		cfg:       cfg,
		logger:    slog.Default().With("component", "gate"),
	}
}

// CookieName returns the name of the session cookie.
func (g *Gate) CookieName() string {
	return g.cfg.CookieName
}

// SessionHashFromRequest returns the session hash carried by the named
// cookie, or "" when the cookie is absent.
func SessionHashFromRequest(r *http.Request, cookieName string) string {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// check validates the request's session and attaches the identity on success.
// ok is false when the request was cancelled before a decision was made.
func (g *Gate) check(r *http.Request) (res Result, req *http.Request, ok bool) {
	res = g.validator.Validate(r.Context(), SessionHashFromRequest(r, g.cfg.CookieName))
	if r.Context().Err() != nil {
		return res, r, false
	}
	if res.Authenticated() {
		r = r.WithContext(WithIdentity(r.Context(), res.Identity))
	}
	return res, r, true
}

// Middleware gates pages: unauthenticated visitors are redirected to the
// auth entry point with the requested path as next.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, r, ok := g.check(r)
		if !ok {
			return
		}
		if Decide(res, "") != OutcomeAllowed {
			g.logger.Debug("redirecting to auth", "path", r.URL.Path, "reason", res.Reason)
			http.Redirect(w, r, AuthURL(g.cfg.AuthPath, r.URL.RequestURI()), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole gates pages on a role. It validates the session itself, so it
// works with or without Middleware in front of it. Forbidden visitors are
// redirected to the home page, keeping next.
func (g *Gate) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, r, ok := g.resolve(r)
			if !ok {
				return
			}
			switch Decide(res, role) {
			case OutcomeAllowed:
				next.ServeHTTP(w, r)
			case OutcomeForbidden:
				g.logger.Debug("role check failed", "path", r.URL.Path, "email", res.Identity.Email, "role", res.Identity.Role)
				http.Redirect(w, r, HomeURL(g.cfg.HomePath, r.URL.RequestURI()), http.StatusSeeOther)
			default:
				http.Redirect(w, r, AuthURL(g.cfg.AuthPath, r.URL.RequestURI()), http.StatusSeeOther)
			}
		})
	}
}

// APIMiddleware gates JSON endpoints: 401 with the failure reason.
func (g *Gate) APIMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, r, ok := g.check(r)
		if !ok {
			return
		}
		if Decide(res, "") != OutcomeAllowed {
			if err := res.Err(); errors.Is(err, ErrStoreUnavailable) {
				g.logger.Warn("api session check failed", "path", r.URL.Path, "error", err)
			} else {
				g.logger.Debug("api request rejected", "path", r.URL.Path, "error", err)
			}
			writeAPIError(w, http.StatusUnauthorized, apiReason(res))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRoleAPI gates JSON endpoints on a role: 401 without a valid
// session, 403 "not_<role>" with one.
func (g *Gate) RequireRoleAPI(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, r, ok := g.resolve(r)
			if !ok {
				return
			}
			switch Decide(res, role) {
			case OutcomeAllowed:
				next.ServeHTTP(w, r)
			case OutcomeForbidden:
				writeAPIError(w, http.StatusForbidden, "not_"+role)
			default:
				writeAPIError(w, http.StatusUnauthorized, apiReason(res))
			}
		})
	}
}

// resolve reuses an identity attached by an outer gate, validating only
// when none is present.
func (g *Gate) resolve(r *http.Request) (Result, *http.Request, bool) {
	if id := FromContext(r.Context()); id != nil {
		return Result{State: StateAuthenticated, Identity: id}, r, true
	}
	return g.check(r)
}

// apiReason maps a failed result to the code returned to API clients.
// Store failures are reported as invalid sessions.
func apiReason(res Result) string {
	if res.Reason == ReasonNoSession {
		return ReasonNoSession
	}
	return ReasonInvalidSession
}

func writeAPIError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": code})
}
