// ABOUTME: HTTP surface of the private area: pages, member APIs and admin token endpoints
// ABOUTME: Routes are grouped on gorilla/mux subrouters that carry the session gates

package site

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/gorilla/mux"

	"github.com/execpartners/ep-private/internal/auth"
	"github.com/execpartners/ep-private/internal/store"
)

// Config holds the site's settings.
type Config struct {
	Gate   auth.GateConfig
	Cookie auth.CookieConfig

	// BaseURL is the external origin used in issued links.
	BaseURL    string
	SessionTTL time.Duration
	LinkTTL    time.Duration

	// AdminToken protects the /api/jobs endpoints. Empty means unconfigured.
	AdminToken string

	AdminPerMinute int
	AuthPerMinute  int
	Burst          int

	// TrustedProxies are the peers allowed to set forwarded client headers.
	TrustedProxies []netip.Prefix

	// Sender delivers self-service sign-in links. Defaults to logging them.
	Sender LinkSender

	Now func() time.Time
}

// Site serves the private area.
type Site struct {
	store     store.Store
	gate      *auth.Gate
	tokenGate *auth.AdminTokenGate
	signer    *auth.LinkSigner
	issuer    *LinkIssuer
	sender    LinkSender
	ips       *ClientIPResolver
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger

	adminLimiter *IPRateLimiter
	authLimiter  *IPRateLimiter

	router *mux.Router
}

// New creates a Site. validator decides every gated request.
func New(st store.Store, validator auth.SessionValidator, signer *auth.LinkSigner, cfg Config) *Site {
	if cfg.Gate.CookieName == "" {
		cfg.Gate.CookieName = auth.DefaultCookieName
	}
	if cfg.Gate.AuthPath == "" {
		cfg.Gate.AuthPath = auth.DefaultAuthPath
	}
	if cfg.Gate.HomePath == "" {
		cfg.Gate.HomePath = auth.DefaultHomePath
	}
	cfg.Cookie.Name = cfg.Gate.CookieName
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 15 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := slog.Default().With("component", "site")
	if cfg.Sender == nil {
		cfg.Sender = LogLinkSender{Logger: logger}
	}
	ips := NewClientIPResolver(cfg.TrustedProxies)

	s := &Site{
		store:        st,
		gate:         auth.NewGate(validator, cfg.Gate),
		tokenGate:    auth.NewAdminTokenGate(cfg.AdminToken),
		signer:       signer,
		issuer:       NewLinkIssuer(st, signer, cfg.BaseURL, cfg.Gate.AuthPath, cfg.LinkTTL),
		sender:       cfg.Sender,
		ips:          ips,
		cfg:          cfg,
		now:          cfg.Now,
		logger:       logger,
		adminLimiter: NewIPRateLimiter(cfg.AdminPerMinute, cfg.Burst, ips),
		authLimiter:  NewIPRateLimiter(cfg.AuthPerMinute, cfg.Burst, ips),
	}
	s.issuer.now = cfg.Now
	s.router = s.routes()

	if !s.tokenGate.Configured() {
		s.logger.Warn("admin token not configured, job endpoints will answer 500")
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Site) Handler() http.Handler {
	return s.router
}

// Issuer returns the magic link issuer.
func (s *Site) Issuer() *LinkIssuer {
	return s.issuer
}

// Close stops background rate limiter work.
func (s *Site) Close() {
	s.adminLimiter.Close()
	s.authLimiter.Close()
}

func (s *Site) routes() *mux.Router {
	r := mux.NewRouter()
	authPath := s.cfg.Gate.AuthPath

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Outside the gate: the auth entry point must never require a session.
	r.HandleFunc(authPath, s.handleAuthPage).Methods(http.MethodGet)
	// GET only renders a confirm form so link scanners cannot spend the link.
	r.Handle(authPath+"/verify", s.authLimiter.Middleware(http.HandlerFunc(s.handleVerifyPage))).Methods(http.MethodGet)
	r.Handle(authPath+"/verify", s.authLimiter.Middleware(http.HandlerFunc(s.handleVerify))).Methods(http.MethodPost)
	r.HandleFunc(s.cfg.Gate.HomePath+"/logout", s.handleLogout).Methods(http.MethodPost)
	r.Handle("/api/private/auth/request", s.authLimiter.Middleware(http.HandlerFunc(s.handleRequestLink))).Methods(http.MethodPost)

	api := r.PathPrefix("/api/private").Subrouter()
	api.Use(s.gate.APIMiddleware)
	api.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	api.HandleFunc("/access-request", s.handleCreateAccessRequest).Methods(http.MethodPost)

	adminAPI := api.PathPrefix("/admin").Subrouter()
	adminAPI.Use(s.gate.RequireRoleAPI(store.RoleAdmin))
	adminAPI.HandleFunc("/requests", s.handleListRequests).Methods(http.MethodGet)
	adminAPI.HandleFunc("/requests/{id}/status", s.handleRequestStatus).Methods(http.MethodPost)
	adminAPI.HandleFunc("/links", s.handleIssueLink).Methods(http.MethodPost)
	adminAPI.HandleFunc("/audit", s.handleListAudit).Methods(http.MethodGet)

	jobs := r.PathPrefix("/api/jobs").Subrouter()
	jobs.Use(s.adminLimiter.Middleware, s.tokenGate.Middleware)
	jobs.HandleFunc("/create", s.handleJobCreate).Methods(http.MethodPost)
	jobs.HandleFunc("/activate", s.handleJobActivate).Methods(http.MethodPost)
	jobs.HandleFunc("/reindex", s.handleJobReindex).Methods(http.MethodPost)
	jobs.HandleFunc("/export", s.handleJobExport).Methods(http.MethodGet)

	private := r.PathPrefix(s.cfg.Gate.HomePath).Subrouter()
	private.Use(s.gate.Middleware)
	private.HandleFunc("", s.handleHome).Methods(http.MethodGet)
	private.HandleFunc("/", s.handleHome).Methods(http.MethodGet)

	admin := private.PathPrefix("/admin").Subrouter()
	admin.Use(s.gate.RequireRole(store.RoleAdmin))
	admin.HandleFunc("", s.handleAdminPage).Methods(http.MethodGet)

	return r
}

func (s *Site) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// audit writes an audit entry. Failures are logged and never surface.
func (s *Site) audit(r *http.Request, action store.AuditAction, email string, meta map[string]any) {
	entry := &store.AuditEntry{
		Action:    action,
		Email:     email,
		IP:        s.ips.ClientIP(r),
		UserAgent: r.UserAgent(),
		Meta:      meta,
		Timestamp: s.now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
	defer cancel()
	if err := s.store.LogAudit(ctx, entry); err != nil {
		s.logger.Warn("failed to write audit entry", "action", action, "error", err)
	}
}
