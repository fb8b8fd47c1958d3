// ABOUTME: Gateway orchestrator that wires the store, validator and site into one HTTP server
// ABOUTME: Manages listener setup, readiness and graceful shutdown of every component

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/execpartners/ep-private/internal/auth"
	"github.com/execpartners/ep-private/internal/config"
	"github.com/execpartners/ep-private/internal/site"
	"github.com/execpartners/ep-private/internal/store"
)

const readHeaderTimeout = 10 * time.Second

// Gateway owns the ep-private server components.
type Gateway struct {
	config     *config.Config
	store      *store.SQLiteStore
	validator  *auth.Validator
	site       *site.Site
	httpServer *http.Server
	logger     *slog.Logger
}

// New opens the store and builds the HTTP server described by cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	signer, err := auth.NewLinkSigner([]byte(cfg.Auth.LinkSecret))
	if err != nil {
		return nil, fmt.Errorf("creating link signer: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	validator := auth.NewValidator(st, auth.ValidatorConfig{
		LookupTimeout: cfg.Auth.LookupTimeout,
		TouchTimeout:  cfg.Auth.TouchTimeout,
		AwaitTouch:    cfg.Auth.AwaitLastSeen,
	})

	s := site.New(st, validator, signer, siteConfig(cfg))

	gw := &Gateway{
		config:    cfg,
		store:     st,
		validator: validator,
		site:      s,
		logger:    logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health/ready", gw.handleReady)
	mux.Handle("/", s.Handler())

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	return gw, nil
}

// siteConfig maps the file configuration onto the site's options.
func siteConfig(cfg *config.Config) site.Config {
	return site.Config{
		Gate: auth.GateConfig{
			CookieName: cfg.Auth.CookieName,
			AuthPath:   cfg.Auth.AuthPath,
			HomePath:   cfg.Auth.HomePath,
		},
		Cookie: auth.CookieConfig{
			Name:   cfg.Auth.CookieName,
			Domain: cfg.Auth.CookieDomain,
			Secure: cfg.Auth.CookieSecure,
		},
		BaseURL:        cfg.Server.BaseURL,
		SessionTTL:     cfg.Auth.SessionTTL,
		LinkTTL:        cfg.Auth.LinkTTL,
		AdminToken:     cfg.Auth.AdminToken,
		AdminPerMinute: cfg.RateLimit.AdminPerMinute,
		AuthPerMinute:  cfg.RateLimit.AuthPerMinute,
		Burst:          cfg.RateLimit.Burst,
		TrustedProxies: cfg.Server.TrustedProxies,
	}
}

// Store returns the underlying store, for the CLI's maintenance commands.
func (g *Gateway) Store() *store.SQLiteStore {
	return g.store
}

// Site returns the HTTP site.
func (g *Gateway) Site() *site.Site {
	return g.site
}

// Handler returns the root handler served by Run.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run listens on the configured address and blocks until ctx is canceled or
// the server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = g.Shutdown(context.Background())
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "base_url", g.config.Server.BaseURL)
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since the caller's is already done.
func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server, waits for pending last_seen_at writes and
// closes the store, in that order.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	g.site.Close()
	errs = appendCloseError(errs, "validator close", g.validator.Close())
	errs = appendCloseError(errs, "store close", g.store.Close())

	return errors.Join(errs...)
}

// handleReady answers 200 when the database responds.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
