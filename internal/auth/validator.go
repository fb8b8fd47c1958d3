// ABOUTME: Session validator deciding whether a session hash currently grants access
// ABOUTME: One read per validation, fail closed on errors, best-effort last_seen_at touch

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/execpartners/ep-private/internal/store"
)

// Authorization errors
var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("forbidden")
	ErrServerMisconfigured = errors.New("server auth not configured")
	ErrStoreUnavailable    = errors.New("session store unavailable")
)

// Reasons reported with an Unauthenticated result. They double as the
// error codes of JSON API responses.
const (
	ReasonNoSession        = "no_session"
	ReasonInvalidSession   = "invalid_session"
	ReasonStoreUnavailable = "store_unavailable"
)

// SessionLookup is the datastore surface the validator needs.
type SessionLookup interface {
	GetActivePrivateSession(ctx context.Context, hash string, now time.Time) (*store.PrivateSession, error)
	TouchPrivateSession(ctx context.Context, id string, seen time.Time) error
}

// State is the outcome of validating a session hash.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
)

func (s State) String() string {
	if s == StateAuthenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Result is the validator's answer for one request.
type Result struct {
	State    State
	Reason   string    // set when unauthenticated
	Identity *Identity // set when authenticated
}

// Authenticated reports whether the result grants access.
func (r Result) Authenticated() bool {
	return r.State == StateAuthenticated && r.Identity != nil
}

// Err returns nil for an authenticated result and an error wrapping
// ErrUnauthenticated otherwise. A failed read also wraps ErrStoreUnavailable.
func (r Result) Err() error {
	if r.Authenticated() {
		return nil
	}
	if r.Reason == ReasonStoreUnavailable {
		return fmt.Errorf("%w: %w", ErrUnauthenticated, ErrStoreUnavailable)
	}
	return ErrUnauthenticated
}

func unauthenticated(reason string) Result {
	return Result{State: StateUnauthenticated, Reason: reason}
}

// ValidatorConfig tunes a Validator. Zero values select the defaults.
type ValidatorConfig struct {
	// LookupTimeout bounds the session read. A timeout fails closed.
	LookupTimeout time.Duration
	// TouchTimeout bounds the last_seen_at write.
	TouchTimeout time.Duration
	// AwaitTouch makes Validate wait for the last_seen_at write instead of
	// running it in the background. Its error is discarded either way.
	AwaitTouch bool
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

const (
	defaultLookupTimeout = 3 * time.Second
	defaultTouchTimeout  = 2 * time.Second
)

// Validator checks session hashes against the session store.
// It holds no per-session state: every call re-reads the store.
type Validator struct {
	sessions      SessionLookup
	lookupTimeout time.Duration
	touchTimeout  time.Duration
	awaitTouch    bool
	now           func() time.Time
	logger        *slog.Logger

	touches conc.WaitGroup
}

// NewValidator creates a Validator reading from sessions.
func NewValidator(sessions SessionLookup, cfg ValidatorConfig) *Validator {
	v := &Validator{
		sessions:      sessions,
		lookupTimeout: cfg.LookupTimeout,
		touchTimeout:  cfg.TouchTimeout,
		awaitTouch:    cfg.AwaitTouch,
		now:           cfg.Now,
		logger:        slog.Default().With("component", "validator"),
	}
	if v.lookupTimeout <= 0 {
		v.lookupTimeout = defaultLookupTimeout
	}
	if v.touchTimeout <= 0 {
		v.touchTimeout = defaultTouchTimeout
	}
	if v.now == nil {
		v.now = time.Now
	}
	return v
}

// Validate decides whether sessionHash grants access right now.
// An empty hash is treated as absent and never reaches the store.
func (v *Validator) Validate(ctx context.Context, sessionHash string) Result {
	if sessionHash == "" {
		return unauthenticated(ReasonNoSession)
	}

	now := v.now()

	lookupCtx, cancel := context.WithTimeout(ctx, v.lookupTimeout)
	defer cancel()

	session, err := v.sessions.GetActivePrivateSession(lookupCtx, sessionHash, now)
	if errors.Is(err, store.ErrPrivateSessionNotFound) {
		return unauthenticated(ReasonInvalidSession)
	}
	if err != nil {
		v.logger.Warn("session lookup failed", "error", err)
		return unauthenticated(ReasonStoreUnavailable)
	}
	// The store already filters, but never grant on a row that is invalid at now.
	if session == nil || !session.ValidAt(now) {
		return unauthenticated(ReasonInvalidSession)
	}

	v.touch(ctx, session.ID, now)

	return Result{
		State: StateAuthenticated,
		Identity: &Identity{
			SessionID:   session.ID,
			SessionHash: session.SessionHash,
			Email:       store.NormalizeEmail(session.Email),
			Role:        session.Role,
		},
	}
}

// touch records last_seen_at. Failures and panics are logged and dropped;
// the caller never learns the outcome.
func (v *Validator) touch(ctx context.Context, sessionID string, seen time.Time) {
	// Detach from the request so the write survives the response being sent.
	base := context.WithoutCancel(ctx)

	run := func() {
		touchCtx, cancel := context.WithTimeout(base, v.touchTimeout)
		defer cancel()
		if err := v.sessions.TouchPrivateSession(touchCtx, sessionID, seen); err != nil {
			v.logger.Debug("last_seen_at update failed", "session_id", sessionID, "error", err)
		}
	}

	if v.awaitTouch {
		var pc panics.Catcher
		pc.Try(run)
		if r := pc.Recovered(); r != nil {
			v.logger.Warn("last_seen_at update panicked", "session_id", sessionID, "panic", r.Value)
		}
		return
	}

	v.touches.Go(run)
}

// Wait blocks until every background last_seen_at write has finished.
func (v *Validator) Wait() {
	if r := v.touches.WaitAndRecover(); r != nil {
		v.logger.Warn("last_seen_at update panicked", "panic", r.Value)
	}
}

// Close waits for background work. The session store is owned by the caller.
func (v *Validator) Close() error {
	v.Wait()
	return nil
}
