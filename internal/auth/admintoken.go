// ABOUTME: Admin token gate for machine-to-machine admin endpoints
// ABOUTME: Compares a bearer, header or JSON body token with the configured secret

package auth

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// AdminTokenHeader is the custom header carrying the admin token.
const AdminTokenHeader = "X-Admin-Token"

// maxTokenBodyBytes bounds how much of a body is buffered to look for a token.
const maxTokenBodyBytes = 1 << 20

// Decision is the result of an admin token check.
type Decision struct {
	OK      bool
	Status  int
	Message string
}

// Err maps a failed decision to ErrServerMisconfigured or ErrUnauthenticated.
func (d Decision) Err() error {
	switch {
	case d.OK:
		return nil
	case d.Status == http.StatusInternalServerError:
		return ErrServerMisconfigured
	default:
		return ErrUnauthenticated
	}
}

var (
	decisionOK            = Decision{OK: true, Status: http.StatusOK}
	decisionMisconfigured = Decision{Status: http.StatusInternalServerError, Message: "server auth not configured"}
	decisionUnauthorized  = Decision{Status: http.StatusUnauthorized, Message: "unauthorized"}
)

// AdminTokenGate authorizes requests carrying the server's admin token.
// It is stateless and never touches the datastore.
type AdminTokenGate struct {
	secret []byte
	logger *slog.Logger
}

// NewAdminTokenGate creates a gate for secret. An empty secret is allowed:
// every request is then rejected as a server misconfiguration.
func NewAdminTokenGate(secret string) *AdminTokenGate {
	return &AdminTokenGate{
		secret: []byte(secret),
		logger: slog.Default().With("component", "admin-token"),
	}
}

// Configured reports whether a secret is set.
func (g *AdminTokenGate) Configured() bool {
	return len(g.secret) > 0
}

// AssertAdmin checks the request's token. When the body is inspected it is
// restored, so handlers can still read it in full.
func (g *AdminTokenGate) AssertAdmin(r *http.Request) Decision {
	if !g.Configured() {
		return decisionMisconfigured
	}

	token := headerToken(r)
	if token == "" {
		token = bodyToken(r)
	}

	if token == "" || subtle.ConstantTimeCompare([]byte(token), g.secret) != 1 {
		return decisionUnauthorized
	}
	return decisionOK
}

// Middleware rejects requests that fail AssertAdmin with a JSON error.
func (g *AdminTokenGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.AssertAdmin(r)
		if !d.OK {
			if err := d.Err(); errors.Is(err, ErrServerMisconfigured) {
				g.logger.Error("admin token requested but none is configured", "path", r.URL.Path, "error", err)
			} else {
				g.logger.Warn("admin token rejected", "path", r.URL.Path, "remote", r.RemoteAddr, "error", err)
			}
			writeAPIError(w, d.Status, d.Message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// headerToken returns the bearer token, falling back to the custom header.
func headerToken(r *http.Request) string {
	if token, errMsg := extractBearerToken(r.Header.Get("Authorization")); errMsg == "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get(AdminTokenHeader))
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(authHeader[7:])
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// bodyToken reads the "token" field of a JSON body. The consumed bytes are
// put back in front of whatever remains unread.
func bodyToken(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxTokenBodyBytes))
	orig := r.Body
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(buf), orig), Closer: orig}
	if err != nil || len(buf) == 0 {
		return ""
	}
	if int64(len(buf)) < maxTokenBodyBytes {
		// The whole body is buffered, so it can be replayed.
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(buf)), nil
		}
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(buf, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Token)
}

type readCloser struct {
	io.Reader
	io.Closer
}
