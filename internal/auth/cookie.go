// ABOUTME: Session cookie helpers and session hash generation
// ABOUTME: Cookies are site-wide, SameSite=Lax, HttpOnly and expire with the session row

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

// CookieConfig describes how the session cookie is written.
type CookieConfig struct {
	Name   string
	Domain string
	Secure bool // always set when the request arrived over TLS
}

// NewSessionHash returns 32 random bytes, hex encoded.
func NewSessionHash() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session hash: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// SetSessionCookie writes the session cookie, expiring with the session.
// Max-Age and Expires are both measured from now.
func SetSessionCookie(w http.ResponseWriter, r *http.Request, cfg CookieConfig, hash string, now, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(now).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName(cfg),
		Value:    hash,
		Path:     "/",
		Domain:   cfg.Domain,
		Expires:  expiresAt.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.Secure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie deletes the session cookie.
func ClearSessionCookie(w http.ResponseWriter, r *http.Request, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName(cfg),
		Value:    "",
		Path:     "/",
		Domain:   cfg.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func cookieName(cfg CookieConfig) string {
	if cfg.Name == "" {
		return DefaultCookieName
	}
	return cfg.Name
}
