// ABOUTME: Issues single-use magic sign-in links backed by the magic_links table
// ABOUTME: Shared by the admin API, self-service requests and the issue-link command

package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/execpartners/ep-private/internal/auth"
	"github.com/execpartners/ep-private/internal/store"
)

// ErrInvalidEmail is returned when a link is requested for a malformed address.
var ErrInvalidEmail = errors.New("invalid email address")

// IssuedLink is a freshly minted sign-in link.
type IssuedLink struct {
	ID        string
	Email     string
	URL       string
	Next      string
	ExpiresAt time.Time
}

// LinkSender delivers an issued link to its recipient.
type LinkSender interface {
	SendLink(ctx context.Context, link *IssuedLink) error
}

// LogLinkSender writes each link to the log at info level.
type LogLinkSender struct {
	Logger *slog.Logger
}

// SendLink logs the link.
func (l LogLinkSender) SendLink(_ context.Context, link *IssuedLink) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("magic link issued", "email", link.Email, "url", link.URL, "expires_at", link.ExpiresAt)
	return nil
}

// LinkIssuer signs link tokens and records their IDs so each can be used once.
type LinkIssuer struct {
	links    store.LinkStore
	signer   *auth.LinkSigner
	baseURL  string
	authPath string
	ttl      time.Duration
	now      func() time.Time
}

// NewLinkIssuer creates an issuer producing links under baseURL+authPath+"/verify".
func NewLinkIssuer(links store.LinkStore, signer *auth.LinkSigner, baseURL, authPath string, ttl time.Duration) *LinkIssuer {
	if authPath == "" {
		authPath = auth.DefaultAuthPath
	}
	return &LinkIssuer{
		links:    links,
		signer:   signer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		authPath: authPath,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Issue creates a link for email. An unsafe next is dropped.
func (i *LinkIssuer) Issue(ctx context.Context, email, next string) (*IssuedLink, error) {
	email = store.NormalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, ErrInvalidEmail
	}

	token, claims, err := i.signer.Generate(email, i.ttl)
	if err != nil {
		return nil, err
	}

	link := &store.MagicLink{
		ID:        claims.JTI,
		Email:     email,
		Next:      auth.SafeNext(next),
		CreatedAt: i.now(),
		ExpiresAt: claims.ExpiresAt,
	}
	if err := i.links.CreateMagicLink(ctx, link); err != nil {
		return nil, fmt.Errorf("recording magic link: %w", err)
	}

	q := url.Values{}
	q.Set("token", token)
	if link.Next != "" {
		q.Set("next", link.Next)
	}

	return &IssuedLink{
		ID:        link.ID,
		Email:     email,
		URL:       i.baseURL + i.authPath + "/verify?" + q.Encode(),
		Next:      link.Next,
		ExpiresAt: link.ExpiresAt,
	}, nil
}
