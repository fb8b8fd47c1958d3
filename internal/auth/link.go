// ABOUTME: Signed magic-link tokens for private-area sign-in
// ABOUTME: HS256 JWTs carrying the email as sub and a jti recorded for single use

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the minimum length of the link signing secret in bytes.
const MinSecretLength = 32

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrWeakSecret   = fmt.Errorf("secret must be at least %d bytes", MinSecretLength)
)

// LinkClaims are the verified contents of a magic-link token.
type LinkClaims struct {
	Email     string
	JTI       string
	ExpiresAt time.Time
}

// LinkSigner issues and verifies magic-link tokens.
type LinkSigner struct {
	secret []byte
	now    func() time.Time
}

// NewLinkSigner creates a signer with the given secret.
func NewLinkSigner(secret []byte) (*LinkSigner, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	return &LinkSigner{secret: secret, now: time.Now}, nil
}

// Generate creates a token for email that expires after ttl.
func (s *LinkSigner) Generate(email string, ttl time.Duration) (string, LinkClaims, error) {
	now := s.now()
	claims := LinkClaims{
		Email:     email,
		JTI:       uuid.New().String(),
		ExpiresAt: now.Add(ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": claims.Email,
		"jti": claims.JTI,
		"iat": now.Unix(),
		"exp": claims.ExpiresAt.Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", LinkClaims{}, fmt.Errorf("signing link token: %w", err)
	}
	return signed, claims, nil
}

// Verify validates the signature and expiry and returns the claims.
func (s *LinkSigner) Verify(tokenString string) (LinkClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return LinkClaims{}, ErrExpiredToken
		}
		return LinkClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return LinkClaims{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return LinkClaims{}, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return LinkClaims{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	jti, ok := claims["jti"].(string)
	if !ok || jti == "" {
		return LinkClaims{}, fmt.Errorf("%w: jti", ErrMissingClaim)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return LinkClaims{}, fmt.Errorf("%w: exp", ErrMissingClaim)
	}

	return LinkClaims{Email: sub, JTI: jti, ExpiresAt: exp.Time}, nil
}
