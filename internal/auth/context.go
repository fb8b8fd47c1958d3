// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithIdentity/FromContext for propagating the session identity via context

package auth

import (
	"context"

	"github.com/execpartners/ep-private/internal/store"
)

// Identity is the authenticated private-area visitor bound to a session.
// It is populated by the private gate and read by handlers.
type Identity struct {
	SessionID   string
	SessionHash string
	Email       string
	Role        string
}

// IsAdmin returns true if the identity has the admin role.
// Unknown roles are never admin.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == store.RoleAdmin
}

// HasRole reports whether the identity has exactly the given role.
func (i *Identity) HasRole(role string) bool {
	return i != nil && i.Role == role
}

// identityContextKey is the key type for storing Identity in context.Context.
type identityContextKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if not present.
func FromContext(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok {
		return nil
	}
	return id
}

// MustFromContext retrieves the Identity from the context, panicking if not present.
func MustFromContext(ctx context.Context) *Identity {
	id := FromContext(ctx)
	if id == nil {
		panic("auth: Identity not found in context")
	}
	return id
}
