// ABOUTME: Tests for Identity context propagation and role helpers
// ABOUTME: Covers WithIdentity/FromContext/MustFromContext and admin detection

package auth

import (
	"context"
	"testing"
)

func TestIdentity_IsAdmin(t *testing.T) {
	tests := []struct {
		name string
		id   *Identity
		want bool
	}{
		{name: "admin", id: &Identity{Role: "admin"}, want: true},
		{name: "member", id: &Identity{Role: "member"}, want: false},
		{name: "unknown role", id: &Identity{Role: "owner"}, want: false},
		{name: "case differs", id: &Identity{Role: "Admin"}, want: false},
		{name: "empty role", id: &Identity{}, want: false},
		{name: "nil identity", id: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.IsAdmin(); got != tt.want {
				t.Errorf("IsAdmin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromContext_Present(t *testing.T) {
	id := &Identity{SessionID: "s-1", Email: "a@example.com", Role: "member"}
	ctx := WithIdentity(context.Background(), id)

	got := FromContext(ctx)
	if got == nil {
		t.Fatal("FromContext returned nil")
	}
	if got.Email != "a@example.com" || got.SessionID != "s-1" {
		t.Errorf("FromContext() = %+v, want %+v", got, id)
	}
}

func TestFromContext_Missing(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext() = %+v, want nil", got)
	}
}

func TestMustFromContext_Present(t *testing.T) {
	ctx := WithIdentity(context.Background(), &Identity{Email: "a@example.com"})

	if got := MustFromContext(ctx); got.Email != "a@example.com" {
		t.Errorf("MustFromContext().Email = %q", got.Email)
	}
}

func TestMustFromContext_Missing(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustFromContext should panic when identity is missing")
		}
	}()
	MustFromContext(context.Background())
}
