package auth

import (
	"context"
	"errors"
	"testing"
)

type stubRoleSource struct {
	roles map[string][]Role
	err   error
}

func (s stubRoleSource) RolesForUser(_ context.Context, userID string) ([]Role, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.roles[userID], nil
}

func TestRequireAnyRole(t *testing.T) {
	az := NewAuthorizer(stubRoleSource{roles: map[string][]Role{
		"owner":  {RoleDataSpaceOwner},
		"admin":  {RoleViewer, RoleAdmin},
		"viewer": {RoleViewer},
	}})
	ctx := context.Background()

	for _, user := range []string{"owner", "admin"} {
		if err := az.RequireAnyRole(ctx, user, RoleDataSpaceOwner, RoleAdmin); err != nil {
			t.Fatalf("%s: expected access, got %v", user, err)
		}
	}
	if err := az.RequireAnyRole(ctx, "viewer", RoleDataSpaceOwner, RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := az.RequireAnyRole(ctx, "nobody", RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for user without roles, got %v", err)
	}
	if err := az.RequireAnyRole(ctx, " ", RoleAdmin); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for empty user, got %v", err)
	}
}

func TestRequireAnyRolePropagatesStoreError(t *testing.T) {
	boom := errors.New("db down")
	az := NewAuthorizer(stubRoleSource{err: boom})
	err := az.RequireAnyRole(context.Background(), "u", RoleAdmin)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if errors.Is(err, ErrForbidden) {
		t.Fatal("store failure must not look like a denial")
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Data_Space_Owner ")
	if err != nil || r != RoleDataSpaceOwner {
		t.Fatalf("unexpected parse result %q %v", r, err)
	}
	if _, err := ParseRole("superuser"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	ctx := ContextWithPrincipal(context.Background(), Principal{UserID: "u-1", Email: "u@x.io"})
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "u-1" {
		t.Fatalf("unexpected user id %q %v", id, ok)
	}
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Fatal("expected no user in empty context")
	}
}
