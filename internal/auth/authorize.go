package auth

import (
	"context"
	"fmt"
	"strings"
)

// Role is an application role stored in user_roles.
type Role string

const (
	RoleAdmin           Role = "admin"
	RoleApprover        Role = "approver"
	RoleViewer          Role = "viewer"
	RoleAPIConfigurator Role = "api_configurator"
	RoleDataSpaceOwner  Role = "data_space_owner"
)

var knownRoles = map[Role]struct{}{
	RoleAdmin:           {},
	RoleApprover:        {},
	RoleViewer:          {},
	RoleAPIConfigurator: {},
	RoleDataSpaceOwner:  {},
}

// ParseRole normalises s and rejects roles outside the enum.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownRoles[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r belongs to the enum.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

// HasAnyRole reports whether roles contains at least one of want.
func HasAnyRole(roles []Role, want ...Role) bool {
	for _, have := range roles {
		for _, w := range want {
			if have == w {
				return true
			}
		}
	}
	return false
}

// RoleSource resolves the application roles held by a user.
type RoleSource interface {
	RolesForUser(ctx context.Context, userID string) ([]Role, error)
}

// Authorizer checks application roles against a RoleSource.
type Authorizer struct {
	roles RoleSource
}

func NewAuthorizer(roles RoleSource) *Authorizer {
	return &Authorizer{roles: roles}
}

// RequireAnyRole fails with ErrForbidden unless userID holds at least one of want.
func (a *Authorizer) RequireAnyRole(ctx context.Context, userID string, want ...Role) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUnauthorized
	}
	roles, err := a.roles.RolesForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load roles: %w", err)
	}
	if !HasAnyRole(roles, want...) {
		return ErrForbidden
	}
	return nil
}
