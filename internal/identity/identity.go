// Package identity talks to the identity provider that owns user accounts.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// User is an account as known to the identity provider.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty"`
}

// Directory lists, resolves and deletes accounts.
type Directory interface {
	ListUsers(ctx context.Context) ([]User, error)
	// GetUsers resolves ids to users; unknown ids are omitted from the result.
	// When only some lookups fail the resolved users are returned together
	// with a *LookupError naming the rest.
	GetUsers(ctx context.Context, ids []string) (map[string]User, error)
	DeleteUser(ctx context.Context, id string) error
}

// LookupError lists the ids whose lookup failed while others resolved.
type LookupError struct {
	Failed map[string]error
}

func (e *LookupError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e.Failed[id]))
	}
	return "lookup failed for " + strings.Join(parts, "; ")
}

func (e *LookupError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}

// FailedIDs returns the ids a GetUsers error left unresolved. A plain error
// means none of ids resolved.
func FailedIDs(err error, ids []string) []string {
	if err == nil {
		return nil
	}
	var le *LookupError
	if !errors.As(err, &le) {
		return ids
	}
	out := make([]string, 0, len(le.Failed))
	for _, id := range ids {
		if _, ok := le.Failed[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
