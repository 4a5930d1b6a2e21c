package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"procuredata.io/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth requires a valid bearer token and stores the principal in the context.
func (a *API) withAuth(fail errorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.deps.Verifier == nil {
				fail(w, r, http.StatusInternalServerError, "authentication is not configured")
				return
			}
			token, err := extractBearerToken(r.Header.Get(authHeader))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="procuredata"`)
				fail(w, r, http.StatusUnauthorized, err.Error())
				return
			}
			principal, err := a.deps.Verifier.Verify(token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="procuredata", error="invalid_token"`)
				fail(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// callerID returns the authenticated user id. withAuth guarantees it on protected routes.
func callerID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
