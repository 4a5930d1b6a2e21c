package obs

import (
	"strings"

	"github.com/google/uuid"

	"procuredata.io/internal/ids"
)

// CanonicalPath collapses identifier segments so metric labels stay bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" || p == "/" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		if isIdentifier(part) {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

func isIdentifier(seg string) bool {
	if ids.Valid(seg) {
		return true
	}
	if len(seg) == 36 {
		if _, err := uuid.Parse(seg); err == nil {
			return true
		}
	}
	return false
}
