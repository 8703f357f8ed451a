// Package identity derives session keys from the document location and
// detects session switches.
package identity

import (
	"strings"

	"github.com/google/uuid"
)

// ResolveKey extracts the session segment from a path like "/c/abc123".
// Returns false for a missing prefix, a bare prefix, or an empty segment.
func ResolveKey(path, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(path, prefix)
	if !ok {
		return "", false
	}
	// Only the first segment identifies the session.
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}

// TransientKey mints a key for sessions whose location does not resolve,
// so tracking can start without failing session initialization.
func TransientKey() string {
	return "session-" + uuid.NewString()
}
