package middleware

import (
	"context"
	"net/http"
	"strings"
)

type ownerContextKey struct{}

var OwnerKey = ownerContextKey{}

// DefaultOwner is used when no identity header is present. The engine runs
// behind a gateway that authenticates users; a bare deployment behaves as a
// single-user instance.
const DefaultOwner = "local"

// Owner stores the caller's identity from the X-User-ID header in the
// request context.
func Owner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if owner == "" {
			owner = DefaultOwner
		}
		ctx := context.WithValue(r.Context(), OwnerKey, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func OwnerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(OwnerKey).(string); ok {
		return v
	}
	return DefaultOwner
}
