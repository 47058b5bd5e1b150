// Package identity carries the caller-supplied user id through request contexts.
// There is no authentication: the id only scopes sessions and tasks.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
)

// UserHeaderName is the request header naming the calling user.
const UserHeaderName = "X-User-ID"

type contextKey int

const userIDKey contextKey = iota

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,128}$`)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Valid reports whether id is an acceptable user id.
func Valid(id string) bool {
	return userIDPattern.MatchString(id)
}

// Resolve picks the user id for a request: the header value from the context
// when present, otherwise the id sent in the body.
func Resolve(ctx context.Context, bodyUserID string) string {
	if id := UserIDFromContext(ctx); id != "" {
		return id
	}
	id := strings.TrimSpace(bodyUserID)
	if !Valid(id) {
		return ""
	}
	return id
}

// Middleware reads the X-User-ID header (or the user_id query parameter, for
// websocket clients that cannot set headers) into the request context.
// A malformed id is rejected; an absent one is left for the handler to resolve.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(UserHeaderName))
			if id == "" {
				id = strings.TrimSpace(r.URL.Query().Get("user_id"))
			}
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !Valid(id) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid X-User-ID header","code":"INVALID_REQUEST"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
