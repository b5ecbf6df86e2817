// Package identity resolves the user and conversation thread a request acts for.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
)

const (
	UserHeaderName   = "X-FretCoach-User"
	ThreadHeaderName = "X-FretCoach-Thread"
	DefaultUserID    = "default_user"
)

type contextKey int

const (
	userIDKey contextKey = iota
	threadIDKey
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,128}$`)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return DefaultUserID
}

// ThreadIDFromContext extracts the thread ID from the request context.
// It is empty when the request named none.
func ThreadIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(threadIDKey).(string); ok {
		return v
	}
	return ""
}

// WithIdentity returns ctx carrying the given user and thread IDs.
func WithIdentity(ctx context.Context, userID, threadID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, threadIDKey, threadID)
}

func sanitize(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" || !idPattern.MatchString(id) {
		return "", false
	}
	return id, true
}

func fromRequest(r *http.Request, header, query string) string {
	v := r.Header.Get(header)
	if v == "" {
		v = r.URL.Query().Get(query)
	}
	id, _ := sanitize(v)
	return id
}

// ResolveUserID picks the explicit ID when set, else the one from ctx.
func ResolveUserID(ctx context.Context, explicit string) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	return UserIDFromContext(ctx)
}

// ResolveThreadID picks the explicit ID when set, else the one from ctx.
func ResolveThreadID(ctx context.Context, explicit string) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	return ThreadIDFromContext(ctx)
}

// Middleware injects the user ID and thread ID named by the request headers
// or query parameters. Missing or malformed user IDs fall back to
// defaultUserID.
func Middleware(defaultUserID string) func(http.Handler) http.Handler {
	if defaultUserID == "" {
		defaultUserID = DefaultUserID
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := fromRequest(r, UserHeaderName, "user_id")
			if userID == "" {
				userID = defaultUserID
			}
			threadID := fromRequest(r, ThreadHeaderName, "thread_id")
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), userID, threadID)))
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
