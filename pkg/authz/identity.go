package authz

import (
	"context"
	"net/http"
	"strings"
)

// Headers set by the authenticating proxy in front of the server.
const (
	UserHeader  = "X-Remote-User"
	GroupHeader = "X-Remote-Group"
)

type identityCtxKey struct{}

// Identity is the caller as asserted by the proxy. An empty User means the
// request carried no user; the override service rejects such callers for
// every mutation.
type Identity struct {
	User   string
	Groups []string
}

// Anonymous reports whether no user was asserted.
func (id Identity) Anonymous() bool { return id.User == "" }

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext returns the identity stored by IdentityMiddleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// ActorFromContext returns the acting user, or "" for anonymous requests.
func ActorFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.User
}

// ParseIdentity reads the proxy headers. The user is trimmed so it compares
// equal to the requested_by stored at creation. Groups may arrive as
// repeated headers or comma-separated values; duplicates are dropped.
func ParseIdentity(h http.Header) Identity {
	id := Identity{User: strings.TrimSpace(h.Get(UserHeader))}
	seen := make(map[string]struct{})
	for _, v := range h.Values(GroupHeader) {
		for _, g := range strings.Split(v, ",") {
			g = strings.TrimSpace(g)
			if g == "" {
				continue
			}
			if _, dup := seen[g]; dup {
				continue
			}
			seen[g] = struct{}{}
			id.Groups = append(id.Groups, g)
		}
	}
	return id
}

// IdentityMiddleware stores the proxy-asserted identity in the request context.
func IdentityMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ParseIdentity(r.Header))))
		})
	}
}
