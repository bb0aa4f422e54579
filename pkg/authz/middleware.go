package authz

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// RequirePermission returns middleware that enforces a specific resource/verb
// permission check against the identity set by IdentityMiddleware.
func RequirePermission(authorizer Authorizer, resource, verb string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := IdentityFromContext(r.Context())

			allowed, err := authorizer.Authorize(r.Context(), AuthzRequest{
				User:     id.User,
				Groups:   id.Groups,
				Resource: resource,
				Verb:     verb,
			})
			if err != nil {
				writeDenied(w, http.StatusInternalServerError, "internal_error", "authorization check failed")
				return
			}
			if !allowed {
				writeDenied(w, http.StatusForbidden, "forbidden",
					fmt.Sprintf("insufficient permissions for %s/%s", resource, verb))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Wrap applies RequirePermission to h when authorizer is non-nil.
func Wrap(authorizer Authorizer, resource, verb string, h http.HandlerFunc) http.HandlerFunc {
	if authorizer == nil {
		return h
	}
	return RequirePermission(authorizer, resource, verb)(h).ServeHTTP
}

func writeDenied(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	})
}
