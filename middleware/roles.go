package middleware

import (
	"net/http"

	oneflowauth "github.com/oneflow-app/oneflowauth"
)

// RequireRole gates a subtree on the session's organization role. It must
// sit behind [Guard]: a request without a context session is rejected
// outright rather than redirected.
func RequireRole(roles ...oneflowauth.Role) func(http.Handler) http.Handler {
	allowed := make(map[oneflowauth.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[sess.Identity.Role]; !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
