package middleware

import (
	"context"
	"net/http"
	"net/url"

	oneflowauth "github.com/oneflow-app/oneflowauth"
)

type sessionContextKey struct{}

// SessionFromContext returns the session injected by [Guard].
func SessionFromContext(ctx context.Context) (oneflowauth.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(oneflowauth.Session)
	return sess, ok
}

// Guard gates a protected subtree on session presence. A visitor with a
// session passes through with the session in the request context; an
// anonymous visitor is redirected to loginPath carrying the attempted URL in
// a "redirect" query parameter so the entry point can resume navigation
// after login. Resuming is best-effort; it is a convenience, not a
// correctness requirement.
func Guard(store *oneflowauth.Store, loginPath string) func(http.Handler) http.Handler {
	if loginPath == "" {
		loginPath = "/"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := store.CurrentSession()
			if !ok {
				http.Redirect(w, r, loginPath+"?redirect="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ResumeTarget extracts the post-login navigation hint left by [Guard] from
// the login entry point's request. Only same-origin absolute paths are
// honored; anything else falls back to fallback.
func ResumeTarget(r *http.Request, fallback string) string {
	target := r.URL.Query().Get("redirect")
	if target == "" || target[0] != '/' {
		return fallback
	}
	if len(target) > 1 && target[1] == '/' {
		// Protocol-relative URLs escape the origin.
		return fallback
	}
	return target
}
