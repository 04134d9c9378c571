// Package middleware exposes the HTTP route guards built on top of the
// oneflowauth session store.
//
// # Guards
//
//   - [Guard] — gates a protected subtree on session presence, redirecting
//     anonymous visitors to the login entry point with a resume hint.
//   - [RequireRole] — gates a subtree on the session's organization role
//     (e.g. presidency screens for PRESIDENTE and DIRETOR only).
//
// Each guard reads the store's current session and injects it into the
// request context for downstream handlers.
//
// # What this package must NOT do
//
//   - Mutate session state (guards only branch; the absence of a session is
//     an expected steady state for anonymous visitors, not an error).
//   - Talk to storage or the remote API (the store owns all I/O).
package middleware
