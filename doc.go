// Package oneflowauth holds the authenticated session for the OneFlow
// dashboard: the bearer token and the user's identity record, mirrored to a
// Redis-backed durable store and published to subscribers on every transition.
//
// The package is an in-process library, not a service. UI layers construct one
// [Store] per process through [Builder.Build], call [Store.Hydrate] once at
// startup, and route every mutation (login, logout, profile edits) through the
// store so that memory, the durable mirror, and subscribers never disagree.
//
// # Architecture boundaries
//
// oneflowauth is the public surface. It exposes [Store], [Builder], [Config],
// sentinel errors, and value types (Session, Identity, SessionEvent). The
// durable mirror lives in the storage subpackage and owns its two keys
// privately; the remote REST contract lives in apiclient; the route guard
// lives in middleware.
//
// # What this package must NOT do
//
//   - Inspect the bearer token. It is opaque; its 30-day lifetime is enforced
//     by the storage layer's TTL, never by decoding the credential.
//   - Surface corrupt persisted state as a failure. Hydration self-repairs by
//     clearing both mirror keys and reporting a clean unauthenticated state.
//   - Leave memory and the mirror observably disagreeing after any operation.
//
// # Concurrency contract
//
// Store methods are safe to call from multiple goroutines. No lock is held
// across the network round-trips inside Login and UpdateIdentity: concurrent
// mutations resolve last-write-wins, matching the fire-and-forget UI caller
// pattern this library serves.
package oneflowauth
