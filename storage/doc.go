// Package storage is the durable mirror of the in-memory session: a
// Redis-backed two-entry store holding the bearer token and the serialized
// identity under keys this package alone can address.
//
// The mirror is not a second source of truth. The session store's in-memory
// copy is authoritative; this package only guarantees that the two halves are
// written together, cleared together, and expire together under the
// storage-enforced TTL.
package storage
