package oneflowauth

import "errors"

var (
	// ErrInvalidCredentials is returned by Login when the remote
	// authentication endpoint rejects the email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCorruptSessionData marks a persisted identity payload that failed to
	// parse. Hydrate recovers from it internally and never returns it; it is
	// carried on the EventHydrateCorrupt session event for observers.
	ErrCorruptSessionData = errors.New("corrupt session data")
	// ErrNetworkFailure is returned when a transport-level failure prevents a
	// remote call from completing. Session state is left untouched.
	ErrNetworkFailure = errors.New("network failure")
	// ErrRequestRejected is returned when the remote API answers a mutation
	// with a non-success status other than a credential rejection.
	ErrRequestRejected = errors.New("request rejected by remote api")
	// ErrNoSession is returned by operations that require an authenticated
	// session when none exists.
	ErrNoSession = errors.New("no active session")
	// ErrInvalidIdentity marks an identity payload from the remote API that
	// does not satisfy the Identity contract.
	ErrInvalidIdentity = errors.New("invalid identity payload")
	// ErrStoreNotReady is returned when a Store method is called before the
	// builder finished wiring its dependencies.
	ErrStoreNotReady = errors.New("session store not initialized")
)
