package oneflowauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/oneflow-app/oneflowauth/apiclient"
	"github.com/oneflow-app/oneflowauth/storage"
)

// Store is the process-wide holder of the current session. It owns the
// in-memory copy exclusively; the durable mirror is written best-effort
// alongside every mutation and the in-memory copy is the one handed to
// consumers.
//
// The store starts Unauthenticated. Hydrate moves it to Authenticated when a
// valid persisted session exists; Login and Logout transition it from UI
// events; UpdateIdentity keeps it Authenticated with a new payload. There is
// no terminal state — the store lives for the process lifetime, and Close
// only drains the event dispatcher.
type Store struct {
	config  Config
	mirror  *storage.Store
	api     *apiclient.Client
	events  *eventDispatcher
	metrics *Metrics

	mu      sync.RWMutex
	session *Session
}

// CurrentSession is the synchronous read of the in-memory state. The second
// return is false while unauthenticated.
func (s *Store) CurrentSession() (Session, bool) {
	if s == nil {
		return Session{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return Session{}, false
	}
	return *s.session, true
}

// Hydrate reconstructs the in-memory session from the durable mirror. It is
// called once at application start, before the route guard evaluates any
// navigation.
//
// Corrupt or half-present persisted state is a local self-repair, never a
// fault: both mirror keys are cleared, the store stays Unauthenticated, and
// Hydrate returns nil. Only a storage transport failure is returned, with
// state untouched.
func (s *Store) Hydrate(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}

	rec, err := s.mirror.Load(ctx)
	if err != nil {
		return err
	}

	if rec.Partial {
		s.selfHeal(ctx, fmt.Errorf("%w: partial mirror state", ErrCorruptSessionData))
		return nil
	}
	if !rec.Found {
		s.metrics.Inc(MetricHydrateEmpty)
		s.publish(ctx, SessionEvent{Type: EventHydrateEmpty})
		return nil
	}

	identity, err := DecodeIdentity(rec.IdentityJSON)
	if err != nil {
		s.selfHeal(ctx, err)
		return nil
	}

	sess := Session{Token: rec.Token, Identity: identity}
	s.setSession(sess)
	s.metrics.Inc(MetricHydrateSuccess)
	s.publish(ctx, SessionEvent{
		Type:   EventHydrated,
		UserID: identity.ID,
		Email:  identity.Email,
	})
	return nil
}

// Login exchanges credentials at the remote authentication endpoint and, on
// success, installs the new session in memory and in the mirror. On any
// failure the existing session is left untouched.
//
// Concurrent Login calls are not coalesced; each runs independently and the
// last one to resolve wins the in-memory state.
func (s *Store) Login(ctx context.Context, email, password string) error {
	if err := s.ready(); err != nil {
		return err
	}

	resp, err := s.api.Login(ctx, email, password)
	if err != nil {
		switch {
		case errors.Is(err, apiclient.ErrUnauthorized):
			s.metrics.Inc(MetricLoginFailure)
			return ErrInvalidCredentials
		case errors.Is(err, apiclient.ErrTransport):
			s.metrics.Inc(MetricLoginNetworkFailure)
			return fmt.Errorf("%w: %v", ErrNetworkFailure, err)
		default:
			s.metrics.Inc(MetricLoginFailure)
			return fmt.Errorf("%w: %v", ErrRequestRejected, err)
		}
	}

	identity, err := DecodeIdentity(resp.User)
	if err != nil {
		s.metrics.Inc(MetricLoginFailure)
		return err
	}

	sess := Session{Token: resp.Token, Identity: identity}
	s.setSession(sess)
	s.persistBestEffort(ctx, sess)
	s.metrics.Inc(MetricLoginSuccess)
	s.publish(ctx, SessionEvent{
		Type:   EventLoggedIn,
		UserID: identity.ID,
		Email:  identity.Email,
	})
	return nil
}

// Logout clears the session from both the mirror and memory unconditionally.
// It is idempotent and never fails: a mirror clear failure only degrades the
// mirror (the key pair expires on its own TTL) while memory is already clean.
func (s *Store) Logout(ctx context.Context) {
	if s == nil || s.mirror == nil {
		return
	}

	s.mu.Lock()
	prev := s.session
	s.session = nil
	s.mu.Unlock()

	if err := s.mirror.Clear(ctx); err != nil {
		s.degradeStorage(ctx, err)
	}

	if prev != nil {
		s.metrics.Inc(MetricLogout)
		s.publish(ctx, SessionEvent{
			Type:   EventLoggedOut,
			UserID: prev.Identity.ID,
			Email:  prev.Identity.Email,
		})
	}
}

// UpdateIdentity shallow-merges patch into the current identity: set fields
// overwrite, unset fields are preserved. newToken replaces the stored token
// when non-empty — required when the email changed, since the remote API
// rotates the credential on email change.
//
// With no current session the call is a silent no-op; the caller is
// responsible for invoking it only while authenticated.
func (s *Store) UpdateIdentity(ctx context.Context, patch IdentityPatch, newToken string) error {
	if err := s.ready(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return nil
	}
	merged := patch.ApplyTo(s.session.Identity)
	if err := merged.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	token := s.session.Token
	if newToken != "" {
		token = newToken
	}
	sess := Session{Token: token, Identity: merged}
	s.session = &sess
	s.mu.Unlock()

	s.persistBestEffort(ctx, sess)
	s.metrics.Inc(MetricIdentityUpdated)
	if newToken != "" {
		s.metrics.Inc(MetricTokenRotated)
		s.publish(ctx, SessionEvent{
			Type:   EventTokenRotated,
			UserID: sess.Identity.ID,
			Email:  sess.Identity.Email,
		})
	}
	s.publish(ctx, SessionEvent{
		Type:   EventIdentityUpdated,
		UserID: sess.Identity.ID,
		Email:  sess.Identity.Email,
	})
	return nil
}

// UpdateProfile pushes a partial profile edit to the remote API and applies
// the result in place — no forced re-login. When the API rotated the token
// (email change) the new credential is installed alongside the merged
// identity.
func (s *Store) UpdateProfile(ctx context.Context, update apiclient.ProfileUpdate) error {
	if err := s.ready(); err != nil {
		return err
	}
	current, ok := s.CurrentSession()
	if !ok {
		return ErrNoSession
	}

	resp, err := s.api.UpdateProfile(ctx, current.Token, update)
	if err != nil {
		return s.mapAPIError(err)
	}

	if len(resp.User) > 0 {
		identity, err := DecodeIdentity(resp.User)
		if err != nil {
			return err
		}
		return s.UpdateIdentity(ctx, identityAsPatch(identity), resp.Token)
	}

	return s.UpdateIdentity(ctx, IdentityPatch{
		Name:      update.Name,
		LastName:  update.LastName,
		Email:     update.Email,
		CPF:       update.CPF,
		Telephone: update.Telephone,
	}, resp.Token)
}

// UpdateProfileImage uploads a new profile image and applies the returned
// identity in place.
func (s *Store) UpdateProfileImage(ctx context.Context, filename string, image io.Reader) error {
	if err := s.ready(); err != nil {
		return err
	}
	current, ok := s.CurrentSession()
	if !ok {
		return ErrNoSession
	}

	payload, err := s.api.UpdateProfileImage(ctx, current.Token, filename, image)
	if err != nil {
		return s.mapAPIError(err)
	}

	identity, err := DecodeIdentity(payload)
	if err != nil {
		return err
	}
	return s.UpdateIdentity(ctx, identityAsPatch(identity), "")
}

// UpdatePassword changes the authenticated user's password on the remote
// API. Session state is unaffected.
func (s *Store) UpdatePassword(ctx context.Context, current, next string) error {
	if err := s.ready(); err != nil {
		return err
	}
	sess, ok := s.CurrentSession()
	if !ok {
		return ErrNoSession
	}
	if err := s.api.UpdatePassword(ctx, sess.Token, current, next); err != nil {
		return s.mapAPIError(err)
	}
	return nil
}

// MirrorPing probes the durable mirror and reports latency.
func (s *Store) MirrorPing(ctx context.Context) (time.Duration, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.mirror.Ping(ctx)
}

// MetricsSnapshot returns a copy of all counters.
func (s *Store) MetricsSnapshot() MetricsSnapshot {
	if s == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return s.metrics.Snapshot()
}

// EventsDropped reports events discarded by a full dispatch buffer.
func (s *Store) EventsDropped() uint64 {
	if s == nil {
		return 0
	}
	return s.events.Dropped()
}

// Close drains the event dispatcher. The store itself has no other
// background resources.
func (s *Store) Close() {
	if s == nil {
		return
	}
	if s.events != nil {
		s.events.Close()
	}
}

func (s *Store) ready() error {
	if s == nil || s.mirror == nil || s.api == nil {
		return ErrStoreNotReady
	}
	return nil
}

func (s *Store) setSession(sess Session) {
	s.mu.Lock()
	s.session = &sess
	s.mu.Unlock()
}

// selfHeal clears both mirror keys and leaves the store Unauthenticated.
// Corruption is reported on the event stream only, never to the caller.
func (s *Store) selfHeal(ctx context.Context, cause error) {
	if err := s.mirror.Clear(ctx); err != nil {
		s.degradeStorage(ctx, err)
	}
	s.metrics.Inc(MetricHydrateCorrupt)
	s.publish(ctx, SessionEvent{
		Type:  EventHydrateCorrupt,
		Error: cause.Error(),
	})
}

// persistBestEffort mirrors sess to durable storage. The in-memory copy is
// authoritative; a mirror failure degrades persistence but does not fail the
// mutation that already happened.
func (s *Store) persistBestEffort(ctx context.Context, sess Session) {
	data, err := EncodeIdentity(sess.Identity)
	if err != nil {
		s.degradeStorage(ctx, err)
		return
	}
	if err := s.mirror.Save(ctx, sess.Token, data); err != nil {
		s.degradeStorage(ctx, err)
	}
}

func (s *Store) degradeStorage(ctx context.Context, cause error) {
	log.Printf("oneflowauth: session mirror degraded: %v", cause)
	s.metrics.Inc(MetricStorageDegraded)
	s.publish(ctx, SessionEvent{
		Type:  EventStorageDegraded,
		Error: cause.Error(),
	})
}

func (s *Store) publish(ctx context.Context, event SessionEvent) {
	if s.events == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	s.events.Publish(ctx, event)
}

func (s *Store) mapAPIError(err error) error {
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		return fmt.Errorf("%w: %v", ErrRequestRejected, err)
	case errors.Is(err, apiclient.ErrTransport):
		return fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	default:
		return fmt.Errorf("%w: %v", ErrRequestRejected, err)
	}
}

func identityAsPatch(id Identity) IdentityPatch {
	return IdentityPatch{
		Name:      &id.Name,
		LastName:  &id.LastName,
		Email:     &id.Email,
		CPF:       &id.CPF,
		Telephone: &id.Telephone,
		Role:      &id.Role,
		ImageURL:  &id.ImageURL,
		Sector:    &id.Sector,
	}
}
