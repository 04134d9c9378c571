package oneflowauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/oneflow-app/oneflowauth/apiclient"
)

const anaJSON = `{"id":"1","name":"Ana","lastName":"Silva","email":"a@b.com","cpf":"","telephone":"","role":"MEMBRO","imageUrl":"","sector":{"sectorId":1}}`

// loginStub answers POST /auth/login with abc123/Ana for password "secret"
// and 401 otherwise. Tests extend the returned mux with profile endpoints.
func loginStub() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Password != "secret" {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"token":"abc123","user":%s}`, anaJSON)
	})
	return mux
}

func newStoreTest(t *testing.T, handler http.Handler) (*Store, *miniredis.Miniredis, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	srv := httptest.NewServer(handler)

	cfg := DefaultConfig()
	cfg.API.BaseURL = srv.URL

	store, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("store build: %v", err)
	}

	return store, mr, rdb, func() {
		store.Close()
		srv.Close()
		rdb.Close()
		mr.Close()
	}
}

// rebuildStore simulates a fresh process over the same mirror.
func rebuildStore(t *testing.T, rdb *redis.Client) *Store {
	t.Helper()
	cfg := DefaultConfig()
	cfg.API.BaseURL = "http://127.0.0.1:0"

	store, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("rebuild store: %v", err)
	}
	return store
}

func TestLoginStoresSessionAndMirror(t *testing.T) {
	store, mr, _, done := newStoreTest(t, loginStub())
	defer done()
	ctx := context.Background()

	if err := store.Login(ctx, "a@b.com", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}

	sess, ok := store.CurrentSession()
	if !ok {
		t.Fatal("expected an authenticated session")
	}
	if sess.Token != "abc123" {
		t.Fatalf("expected token abc123, got %q", sess.Token)
	}
	if sess.Identity.Name != "Ana" || sess.Identity.Role != RoleMembro {
		t.Fatalf("unexpected identity %+v", sess.Identity)
	}

	token, err := mr.Get("oneflow.token")
	if err != nil {
		t.Fatalf("mirror token: %v", err)
	}
	if token != "abc123" {
		t.Fatalf("expected mirrored token abc123, got %q", token)
	}

	raw, err := mr.Get("oneflow.user")
	if err != nil {
		t.Fatalf("mirror identity: %v", err)
	}
	persisted, err := DecodeIdentity([]byte(raw))
	if err != nil {
		t.Fatalf("decode mirrored identity: %v", err)
	}
	if persisted != sess.Identity {
		t.Fatalf("mirror identity %+v diverges from memory %+v", persisted, sess.Identity)
	}
}

func TestLoginInvalidCredentialsLeavesStateUntouched(t *testing.T) {
	store, _, _, done := newStoreTest(t, loginStub())
	defer done()
	ctx := context.Background()

	if err := store.Login(ctx, "a@b.com", "secret"); err != nil {
		t.Fatalf("first login: %v", err)
	}
	before, _ := store.CurrentSession()

	err := store.Login(ctx, "a@b.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	after, ok := store.CurrentSession()
	if !ok || after != before {
		t.Fatalf("session changed on rejected login: before %+v after %+v", before, after)
	}
}

func TestLoginNetworkFailure(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := DefaultConfig()
	cfg.API.BaseURL = "http://127.0.0.1:1" // nothing listens here

	store, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("store build: %v", err)
	}
	defer store.Close()

	if err := store.Login(context.Background(), "a@b.com", "secret"); !errors.Is(err, ErrNetworkFailure) {
		t.Fatalf("expected ErrNetworkFailure, got %v", err)
	}
	if _, ok := store.CurrentSession(); ok {
		t.Fatal("failed login must not create a session")
	}
}

func TestLoginThenFreshHydrateReproducesSession(t *testing.T) {
	store, _, rdb, done := newStoreTest(t, loginStub())
	defer done()
	ctx := context.Background()

	if err := store.Login(ctx, "a@b.com", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	want, _ := store.CurrentSession()

	fresh := rebuildStore(t, rdb)
	defer fresh.Close()

	if err := fresh.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	got, ok := fresh.CurrentSession()
	if !ok {
		t.Fatal("expected hydrated session")
	}
	if got != want {
		t.Fatalf("hydrated session %+v differs from persisted %+v", got, want)
	}
}

func TestLogoutClearsMemoryAndMirror(t *testing.T) {
	store, mr, rdb, done := newStoreTest(t, loginStub())
	defer done()
	ctx := context.Background()

	if err := store.Login(ctx, "a@b.com", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}

	store.Logout(ctx)
	store.Logout(ctx) // idempotent

	if _, ok := store.CurrentSession(); ok {
		t.Fatal("expected no session after logout")
	}
	if mr.Exists("oneflow.token") || mr.Exists("oneflow.user") {
		t.Fatal("expected mirror keys cleared")
	}

	fresh := rebuildStore(t, rdb)
	defer fresh.Close()
	if err := fresh.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if _, ok := fresh.CurrentSession(); ok {
		t.Fatal("hydrate after logout must stay unauthenticated")
	}
}

func TestUpdateIdentityFieldIsolation(t *testing.T) {
	store, _, _, done := newStoreTest(t, loginStub())
	defer done()
	ctx := context.Background()

	if err := store.Login(ctx, "a@b.com", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	before, _ := store.CurrentSession()

	name := "Beatriz"
	if err := store.UpdateIdentity(ctx, IdentityPatch{Name: &name}, ""); err != nil {
		t.Fatalf("update identity: %v", err)
	}

	after, _ := store.CurrentSession()
	if after.Identity.Name != "Beatriz" {
		t.Fatalf("expected name Beatriz, got %q", after.Identity.Name)
	}
	if after.Token != before.Token {
		t.Fatal("token must be unchanged when newToken is omitted")
	}

	want := before.Identity
	want.Name = "Beatriz"
	if after.Identity != want {
		t.Fatalf("fields other than name changed: %+v vs %+v", after.Identity, want)
	}
}

func TestUpdateIdentityEmailChangeRotatesToken(t *testing.T) {
	store, _, rdb, done := newStoreTest(t, loginStub())
	defer done()
	ctx := context.Background()

	if err := store.Login(ctx, "a@b.com", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}

	email := "new@b.com"
	if err := store.UpdateIdentity(ctx, IdentityPatch{Email: &email}, "rotated-456"); err != nil {
		t.Fatalf("update identity: %v", err)
	}

	sess, _ := store.CurrentSession()
	if sess.Identity.Email != "new@b.com" || sess.Token != "rotated-456" {
		t.Fatalf("expected rotated session, got %+v", sess)
	}

	fresh := rebuildStore(t, rdb)
	defer fresh.Close()
	if err := fresh.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	got, ok := fresh.CurrentSession()
	if !ok || got.Token != "rotated-456" || got.Identity.Email != "new@b.com" {
		t.Fatalf("hydrate does not reflect rotation: %+v", got)
	}
}

func TestUpdateIdentityWithoutSessionIsNoOp(t *testing.T) {
	store, mr, _, done := newStoreTest(t, loginStub())
	defer done()

	name := "Beatriz"
	if err := store.UpdateIdentity(context.Background(), IdentityPatch{Name: &name}, ""); err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}
	if _, ok := store.CurrentSession(); ok {
		t.Fatal("no-op update must not create a session")
	}
	if mr.Exists("oneflow.token") || mr.Exists("oneflow.user") {
		t.Fatal("no-op update must not touch the mirror")
	}
}

func TestUpdateIdentityRejectsInvalidMerge(t *testing.T) {
	store, _, _, done := newStoreTest(t, loginStub())
	defer done()
	ctx := context.Background()

	if err := store.Login(ctx, "a@b.com", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	before, _ := store.CurrentSession()

	bogus := Role("ESTAGIARIO")
	err := store.UpdateIdentity(ctx, IdentityPatch{Role: &bogus}, "")
	if !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}

	after, _ := store.CurrentSession()
	if after != before {
		t.Fatal("rejected update must not mutate the session")
	}
}

func TestHydrateCorruptIdentitySelfHeals(t *testing.T) {
	store, mr, _, done := newStoreTest(t, loginStub())
	defer done()

	if err := mr.Set("oneflow.token", "abc123"); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	if err := mr.Set("oneflow.user", `{"id":`); err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	if err := store.Hydrate(context.Background()); err != nil {
		t.Fatalf("hydrate must recover silently, got %v", err)
	}
	if _, ok := store.CurrentSession(); ok {
		t.Fatal("corrupt state must hydrate to unauthenticated")
	}
	if mr.Exists("oneflow.token") || mr.Exists("oneflow.user") {
		t.Fatal("expected both mirror keys cleared")
	}
}

func TestHydratePartialStateSelfHeals(t *testing.T) {
	store, mr, _, done := newStoreTest(t, loginStub())
	defer done()

	if err := mr.Set("oneflow.user", anaJSON); err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	if err := store.Hydrate(context.Background()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if _, ok := store.CurrentSession(); ok {
		t.Fatal("token-less state must hydrate to unauthenticated")
	}
	if mr.Exists("oneflow.user") {
		t.Fatal("orphaned identity key must be cleared")
	}
}

func TestHydrateUnknownRoleSelfHeals(t *testing.T) {
	store, mr, _, done := newStoreTest(t, loginStub())
	defer done()

	if err := mr.Set("oneflow.token", "abc123"); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	if err := mr.Set("oneflow.user", strings.Replace(anaJSON, "MEMBRO", "ROOT", 1)); err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	if err := store.Hydrate(context.Background()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if _, ok := store.CurrentSession(); ok {
		t.Fatal("unknown role must hydrate to unauthenticated")
	}
	if mr.Exists("oneflow.token") {
		t.Fatal("expected token key cleared")
	}
}

func TestUpdateProfileAppliesServerResponse(t *testing.T) {
	mux := loginStub()
	mux.HandleFunc("PUT /users", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		updated := strings.Replace(anaJSON, "a@b.com", "new@b.com", 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"token":"rotated-456","user":%s}`, updated)
	})

	store, _, _, done := newStoreTest(t, mux)
	defer done()
	ctx := context.Background()

	if err := store.Login(ctx, "a@b.com", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}

	email := "new@b.com"
	if err := store.UpdateProfile(ctx, apiclient.ProfileUpdate{Email: &email}); err != nil {
		t.Fatalf("update profile: %v", err)
	}

	sess, _ := store.CurrentSession()
	if sess.Identity.Email != "new@b.com" {
		t.Fatalf("expected merged email, got %q", sess.Identity.Email)
	}
	if sess.Token != "rotated-456" {
		t.Fatalf("expected rotated token, got %q", sess.Token)
	}
}

func TestUpdateProfileImageAppliesIdentity(t *testing.T) {
	mux := loginStub()
	mux.HandleFunc("PATCH /users/image", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, "bad multipart", http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("image"); err != nil {
			http.Error(w, "image part required", http.StatusBadRequest)
			return
		}
		updated := strings.Replace(anaJSON, `"imageUrl":""`, `"imageUrl":"https://cdn/x.png"`, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, updated)
	})

	store, _, _, done := newStoreTest(t, mux)
	defer done()
	ctx := context.Background()

	if err := store.Login(ctx, "a@b.com", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := store.UpdateProfileImage(ctx, "x.png", strings.NewReader("png-bytes")); err != nil {
		t.Fatalf("update image: %v", err)
	}

	sess, _ := store.CurrentSession()
	if sess.Identity.ImageURL != "https://cdn/x.png" {
		t.Fatalf("expected image url applied, got %q", sess.Identity.ImageURL)
	}
}

func TestUpdatePasswordRequiresSession(t *testing.T) {
	store, _, _, done := newStoreTest(t, loginStub())
	defer done()

	if err := store.UpdatePassword(context.Background(), "old", "new"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestMetricsCounters(t *testing.T) {
	store, mr, _, done := newStoreTest(t, loginStub())
	defer done()
	ctx := context.Background()

	_ = store.Login(ctx, "a@b.com", "wrong")
	if err := store.Login(ctx, "a@b.com", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	store.Logout(ctx)

	if err := mr.Set("oneflow.token", "abc123"); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	if err := mr.Set("oneflow.user", "not-json"); err != nil {
		t.Fatalf("seed identity: %v", err)
	}
	if err := store.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	snap := store.MetricsSnapshot()
	for id, want := range map[MetricID]uint64{
		MetricLoginSuccess:   1,
		MetricLoginFailure:   1,
		MetricLogout:         1,
		MetricHydrateCorrupt: 1,
	} {
		if got := snap.Counters[id]; got != want {
			t.Fatalf("counter %d: expected %d, got %d", id, want, got)
		}
	}
}

func TestBuilderValidation(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("expected error without redis client")
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if _, err := New().WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error with empty API base URL")
	}

	cfg := DefaultConfig()
	cfg.API.BaseURL = "http://localhost:3333"
	b := New().WithConfig(cfg).WithRedis(rdb)
	if _, err := b.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error reusing the builder")
	}
}
