// Package main runs a development stub of the remote OneFlow REST API so the
// session library (and the dashboard UI) can be exercised without the
// production backend.
//
// The stub keeps an in-memory user table, verifies passwords with bcrypt, and
// mints HS256 bearer tokens. The token is opaque to the client library; JWT
// here is an implementation detail of the stub, matching the production API.
//
// Endpoints:
//
//	POST  /auth/login            — JSON {"email":"...", "password":"..."}
//	POST  /auth/forgot-password  — JSON {"email":"..."}
//	PUT   /users                 — partial profile update; rotates the token on email change
//	PATCH /users/image           — multipart image upload
//	PATCH /users/password        — JSON {"currentPassword":"...", "newPassword":"..."}
//
// Run:
//
//	go run ./cmd/oneflow-apistub
//
// Then:
//
//	curl -i -X POST localhost:3333/auth/login \
//	  -H 'Content-Type: application/json' \
//	  -d '{"email":"ana@oneflow.app","password":"correct-horse"}'
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type sector struct {
	SectorID int `json:"sectorId"`
}

type user struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	CPF       string `json:"cpf"`
	Telephone string `json:"telephone"`
	Role      string `json:"role"`
	ImageURL  string `json:"imageUrl"`
	Sector    sector `json:"sector"`

	passwordHash []byte
}

type stub struct {
	mu     sync.Mutex
	users  map[string]*user // keyed by user ID
	secret []byte
	tokens time.Duration
}

func newStub(secret []byte) *stub {
	return &stub{
		users:  make(map[string]*user),
		secret: secret,
		tokens: 30 * 24 * time.Hour,
	}
}

func (s *stub) seed(email, password, role string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	s.users[id] = &user{
		ID:           id,
		Name:         "Ana",
		LastName:     "Silva",
		Email:        email,
		Role:         role,
		Sector:       sector{SectorID: 1},
		passwordHash: hash,
	}
	return nil
}

func (s *stub) mintToken(u *user) (string, error) {
	claims := jwt.MapClaims{
		"sub":   u.ID,
		"email": u.Email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(s.tokens).Unix(),
		"jti":   uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *stub) authenticate(r *http.Request) (*user, error) {
	header := r.Header.Get("Authorization")
	const bearer = "Bearer "
	if !strings.HasPrefix(header, bearer) {
		return nil, errors.New("missing bearer token")
	}

	token, err := jwt.Parse(header[len(bearer):], func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[sub]
	if !ok {
		return nil, errors.New("unknown subject")
	}
	return u, nil
}

func (s *stub) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	var found *user
	for _, u := range s.users {
		if u.Email == body.Email {
			found = u
			break
		}
	}
	s.mu.Unlock()

	if found == nil || bcrypt.CompareHashAndPassword(found.passwordHash, []byte(body.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := s.mintToken(found)
	if err != nil {
		http.Error(w, "token error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  found,
	})
}

func (s *stub) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	u, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var body struct {
		Name      *string `json:"name"`
		LastName  *string `json:"lastName"`
		Email     *string `json:"email"`
		CPF       *string `json:"cpf"`
		Telephone *string `json:"telephone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	emailChanged := false
	if body.Name != nil {
		u.Name = *body.Name
	}
	if body.LastName != nil {
		u.LastName = *body.LastName
	}
	if body.Email != nil && *body.Email != u.Email {
		u.Email = *body.Email
		emailChanged = true
	}
	if body.CPF != nil {
		u.CPF = *body.CPF
	}
	if body.Telephone != nil {
		u.Telephone = *body.Telephone
	}
	s.mu.Unlock()

	resp := map[string]any{"user": u}
	if emailChanged {
		// Email is a claim; rotate the credential so it stays truthful.
		token, err := s.mintToken(u)
		if err != nil {
			http.Error(w, "token error", http.StatusInternalServerError)
			return
		}
		resp["token"] = token
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *stub) handleUpdateImage(w http.ResponseWriter, r *http.Request) {
	u, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(8 << 20); err != nil {
		http.Error(w, "malformed multipart body", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "image part required", http.StatusBadRequest)
		return
	}
	_ = file.Close()

	s.mu.Lock()
	u.ImageURL = "https://cdn.oneflow.local/images/" + u.ID + "/" + header.Filename
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, u)
}

func (s *stub) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	// The production API sends a recovery email; the stub just acknowledges.
	log.Printf("apistub: password recovery requested for %s", body.Email)
	w.WriteHeader(http.StatusNoContent)
}

func (s *stub) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	u, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var body struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if bcrypt.CompareHashAndPassword(u.passwordHash, []byte(body.CurrentPassword)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(body.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "hash error", http.StatusInternalServerError)
		return
	}
	u.passwordHash = hash
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func main() {
	addr := flag.String("addr", ":3333", "listen address")
	seedEmail := flag.String("seed-email", "ana@oneflow.app", "seed user email")
	seedPassword := flag.String("seed-password", "correct-horse", "seed user password")
	seedRole := flag.String("seed-role", "MEMBRO", "seed user role")
	flag.Parse()

	s := newStub([]byte(uuid.NewString()))
	if err := s.seed(*seedEmail, *seedPassword, *seedRole); err != nil {
		log.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/forgot-password", s.handleForgotPassword)
	mux.HandleFunc("PUT /users", s.handleUpdateProfile)
	mux.HandleFunc("PATCH /users/image", s.handleUpdateImage)
	mux.HandleFunc("PATCH /users/password", s.handleUpdatePassword)

	fmt.Println("oneflow api stub listening on", *addr)
	log.Fatal(http.ListenAndServe(*addr, mux))
}
