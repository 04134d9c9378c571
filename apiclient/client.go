package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	// ErrUnauthorized is returned when the remote API rejects the
	// credentials or the bearer token (401/403).
	ErrUnauthorized = errors.New("remote api rejected credentials")
	// ErrRejected is returned for any other non-success status.
	ErrRejected = errors.New("remote api rejected request")
	// ErrTransport is returned when the request never produced a response.
	ErrTransport = errors.New("remote api unreachable")
)

// Config carries the client tunables.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the remote OneFlow API. The zero value is not usable;
// construct through New.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client. base may be nil; when set it replaces the default
// transport (tests inject httptest round-trippers through it). The effective
// transport is always wrapped with otelhttp so outbound calls carry spans.
func New(cfg Config, base http.RoundTripper) *Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(base),
		},
	}
}

// LoginResponse is the success payload of POST /auth/login. User is the raw
// identity payload, validated by the session store.
type LoginResponse struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user"`
}

// Login exchanges credentials for a token and identity. Bad credentials map
// to ErrUnauthorized; transport failures to ErrTransport.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}

	var out LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", "", body, &out); err != nil {
		return nil, err
	}
	if out.Token == "" || len(out.User) == 0 {
		return nil, fmt.Errorf("%w: login response missing token or user", ErrRejected)
	}
	return &out, nil
}

// ProfileUpdate is the partial body of PUT /users. Nil fields are omitted so
// the API only touches what the caller changed.
type ProfileUpdate struct {
	Name      *string `json:"name,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Email     *string `json:"email,omitempty"`
	CPF       *string `json:"cpf,omitempty"`
	Telephone *string `json:"telephone,omitempty"`
}

// ProfileResponse is the success payload of PUT /users. Token is non-empty
// only when the API rotated the credential (email change).
type ProfileResponse struct {
	Token string          `json:"token,omitempty"`
	User  json.RawMessage `json:"user,omitempty"`
}

// UpdateProfile applies a partial profile edit for the authenticated user.
func (c *Client) UpdateProfile(ctx context.Context, token string, update ProfileUpdate) (*ProfileResponse, error) {
	var out ProfileResponse
	if err := c.doJSON(ctx, http.MethodPut, "/users", token, update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfileImage uploads a new profile image via PATCH /users/image and
// returns the raw updated identity payload.
func (c *Client) UpdateProfileImage(ctx context.Context, token, filename string, image io.Reader) (json.RawMessage, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	req, err := c.newRequest(ctx, http.MethodPatch, "/users/image", token, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return json.RawMessage(data), nil
}

// ForgotPassword asks the API to start a password recovery flow for email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	body := map[string]string{
		"email": email,
	}
	return c.doJSON(ctx, http.MethodPost, "/auth/forgot-password", "", body, nil)
}

// UpdatePassword changes the authenticated user's password.
func (c *Client) UpdatePassword(ctx context.Context, token, current, next string) error {
	body := map[string]string{
		"currentPassword": current,
		"newPassword":     next,
	}
	return c.doJSON(ctx, http.MethodPatch, "/users/password", token, body, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRejected, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, token, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", ErrRejected, err)
	}
	return nil
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	default:
		return fmt.Errorf("%w: status %d", ErrRejected, code)
	}
}
