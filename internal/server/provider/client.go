// Package provider is a client for the external authentication provider, a
// GoTrue (Supabase Auth) compatible REST service that owns user credentials.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/cloakvault/internal/common"
	"github.com/dmitrijs2005/cloakvault/internal/server/models"
)

const maxBodySize = 1 << 20

// ErrUnavailable is returned when the provider cannot be reached or answers
// in an unexpected way.
var ErrUnavailable = errors.New("authentication provider unavailable")

// Reason tells why a credential check did not produce a session.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonInvalidCredentials
	ReasonUnavailable
)

func (r Reason) String() string {
	switch r {
	case ReasonInvalidCredentials:
		return "invalid_credentials"
	case ReasonUnavailable:
		return "provider_unavailable"
	default:
		return "none"
	}
}

// Result of VerifyCredentials: either Session is set, or Reason says why not.
// Err carries the underlying cause for ReasonUnavailable.
type Result struct {
	Session *models.Session
	Reason  Reason
	Err     error
}

func (r Result) OK() bool { return r.Session != nil }

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New returns a client for the provider at baseURL, e.g.
// https://<project>.supabase.co. apiKey is sent as the apikey header.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPayload struct {
	ID string `json:"id"`
}

// authResponse covers both response shapes of the provider: a session with
// an embedded user, and a bare user object.
type authResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         *userPayload `json:"user"`
	ID           string       `json:"id"`
}

func (r *authResponse) userID() string {
	if r.User != nil && r.User.ID != "" {
		return r.User.ID
	}
	return r.ID
}

type errorResponse struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e *errorResponse) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (c *Client) post(ctx context.Context, path string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// VerifyCredentials performs a password grant. It never returns an error:
// rejected credentials and provider trouble are told apart by Result.Reason.
func (c *Client) VerifyCredentials(ctx context.Context, email, password string) Result {
	status, data, err := c.post(ctx, "/auth/v1/token?grant_type=password", credentials{Email: email, Password: password})
	if err != nil {
		return unavailable(err)
	}

	switch {
	case status >= 200 && status < 300:
		var r authResponse
		if err := json.Unmarshal(data, &r); err != nil {
			return unavailable(fmt.Errorf("decode session: %w", err))
		}
		if r.AccessToken == "" || r.userID() == "" {
			return unavailable(errors.New("session response without token or user"))
		}
		return Result{Session: &models.Session{
			UserID:       r.userID(),
			AccessToken:  r.AccessToken,
			RefreshToken: r.RefreshToken,
		}}
	case status == http.StatusBadRequest, status == http.StatusUnauthorized,
		status == http.StatusForbidden, status == http.StatusUnprocessableEntity:
		return Result{Reason: ReasonInvalidCredentials}
	default:
		return unavailable(fmt.Errorf("unexpected status %d", status))
	}
}

func unavailable(err error) Result {
	return Result{Reason: ReasonUnavailable, Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
}

// SignUp registers a new user and returns the provider's user id. An email
// that is already registered yields common.ErrAlreadyExists; other rejected
// input yields a *common.ValidationError with the provider's message.
func (c *Client) SignUp(ctx context.Context, email, password string) (string, error) {
	status, data, err := c.post(ctx, "/auth/v1/signup", credentials{Email: email, Password: password})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if status >= 200 && status < 300 {
		var r authResponse
		if err := json.Unmarshal(data, &r); err != nil {
			return "", fmt.Errorf("%w: decode user: %w", ErrUnavailable, err)
		}
		if r.userID() == "" {
			return "", fmt.Errorf("%w: signup response without user id", ErrUnavailable)
		}
		return r.userID(), nil
	}

	var e errorResponse
	_ = json.Unmarshal(data, &e)

	if status == http.StatusBadRequest || status == http.StatusUnprocessableEntity {
		if e.ErrorCode == "user_already_exists" || e.ErrorCode == "email_exists" ||
			strings.Contains(strings.ToLower(e.text()), "already registered") {
			return "", common.ErrAlreadyExists
		}
		msg := e.text()
		if msg == "" {
			msg = "Sign-up rejected by the authentication provider"
		}
		return "", common.NewValidationError("%s", msg)
	}

	return "", fmt.Errorf("%w: unexpected status %d", ErrUnavailable, status)
}
