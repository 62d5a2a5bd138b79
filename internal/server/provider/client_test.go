package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/cloakvault/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifyCredentials_Success(t *testing.T) {
	srv := newServer(t, http.StatusOK,
		`{"access_token":"at","refresh_token":"rt","token_type":"bearer","user":{"id":"u-1","email":"a@example.com"}}`,
		func(r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/auth/v1/token", r.URL.Path)
			assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
			assert.Equal(t, "anon-key", r.Header.Get("apikey"))

			var body credentials
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, credentials{Email: "a@example.com", Password: "pw"}, body)
		})

	res := New(srv.URL+"/", "anon-key").VerifyCredentials(context.Background(), "a@example.com", "pw")
	require.True(t, res.OK())
	assert.Equal(t, ReasonNone, res.Reason)
	assert.Equal(t, "u-1", res.Session.UserID)
	assert.Equal(t, "at", res.Session.AccessToken)
	assert.Equal(t, "rt", res.Session.RefreshToken)
}

func TestVerifyCredentials_Invalid(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity} {
		srv := newServer(t, status, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`, nil)

		res := New(srv.URL, "k").VerifyCredentials(context.Background(), "a@example.com", "bad")
		assert.False(t, res.OK())
		assert.Equal(t, ReasonInvalidCredentials, res.Reason, "status %d", status)
		assert.NoError(t, res.Err)
	}
}

func TestVerifyCredentials_Unavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"rate limited", http.StatusTooManyRequests, `{}`},
		{"garbled body", http.StatusOK, `not json`},
		{"no token", http.StatusOK, `{"user":{"id":"u-1"}}`},
		{"no user", http.StatusOK, `{"access_token":"at"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.status, tt.body, nil)

			res := New(srv.URL, "k").VerifyCredentials(context.Background(), "a@example.com", "pw")
			assert.False(t, res.OK())
			assert.Equal(t, ReasonUnavailable, res.Reason)
			assert.ErrorIs(t, res.Err, ErrUnavailable)
		})
	}
}

func TestVerifyCredentials_Timeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := New(srv.URL, "k", WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	res := c.VerifyCredentials(context.Background(), "a@example.com", "pw")
	assert.Equal(t, ReasonUnavailable, res.Reason)
}

func TestVerifyCredentials_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := New(url, "k").VerifyCredentials(context.Background(), "a@example.com", "pw")
	assert.Equal(t, ReasonUnavailable, res.Reason)
}

func TestSignUp_BothResponseShapes(t *testing.T) {
	bare := newServer(t, http.StatusOK, `{"id":"u-bare","email":"a@example.com"}`, func(r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
	})
	withSession := newServer(t, http.StatusOK, `{"access_token":"at","user":{"id":"u-nested"}}`, nil)

	id, err := New(bare.URL, "k").SignUp(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u-bare", id)

	id, err = New(withSession.URL, "k").SignUp(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u-nested", id)
}

func TestSignUp_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"already registered by code", http.StatusUnprocessableEntity, `{"code":422,"error_code":"user_already_exists","msg":"User already registered"}`,
			func(t *testing.T, err error) { assert.ErrorIs(t, err, common.ErrAlreadyExists) }},
		{"already registered by message", http.StatusBadRequest, `{"msg":"User already registered"}`,
			func(t *testing.T, err error) { assert.ErrorIs(t, err, common.ErrAlreadyExists) }},
		{"weak password", http.StatusUnprocessableEntity, `{"error_code":"weak_password","msg":"Password should be at least 6 characters."}`,
			func(t *testing.T, err error) {
				var ve *common.ValidationError
				require.True(t, errors.As(err, &ve))
				assert.Equal(t, "Password should be at least 6 characters.", ve.Message)
			}},
		{"rejected without body", http.StatusBadRequest, ``,
			func(t *testing.T, err error) {
				var ve *common.ValidationError
				assert.True(t, errors.As(err, &ve))
			}},
		{"server error", http.StatusBadGateway, ``,
			func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrUnavailable) }},
		{"missing id", http.StatusOK, `{}`,
			func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrUnavailable) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.status, tt.body, nil)
			_, err := New(srv.URL, "k").SignUp(context.Background(), "a@example.com", "pw")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "invalid_credentials", ReasonInvalidCredentials.String())
	assert.Equal(t, "provider_unavailable", ReasonUnavailable.String())
	assert.Equal(t, "none", ReasonNone.String())
}
