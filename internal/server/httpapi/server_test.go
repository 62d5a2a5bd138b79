package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/cloakvault/internal/common"
	"github.com/dmitrijs2005/cloakvault/internal/logging"
	"github.com/dmitrijs2005/cloakvault/internal/server/auth"
	"github.com/dmitrijs2005/cloakvault/internal/server/lockout"
	"github.com/dmitrijs2005/cloakvault/internal/server/models"
	"github.com/dmitrijs2005/cloakvault/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fakeAuth struct {
	session *models.Session
	err     error
	got     services.LoginRequest
}

func (f *fakeAuth) Login(_ context.Context, req services.LoginRequest) (*models.Session, error) {
	f.got = req
	return f.session, f.err
}

type fakeAccounts struct {
	profile *models.Profile
	avail   *services.Availability
	err     error
	got     services.SignupRequest
}

func (f *fakeAccounts) Signup(_ context.Context, req services.SignupRequest) (*models.Profile, error) {
	f.got = req
	return f.profile, f.err
}

func (f *fakeAccounts) UsernameAvailable(context.Context, string) (*services.Availability, error) {
	return f.avail, f.err
}

func (f *fakeAccounts) ValidateEmail(context.Context, string) (*services.Availability, error) {
	return f.avail, f.err
}

type fakeVault struct {
	data string
	err  error

	userID, dataType, plaintext, password string
}

func (f *fakeVault) Access(_ context.Context, userID, password string) (string, error) {
	f.userID, f.password = userID, password
	return f.data, f.err
}

func (f *fakeVault) Store(_ context.Context, userID, dataType, plaintext, password string) error {
	f.userID, f.dataType, f.plaintext, f.password = userID, dataType, plaintext, password
	return f.err
}

type fakeLocks struct {
	status lockout.Status
	userID string
}

func (f *fakeLocks) CheckLockStatus(_ context.Context, userID string) lockout.Status {
	f.userID = userID
	return f.status
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

type fixture struct {
	auth     *fakeAuth
	accounts *fakeAccounts
	vault    *fakeVault
	locks    *fakeLocks
	srv      *Server
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	if opts.JWTSecret == "" {
		opts.JWTSecret = testSecret
	}
	f := &fixture{
		auth:     &fakeAuth{},
		accounts: &fakeAccounts{},
		vault:    &fakeVault{},
		locks:    &fakeLocks{},
	}
	f.srv = NewServer("127.0.0.1:0", logging.NewNop(), Deps{
		Auth:     f.auth,
		Accounts: f.accounts,
		Vault:    f.vault,
		Locks:    f.locks,
	}, opts)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func bearer(t *testing.T, userID string, validity time.Duration) string {
	t.Helper()
	tok, err := auth.GenerateToken(userID, []byte(testSecret), validity)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t, Options{})
	f.auth.session = &models.Session{UserID: "u1", AccessToken: "at", RefreshToken: "rt"}

	rec, body := f.do(t, http.MethodPost, "/api/login", `{"email":"a@b.co","password":"pw"}`,
		"X-Forwarded-For", "203.0.113.7")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Login successful!", body["message"])
	assert.Equal(t, "at", body["access_token"])
	assert.Equal(t, "rt", body["refresh_token"])
	assert.Equal(t, "a@b.co", f.auth.got.Email)
	assert.Equal(t, "203.0.113.7", f.auth.got.SourceIP)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestLogin_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		check      func(t *testing.T, body map[string]any)
	}{
		{
			name:       "validation",
			err:        common.NewValidationError("Email and password are required"),
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "Email and password are required", body["error"])
			},
		},
		{
			name:       "invalid credentials",
			err:        common.ErrInvalidCredentials,
			wantStatus: http.StatusUnauthorized,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "Invalid email or password", body["error"])
			},
		},
		{
			name:       "already locked",
			err:        &common.LockedError{Seconds: 125, Message: "Account locked. Try again in 2 minutes 5 seconds."},
			wantStatus: http.StatusTooManyRequests,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "account_locked", body["error"])
				assert.Equal(t, "Account locked. Try again in 2 minutes 5 seconds.", body["message"])
				assert.EqualValues(t, 125, body["lockout_duration_seconds"])
				assert.EqualValues(t, 125, body["remaining_seconds"])
			},
		},
		{
			name:       "newly locked",
			err:        &common.LockedError{Seconds: 600, Message: "Account locked for 10 minutes.", NewlyLocked: true},
			wantStatus: http.StatusTooManyRequests,
			check: func(t *testing.T, body map[string]any) {
				assert.EqualValues(t, 600, body["lockout_duration_seconds"])
				assert.NotContains(t, body, "remaining_seconds")
			},
		},
		{
			name:       "provider down",
			err:        fmt.Errorf("%w: %w", common.ErrorInternal, errors.New("dial tcp: refused")),
			wantStatus: http.StatusInternalServerError,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, msgInternal, body["error"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			f.auth.err = tt.err

			rec, body := f.do(t, http.MethodPost, "/api/login", `{"email":"a@b.co","password":"pw"}`)
			require.Equal(t, tt.wantStatus, rec.Code)
			tt.check(t, body)
		})
	}
}

func TestLogin_MalformedBody(t *testing.T) {
	f := newFixture(t, Options{})
	rec, body := f.do(t, http.MethodPost, "/api/login", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", body["error"])
}

func TestSignup(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.accounts.profile = &models.Profile{UserID: "u1", Username: "alice", Email: "a@b.co"}

		rec, body := f.do(t, http.MethodPost, "/api/signup",
			`{"username":"alice","email":"a@b.co","password":"pw","first_name":"Al","last_name":"Ice"}`)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "u1", body["user_id"])
		assert.Equal(t, "alice", body["username"])
		assert.Equal(t, "a@b.co", body["email"])
		assert.Equal(t, "Al", f.accounts.got.FirstName)
		assert.Equal(t, "Ice", f.accounts.got.LastName)
	})

	t.Run("username taken", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.accounts.err = services.ErrUsernameTaken
		rec, body := f.do(t, http.MethodPost, "/api/signup", `{"username":"alice"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "Username already exists", body["error"])
	})

	t.Run("email taken", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.accounts.err = fmt.Errorf("signup: %w", services.ErrEmailTaken)
		rec, body := f.do(t, http.MethodPost, "/api/signup", `{"username":"alice"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "Email already registered", body["error"])
	})
}

func TestCheckUsernameAndEmail(t *testing.T) {
	for _, path := range []string{"/api/check-username", "/api/check-email"} {
		t.Run(path, func(t *testing.T) {
			f := newFixture(t, Options{})
			f.accounts.avail = &services.Availability{Available: true, Message: "ok"}

			rec, body := f.do(t, http.MethodPost, path, `{"username":"alice","email":"a@b.co"}`)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, true, body["available"])
			assert.Equal(t, "ok", body["message"])

			f.accounts.avail = nil
			f.accounts.err = common.NewValidationError("too short")
			rec, body = f.do(t, http.MethodPost, path, `{}`)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, body["available"])
			assert.Equal(t, "too short", body["message"])
		})
	}
}

func TestAccessFile(t *testing.T) {
	t.Run("no token", func(t *testing.T) {
		f := newFixture(t, Options{})
		rec, body := f.do(t, http.MethodPost, "/api/access-file", `{"password":"pw"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Not authenticated", body["error"])
	})

	t.Run("malformed header", func(t *testing.T) {
		f := newFixture(t, Options{})
		rec, _ := f.do(t, http.MethodPost, "/api/access-file", `{"password":"pw"}`, "Authorization", "Token abc")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		f := newFixture(t, Options{})
		rec, body := f.do(t, http.MethodPost, "/api/access-file", `{"password":"pw"}`,
			"Authorization", bearer(t, "u1", -time.Minute))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Token expired", body["error"])
	})

	t.Run("decrypted", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.vault.data = "hello world"

		rec, body := f.do(t, http.MethodPost, "/api/access-file", `{"password":"pw"}`,
			"Authorization", bearer(t, "u1", time.Hour))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "hello world", body["decrypted_data"])
		assert.Equal(t, "u1", f.vault.userID)
		assert.Equal(t, "pw", f.vault.password)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.vault.err = common.ErrDecryptionFailed
		rec, body := f.do(t, http.MethodPost, "/api/access-file", `{"password":"bad"}`,
			"Authorization", bearer(t, "u1", time.Hour))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, msgDecryptionFailed, body["error"])
	})

	t.Run("no record", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.vault.err = common.ErrorNotFound
		rec, _ := f.do(t, http.MethodPost, "/api/access-file", `{"password":"pw"}`,
			"Authorization", bearer(t, "u1", time.Hour))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestStoreData(t *testing.T) {
	f := newFixture(t, Options{})

	rec, body := f.do(t, http.MethodPut, "/api/data", `{"data_type":"notes","data":"secret","password":"pw"}`,
		"Authorization", bearer(t, "u1", time.Hour))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "u1", f.vault.userID)
	assert.Equal(t, "notes", f.vault.dataType)
	assert.Equal(t, "secret", f.vault.plaintext)
}

func TestLockStatus(t *testing.T) {
	f := newFixture(t, Options{})
	f.locks.status = lockout.Status{Locked: true, RemainingSeconds: 61, Message: "Account locked. Try again in 1 minutes 1 seconds."}

	rec, body := f.do(t, http.MethodGet, "/api/lock-status", "", "Authorization", bearer(t, "u1", time.Hour))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["locked"])
	assert.EqualValues(t, 61, body["remaining_seconds"])
	assert.Equal(t, "u1", f.locks.userID)
}

func TestHealth(t *testing.T) {
	srv := NewServer("", logging.NewNop(), Deps{Health: fakePinger{}}, Options{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	srv = NewServer("", logging.NewNop(), Deps{Health: fakePinger{err: errors.New("down")}}, Options{})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimiter_DeniesBurstOverflow(t *testing.T) {
	f := newFixture(t, Options{RateLimitRPS: 0.001, RateLimitBurst: 1})
	f.auth.session = &models.Session{UserID: "u1", AccessToken: "at"}

	rec, _ := f.do(t, http.MethodPost, "/api/login", `{"email":"a@b.co","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := f.do(t, http.MethodPost, "/api/login", `{"email":"a@b.co","password":"pw"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests", body["error"])

	// protected routes are not throttled
	rec, _ = f.do(t, http.MethodGet, "/api/lock-status", "", "Authorization", bearer(t, "u1", time.Hour))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", logging.NewNop(), Deps{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop after context cancel")
	}
}

func TestStatusFor_UnknownErrorIsInternal(t *testing.T) {
	status, body := statusFor(errors.New("pq: relation does not exist"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, msgInternal, body["error"])

	status, _ = statusFor(fmt.Errorf("wrap: %w", common.ErrAlreadyExists))
	assert.Equal(t, http.StatusConflict, status)
}
