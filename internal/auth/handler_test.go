package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/portagency/pdadesk/internal/auth"
	"github.com/portagency/pdadesk/internal/shared"
)

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, auth.ErrInvalidCredentials
	}
	return s.user, nil
}

func newUser(t *testing.T, password string) *auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.User{ID: 42, CompanyID: 3, Name: "Marina", Email: "marina@agency.test", PasswordHash: string(hash), Role: "admin"}
}

func newRouter(t *testing.T, repo auth.Repository, tokens *auth.Tokens) http.Handler {
	t.Helper()
	handler := auth.NewHandler(nil, auth.NewService(repo, tokens))
	r := chi.NewRouter()
	r.Route("/api/auth", handler.MountRoutes)
	r.With(auth.Protect(tokens, nil)).Get("/api/me", func(w http.ResponseWriter, r *http.Request) {
		p, ok := shared.PrincipalFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"user": p.UserID, "company": p.CompanyID, "role": p.Role})
	})
	return r
}

func login(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func me(h http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestLoginIssuesUsableToken(t *testing.T) {
	tokens := auth.NewTokens("primary", "", time.Hour)
	h := newRouter(t, &stubRepo{user: newUser(t, "s3cret!")}, tokens)

	rr := login(t, h, `{"email":"marina@agency.test","password":"s3cret!"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		Token string `json:"token"`
		User  struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.NotEmpty(t, body.Token)
	assert.Equal(t, int64(42), body.User.ID)

	rr = me(h, "Bearer "+body.Token)
	require.Equal(t, http.StatusOK, rr.Code)
	var p map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
	assert.EqualValues(t, 42, p["user"])
	assert.EqualValues(t, 3, p["company"])
	assert.Equal(t, "admin", p["role"])
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := newRouter(t, &stubRepo{user: newUser(t, "s3cret!")}, auth.NewTokens("primary", "", time.Hour))

	rr := login(t, h, `{"email":"marina@agency.test","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = login(t, h, `{"email":"ghost@agency.test","password":"s3cret!"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLoginValidatesPayload(t *testing.T) {
	h := newRouter(t, &stubRepo{}, auth.NewTokens("primary", "", time.Hour))

	assert.Equal(t, http.StatusBadRequest, login(t, h, `{"email":"not-an-email","password":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, login(t, h, `{"email":`).Code)
}

func TestProtectRequiresBearer(t *testing.T) {
	h := newRouter(t, &stubRepo{}, auth.NewTokens("primary", "", time.Hour))

	assert.Equal(t, http.StatusUnauthorized, me(h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, me(h, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, me(h, "Bearer garbage").Code)
}

func TestProtectAcceptsAlternateSecret(t *testing.T) {
	user := newUser(t, "x")
	legacy, _, err := auth.NewTokens("old-secret", "", time.Hour).Issue(user)
	require.NoError(t, err)

	withAlt := newRouter(t, &stubRepo{}, auth.NewTokens("new-secret", "old-secret", time.Hour))
	assert.Equal(t, http.StatusOK, me(withAlt, "Bearer "+legacy).Code)

	withoutAlt := newRouter(t, &stubRepo{}, auth.NewTokens("new-secret", "", time.Hour))
	assert.Equal(t, http.StatusUnauthorized, me(withoutAlt, "Bearer "+legacy).Code)
}

func TestTokensRejectExpired(t *testing.T) {
	tokens := auth.NewTokens("primary", "", time.Nanosecond)
	raw, _, err := tokens.Issue(newUser(t, "x"))
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	_, err = tokens.Verify(raw)
	assert.Error(t, err)
}
