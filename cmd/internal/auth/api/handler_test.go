package authapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credd/cmd/identity"
	"credd/cmd/internal/auth/authn"
	"credd/cmd/internal/auth/session"
	"credd/cmd/internal/auth/throttle"
	"credd/cmd/security/password"
	"credd/cmd/security/token"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	mux   *http.ServeMux
	clock *session.ManualClock
}

func newTestServer(t *testing.T, opts ...authn.Option) testServer {
	t.Helper()

	pcfg := password.DefaultConfig()
	pcfg.Params.MemoryKiB = 8 * 1024
	pcfg.Params.Iterations = 1
	pcfg.Params.Parallelism = 1

	k, err := token.Generate("k1")
	require.NoError(t, err)
	ring, err := token.NewKeyRing(k)
	require.NoError(t, err)

	clock := session.NewManualClock(epoch)
	scfg := session.DefaultConfig()
	scfg.AccessTokenTTL = time.Minute
	tokens, err := session.NewManager(scfg, ring, clock)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := authn.New(authn.DefaultConfig(), authn.Deps{
		Store:   identity.NewMemoryStore(),
		Hasher:  password.NewPool(pcfg, 2),
		Hashing: pcfg,
		Tokens:  tokens,
	}, append([]authn.Option{authn.WithClock(clock), authn.WithLogger(log)}, opts...)...)
	require.NoError(t, err)

	h, err := NewHandler(log, DefaultConfig(), svc, tokens)
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)
	return testServer{mux: mux, clock: clock}
}

func (s testServer) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	return rr
}

func decodeToken(t *testing.T, rr *httptest.ResponseRecorder) tokenResponse {
	t.Helper()
	var out tokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.NotEmpty(t, out.Token)
	return out
}

func decodeErr(t *testing.T, rr *httptest.ResponseRecorder) apiError {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out.Error
}

func creds(ident, secret string) map[string]string {
	return map[string]string{"identity": ident, "secret": secret}
}

func TestRegisterLoginMe(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/auth/register", "", creds("alice@example.com", "Sup3rSecret!"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	reg := decodeToken(t, rr)
	assert.Equal(t, "Bearer", reg.TokenType)
	assert.True(t, reg.ExpiresAt.Equal(epoch.Add(time.Minute)))

	rr = s.do(t, http.MethodPost, "/auth/login", "", creds("alice@example.com", "Sup3rSecret!"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	login := decodeToken(t, rr)
	assert.NotEqual(t, reg.Token, login.Token)

	rr = s.do(t, http.MethodGet, "/me", login.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var me meResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	assert.Equal(t, "alice@example.com", me.Identity)
	assert.Nil(t, me.DisplayName)
	assert.NotContains(t, rr.Body.String(), "argon2id")
}

func TestProtectedRoute_BeforeAndAfterExpiry(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/auth/register", "", creds("bob", "Sup3rSecret!"))
	require.Equal(t, http.StatusCreated, rr.Code)
	tok := decodeToken(t, rr).Token

	rr = s.do(t, http.MethodGet, "/me", tok, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	s.clock.Advance(time.Minute + time.Second)

	rr = s.do(t, http.MethodGet, "/me", tok, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "unauthenticated", decodeErr(t, rr).Code)
	assert.Contains(t, rr.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestProtectedRoute_MissingOrGarbageToken(t *testing.T) {
	s := newTestServer(t)

	for _, bearer := range []string{"", "not-a-token", "a.b.c"} {
		rr := s.do(t, http.MethodGet, "/me", bearer, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "bearer %q", bearer)
		assert.Equal(t, "unauthenticated", decodeErr(t, rr).Code)
	}
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/auth/register", "", creds("alice", "Sup3rSecret!"))
	require.Equal(t, http.StatusCreated, rr.Code)

	wrong := s.do(t, http.MethodPost, "/auth/login", "", creds("alice", "Wr0ng-Secret!"))
	unknown := s.do(t, http.MethodPost, "/auth/login", "", creds("mallory", "Wr0ng-Secret!"))

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Equal(t, "invalid_credentials", decodeErr(t, wrong).Code)
}

func TestRegister_Errors(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/auth/register", "", creds("alice", "Sup3rSecret!"))
	require.Equal(t, http.StatusCreated, rr.Code)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"duplicate", creds("ALICE", "Sup3rSecret!"), http.StatusConflict, "duplicate_identity"},
		{"weak secret", creds("carol", "password"), http.StatusUnprocessableEntity, "weak_secret"},
		{"bad identity", creds("a b", "Sup3rSecret!"), http.StatusBadRequest, "invalid_input"},
		{"missing secret", map[string]string{"identity": "dave"}, http.StatusBadRequest, "invalid_input"},
		{"unknown field", `{"identity":"dave","secret":"Sup3rSecret!","admin":true}`, http.StatusBadRequest, "invalid_input"},
		{"trailing data", `{"identity":"dave","secret":"Sup3rSecret!"}{}`, http.StatusBadRequest, "invalid_input"},
		{"empty body", nil, http.StatusBadRequest, "invalid_input"},
		{"not json", "identity=dave", http.StatusBadRequest, "invalid_input"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := s.do(t, http.MethodPost, "/auth/register", "", tc.body)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
			assert.Equal(t, tc.code, decodeErr(t, rr).Code)
		})
	}
}

func TestRegister_BodyTooLarge(t *testing.T) {
	s := newTestServer(t)

	big := `{"identity":"dave","secret":"` + strings.Repeat("x", 128<<10) + `"}`
	rr := s.do(t, http.MethodPost, "/auth/register", "", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestChangeSecretAndProfile(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/auth/register", "", creds("alice", "Sup3rSecret!"))
	require.Equal(t, http.StatusCreated, rr.Code)
	tok := decodeToken(t, rr).Token

	rr = s.do(t, http.MethodPost, "/auth/secret", tok, map[string]string{
		"old_secret": "nope", "new_secret": "N3w-Secret-Value",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "invalid_credentials", decodeErr(t, rr).Code)

	rr = s.do(t, http.MethodPost, "/auth/secret", tok, map[string]string{
		"old_secret": "Sup3rSecret!", "new_secret": "N3w-Secret-Value",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	fresh := decodeToken(t, rr).Token

	rr = s.do(t, http.MethodPost, "/auth/login", "", creds("alice", "Sup3rSecret!"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = s.do(t, http.MethodPost, "/auth/login", "", creds("alice", "N3w-Secret-Value"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodPatch, "/me", fresh, map[string]string{"display_name": "  Alice  "})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var me meResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	require.NotNil(t, me.DisplayName)
	assert.Equal(t, "Alice", *me.DisplayName)

	rr = s.do(t, http.MethodPatch, "/me", fresh, `{"secret":"Sup3rSecret!"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "profile updates cannot carry a secret")

	rr = s.do(t, http.MethodPatch, "/me", "", map[string]string{"display_name": "x"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogin_RateLimitedSetsRetryAfter(t *testing.T) {
	lim := throttle.NewMemory(1, time.Minute, func() time.Time { return epoch })
	s := newTestServer(t, authn.WithLimiter(lim))

	rr := s.do(t, http.MethodPost, "/auth/login", "", creds("alice", "Wr0ng-Secret!"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(t, http.MethodPost, "/auth/login", "", creds("alice", "Wr0ng-Secret!"))
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "rate_limited", decodeErr(t, rr).Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/auth/login", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	rr = s.do(t, http.MethodDelete, "/me", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "198.51.100.4:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	assert.Equal(t, "198.51.100.4", clientIP(req, false).String())
	assert.Equal(t, "203.0.113.9", clientIP(req, true).String())

	req.RemoteAddr = "garbage"
	assert.Nil(t, clientIP(req, false))
}

func TestNewHandler_RequiresDeps(t *testing.T) {
	_, err := NewHandler(nil, DefaultConfig(), nil, nil)
	require.Error(t, err)
}

