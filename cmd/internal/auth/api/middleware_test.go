package authapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"credd/cmd/internal/auth/session"
	"credd/cmd/internal/autherr"
)

type stubVerifier struct {
	claims session.Claims
	err    error
	calls  int
}

func (v *stubVerifier) Verify(_ context.Context, raw string) (session.Claims, error) {
	v.calls++
	if v.err != nil {
		return session.Claims{}, v.err
	}
	return v.claims, nil
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		verifyErr error
		wantCode  int
		wantCalls int
	}{
		{"no header", "", nil, http.StatusUnauthorized, 0},
		{"wrong scheme", "Basic YWxpY2U6cHc=", nil, http.StatusUnauthorized, 0},
		{"empty bearer", "Bearer ", nil, http.StatusUnauthorized, 0},
		{"expired", "Bearer tok", autherr.E("test", autherr.ErrExpired, ""), http.StatusUnauthorized, 1},
		{"bad signature", "Bearer tok", autherr.E("test", autherr.ErrBadSignature, ""), http.StatusUnauthorized, 1},
		{"valid", "Bearer tok", nil, http.StatusNoContent, 1},
		{"lowercase scheme", "bearer tok", nil, http.StatusNoContent, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := &stubVerifier{claims: session.Claims{Subject: "alice"}, err: tc.verifyErr}

			var gotSubject string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotSubject, _ = SubjectFromContext(r.Context())
				w.WriteHeader(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			RequireAuth(v)(next).ServeHTTP(rr, req)

			assert.Equal(t, tc.wantCode, rr.Code)
			assert.Equal(t, tc.wantCalls, v.calls)
			if tc.wantCode == http.StatusNoContent {
				assert.Equal(t, "alice", gotSubject)
			} else {
				assert.Empty(t, gotSubject)
				assert.Contains(t, rr.Header().Get("WWW-Authenticate"), "Bearer")
			}
		})
	}
}

func TestSubjectFromContext_Empty(t *testing.T) {
	_, ok := SubjectFromContext(context.Background())
	assert.False(t, ok)
}
