package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asanchez/btcfolio/internal/config"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	return New(Config{
		Log: zerolog.Nop(),
		Config: &config.Config{
			Port:        0,
			AppPassword: "correct horse",
			SecretKey:   "test-signing-secret",
			TokenTTL:    time.Hour,
			CORSOrigins: []string{"http://localhost:3000"},
			DevMode:     true,
		},
	})
}

func TestToken_RoundTrip(t *testing.T) {
	s := testServer(t)
	token := s.issueToken()
	assert.True(t, s.verifyToken(token))
}

func TestToken_TamperedSignatureRejected(t *testing.T) {
	s := testServer(t)
	token := s.issueToken()

	parts := strings.Split(token, ".")
	require.Len(t, parts, 2)
	assert.False(t, s.verifyToken(parts[0]+".AAAA"))
	assert.False(t, s.verifyToken(parts[0]))
	assert.False(t, s.verifyToken(""))
}

func TestToken_DifferentSecretRejected(t *testing.T) {
	a := testServer(t)
	b := testServer(t)
	b.cfg.SecretKey = "another secret"

	assert.False(t, b.verifyToken(a.issueToken()))
}

func TestToken_ExpiredRejected(t *testing.T) {
	s := testServer(t)
	s.cfg.TokenTTL = -time.Minute

	assert.False(t, s.verifyToken(s.issueToken()))
}

func TestHandleLogin(t *testing.T) {
	s := testServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"password":"correct horse"}`))
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "access_token")
	assert.Contains(t, rec.Body.String(), `"token_type":"bearer"`)
}

func TestHandleLogin_WrongPassword(t *testing.T) {
	s := testServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"password":"nope"}`))
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "access_token")
	// The envelope carries the error as a plain string.
	assert.Contains(t, rec.Body.String(), `"error":"invalid password"`)
}

func TestAuthMiddleware_RejectsMissingAndMalformedHeaders(t *testing.T) {
	s := testServer(t)

	for _, header := range []string{"", "Bearer", "Bearer bogus-token", "Basic dXNlcg=="} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		s.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestHealthEndpointIsPublic(t *testing.T) {
	s := testServer(t)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
