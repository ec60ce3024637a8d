package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Bearer tokens are HMAC-SHA256 signed expiry timestamps:
// base64url(expiry-unix) + "." + base64url(hmac(secret, expiry-unix)).
// Single-user, stateless, no refresh; re-login after expiry.

func (s *Server) issueToken() string {
	payload := strconv.FormatInt(time.Now().UTC().Add(s.cfg.TokenTTL).Unix(), 10)
	mac := hmac.New(sha256.New, []byte(s.cfg.SecretKey))
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) +
		"." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (s *Server) verifyToken(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return false
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.SecretKey))
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return false
	}

	expiry, err := strconv.ParseInt(string(payload), 10, 64)
	if err != nil {
		return false
	}
	return time.Now().UTC().Unix() < expiry
}

// authMiddleware rejects requests without a valid bearer token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || !s.verifyToken(token) {
			s.writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleLogin exchanges the app password for a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.cfg.AppPassword)) != 1 {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("Failed login attempt")
		s.writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"access_token": s.issueToken(),
		"token_type":   "bearer",
		"expires_in":   int(s.cfg.TokenTTL.Seconds()),
	})
}
