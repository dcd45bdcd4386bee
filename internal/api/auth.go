package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/quillbox/quillbox/internal/logging"
	"github.com/quillbox/quillbox/internal/metrics"
	"github.com/quillbox/quillbox/internal/token"
)

// handleLogin verifies the instance password and issues a session and
// refresh token pair. Attempts are rate limited per client IP.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.limiter.Allow(ip, s.config.LoginRatePerMin) {
		metrics.RecordRateLimitHit()
		retry := s.limiter.RetryAfter(ip, s.config.LoginRatePerMin)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		s.sendError(w, http.StatusTooManyRequests, codeRateLimited, "too many login attempts")
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.RecordAuthAttempt(false)
		s.sendError(w, http.StatusBadRequest, codeMissingParameter, "invalid request body")
		return
	}
	if req.Password == "" {
		metrics.RecordAuthAttempt(false)
		s.sendError(w, http.StatusBadRequest, codeMissingParameter, "password required")
		return
	}

	if !s.checkPassword(req.Password) {
		metrics.RecordAuthAttempt(false)
		logging.Warn("login failed: invalid password", zap.String("ip", ip))
		s.sendError(w, http.StatusUnauthorized, codeInvalidPassword, "invalid password")
		return
	}

	s.issueTokenPair(w)
	metrics.RecordAuthAttempt(true)
}

// handleRefresh exchanges a valid refresh token for a new pair.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		s.sendError(w, http.StatusBadRequest, codeMissingParameter, "refreshToken required")
		return
	}

	claims := s.tokens.Verify(req.RefreshToken)
	if claims == nil || claims.Subject != refreshSubject {
		s.sendError(w, http.StatusUnauthorized, codeAuthInvalid, "invalid or expired token")
		return
	}

	s.issueTokenPair(w)
}

const (
	sessionSubject = "user"
	refreshSubject = "refresh"
)

func (s *Server) issueTokenPair(w http.ResponseWriter) {
	session, _, err := s.tokens.IssueSession(sessionSubject)
	if err != nil {
		logging.Error("failed to sign session token", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, codeServerError, "internal server error")
		return
	}
	refresh, _, err := s.tokens.IssueRefresh(refreshSubject)
	if err != nil {
		logging.Error("failed to sign refresh token", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, codeServerError, "internal server error")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]any{
		"token":        session,
		"refreshToken": refresh,
		"expiresIn":    token.SessionLifetime(),
	})
}

// checkPassword compares the submitted password against the configured
// bcrypt hash, or the plaintext fallback when no hash is set.
func (s *Server) checkPassword(password string) bool {
	if s.config.AuthPasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(s.config.AuthPasswordHash), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(s.config.AuthPassword), []byte(password)) == 1
}
