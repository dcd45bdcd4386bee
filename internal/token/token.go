// Package token issues and verifies the signed tokens used by Quillbox:
// session tokens (an authenticated user), refresh tokens (longer-lived
// session variant), and share tokens (bound to exactly one logical path).
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quillbox/quillbox/internal/pathsafe"
)

const (
	issuer          = "quillbox"
	sessionLifetime = 24 * time.Hour
	refreshLifetime = 7 * 24 * time.Hour
)

// Share TTL labels accepted by IssueShare.
var shareTTLs = map[string]time.Duration{
	"1h":    time.Hour,
	"24h":   24 * time.Hour,
	"7d":    7 * 24 * time.Hour,
	"30d":   30 * 24 * time.Hour,
	"never": 0,
}

// Claims holds token claims. A verified token is a share token iff Path
// is non-empty; otherwise it is a session token identified by Subject.
type Claims struct {
	Path string `json:"path,omitempty"`
	jwt.RegisteredClaims
}

// IsShare reports whether the claims belong to a share token.
func (c *Claims) IsShare() bool {
	return c.Path != ""
}

// Service signs and verifies tokens with a single HMAC secret.
type Service struct {
	secret []byte
}

// NewService creates a token service from the configured signing secret.
func NewService(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

// IssueSession signs a 24h session token for the given subject.
func (s *Service) IssueSession(subject string) (string, time.Time, error) {
	return s.issue(&Claims{}, subject, sessionLifetime)
}

// IssueRefresh signs a 7d refresh token for the given subject.
func (s *Service) IssueRefresh(subject string) (string, time.Time, error) {
	return s.issue(&Claims{}, subject, refreshLifetime)
}

// IssueShare signs a share token bound to one logical path. The path is
// validated before signing; ttl must be one of 1h, 24h, 7d, 30d, never.
// The binding cannot be altered after issuance.
func (s *Service) IssueShare(path, ttl string) (string, time.Time, error) {
	normalized, err := pathsafe.Normalize(path)
	if err != nil {
		return "", time.Time{}, err
	}
	lifetime, ok := shareTTLs[ttl]
	if !ok {
		return "", time.Time{}, fmt.Errorf("invalid share ttl %q", ttl)
	}
	return s.issue(&Claims{Path: normalized}, "share", lifetime)
}

func (s *Service) issue(claims *Claims, subject string, lifetime time.Duration) (string, time.Time, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
		Issuer:   issuer,
	}
	var expires time.Time
	if lifetime > 0 {
		expires = now.Add(lifetime)
		claims.ExpiresAt = jwt.NewNumericDate(expires)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks signature and expiry. It returns nil for any failure,
// whether malformed, badly signed or expired, without distinguishing
// the reason, so callers cannot tell a forged token from an expired one.
func (s *Service) Verify(tokenStr string) *Claims {
	if tokenStr == "" {
		return nil
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil
	}
	return claims
}

// SessionLifetime returns the session token lifetime in seconds, for the
// login response's expiresIn field.
func SessionLifetime() int64 {
	return int64(sessionLifetime / time.Second)
}
