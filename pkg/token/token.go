// Package token issues and verifies signed user-identity tokens used for
// stateless auto-login.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/NicolasHaas/chatwire/pkg/model"
)

// Claims is the signed encoding of a user's public fields.
type Claims struct {
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
	ServerID int64  `json:"server_id"`
	Staff    bool   `json:"staff"`
	Admin    bool   `json:"admin"`
	jwt.RegisteredClaims
}

// Service signs and verifies identity tokens with the process secret.
// Tokens carry no expiry unless the service is given a non-zero TTL.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService creates a token service. ttl of zero means issued tokens
// never expire.
func NewService(secret string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), ttl: ttl}
}

// Issue encodes the user's public claims and signs them, returning an
// opaque token string.
func (s *Service) Issue(u model.User) (string, error) {
	claims := Claims{
		UserID:   u.UserID,
		UserName: u.UserName,
		ServerID: u.ServerID,
		Staff:    u.Staff,
		Admin:    u.Admin,
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(s.ttl))
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify validates the token's signature and structure. Any tampering,
// secret mismatch, or incomplete claims yields (false, zero User), never
// a partial user.
func (s *Service) Verify(raw string) (bool, model.User) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return false, model.User{}
	}
	if claims.UserID == 0 || claims.UserName == "" {
		return false, model.User{}
	}
	return true, model.User{
		UserID:   claims.UserID,
		UserName: claims.UserName,
		ServerID: claims.ServerID,
		Staff:    claims.Staff,
		Admin:    claims.Admin,
	}
}
