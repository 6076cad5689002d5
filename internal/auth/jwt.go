// Package auth provides password hashing, the signed session cookie, and the
// route guards built on it.
//
// SESSION FLOW:
//  1. POST / with action=register or action=login succeeds
//  2. The handler calls SessionManager.Issue, which signs the user's
//     identity snapshot {id, name, email, avatar} into an HS256 JWT and sets
//     it as the HttpOnly "session" cookie
//  3. On later requests RequireSession reads the cookie, verifies the
//     signature and expiry, and puts the snapshot in the request context
//  4. GET /logout clears the cookie
//
// The snapshot is not re-read from the database per request. The profile
// handler re-issues the cookie after an avatar change.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/roomchat/internal/model"
)

const issuer = "roomchat"

// TokenService signs and verifies session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret and lifetime.
// The secret should be at least 32 bytes of random data in production.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: session lifetime must be positive")
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL returns the lifetime of tokens issued by Generate.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the JWT payload. Subject holds the user id; the remaining
// snapshot fields ride along as private claims.
type claims struct {
	jwt.RegisteredClaims
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

// Generate signs a token for the session snapshot with the configured lifetime.
func (s *TokenService) Generate(user model.SessionUser) (string, error) {
	return s.GenerateWithDuration(user, s.ttl)
}

// GenerateWithDuration signs a token that expires after d.
// Used in tests to produce already-expired tokens.
func (s *TokenService) GenerateWithDuration(user model.SessionUser, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
		Name:   user.Name,
		Email:  user.Email,
		Avatar: user.Avatar,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a token and returns the snapshot it carries.
//
// The library checks the signature, expiry and issuer; WithValidMethods pins
// the algorithm to HS256 so a token with "alg":"none" is refused.
func (s *TokenService) Validate(tokenStr string) (model.SessionUser, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.SessionUser{}, fmt.Errorf("auth: token expired")
		}
		return model.SessionUser{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return model.SessionUser{}, fmt.Errorf("auth: invalid token claims")
	}

	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return model.SessionUser{}, fmt.Errorf("auth: token has no valid subject")
	}

	return model.SessionUser{
		ID:     id,
		Name:   c.Name,
		Email:  c.Email,
		Avatar: c.Avatar,
	}, nil
}
