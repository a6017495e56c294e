package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenService issues and verifies the HS256 bearer tokens that bind a
// connection to a user id. With an empty secret it is disabled and callers
// fall back to the identity asserted by the client.
type TokenService struct {
	jwtSecret string
	jwtExpiry time.Duration
	now       func() time.Time
}

func NewTokenService(jwtSecret string, jwtExpiry time.Duration) *TokenService {
	return &TokenService{
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
		now:       time.Now,
	}
}

func (s *TokenService) Enabled() bool {
	return s != nil && s.jwtSecret != ""
}

// Issue signs a token for userID. In production tokens come from the auth
// service sharing JWT_SECRET; the server's -issue-token flag uses this for
// local clients.
func (s *TokenService) Issue(userID string) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, errors.New("token signing is disabled")
	}
	if userID == "" {
		return "", time.Time{}, errors.New("user id is required")
	}

	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.jwtExpiry)
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": expiresAt.Unix(),
		"iat": issuedAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify returns the user id carried in the token's subject.
func (s *TokenService) Verify(tokenString string) (string, error) {
	if !s.Enabled() {
		return "", ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}
