// Package auth issues JWTs for the store's admin account.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 12 * time.Hour

// RoleAdmin is the only role that may call /api/admin endpoints.
const RoleAdmin = "admin"

// ErrInvalidCredentials is returned when the username or password does not match.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Service checks admin credentials and signs tokens.
type Service struct {
	username     string
	passwordHash []byte
	jwtSecret    []byte
	now          func() time.Time
}

// NewService creates a new auth Service. passwordHash is a bcrypt digest;
// an empty hash disables login.
func NewService(username, passwordHash, jwtSecret string) *Service {
	return &Service{
		username:     username,
		passwordHash: []byte(passwordHash),
		jwtSecret:    []byte(jwtSecret),
		now:          time.Now,
	}
}

// Login returns a signed admin token for matching credentials.
func (s *Service) Login(username, password string) (string, error) {
	if len(s.passwordHash) == 0 {
		return "", ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) != 1 {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := s.issueToken(username)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// issueToken creates a signed JWT for the admin user.
func (s *Service) issueToken(username string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  username,
		"role": RoleAdmin,
		"iat":  now.Unix(),
		"exp":  now.Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
