package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for a wrong username or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService checks the configured admin credentials and issues JWTs.
type AuthService struct {
	adminUser    string
	passwordHash string
	jwtSecret    string
	expiration   time.Duration
}

// NewAuthService creates an auth service. expirationHours of zero falls back
// to 24 hours.
func NewAuthService(adminUser, passwordHash, jwtSecret string, expirationHours int) *AuthService {
	if expirationHours <= 0 {
		expirationHours = 24
	}
	return &AuthService{
		adminUser:    adminUser,
		passwordHash: passwordHash,
		jwtSecret:    jwtSecret,
		expiration:   time.Duration(expirationHours) * time.Hour,
	}
}

// Login verifies the credentials against the configured bcrypt hash and
// returns a signed token plus its lifetime in seconds.
func (s *AuthService) Login(username, password string) (string, int, error) {
	if username != s.adminUser || s.passwordHash == "" {
		return "", 0, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return "", 0, ErrInvalidCredentials
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"userId": s.adminUser,
		"iss":    "whisperplaud-api",
		"iat":    now.Unix(),
		"exp":    now.Add(s.expiration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", 0, err
	}
	return signed, int(s.expiration.Seconds()), nil
}
