package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims carries the authenticated username. Usernames are case-insensitive
// identifiers; they are lowercased at mint time so every downstream key
// (presence, leases, slots) sees one canonical form.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Manager mints and validates HMAC-signed session tokens.
type Manager struct {
	secret   []byte
	tokenTTL time.Duration
	issuer   string
}

// NewManager creates a token manager with the given signing secret.
func NewManager(secret string, tokenTTL time.Duration, issuer string) *Manager {
	return &Manager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		issuer:   issuer,
	}
}

// Mint issues a token for username.
func (m *Manager) Mint(username string) (token string, expiresAt int64, err error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return "", 0, ErrInvalidToken
	}

	now := time.Now()
	exp := now.Add(m.tokenTTL)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Username: username,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", 0, err
	}
	return signed, exp.Unix(), nil
}

// Validate parses a token and returns its claims.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Username == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
