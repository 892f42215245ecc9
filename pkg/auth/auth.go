// Package auth issues and checks the bearer tokens that guard the HTTP API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSecret = errors.New("jwt secret is required")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
)

const (
	DefaultIssuer   = "deskpilot"
	DefaultTokenTTL = 24 * time.Hour
)

// Claims are the JWT claims of an API token. The subject names the caller.
type Claims struct {
	jwt.RegisteredClaims
}

// Manager signs and validates HS256 tokens.
type Manager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

type Option func(*Manager)

func WithIssuer(issuer string) Option {
	return func(m *Manager) { m.issuer = issuer }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(secret string, opts ...Option) (*Manager, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	m := &Manager{
		secret: []byte(secret),
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// GenerateToken creates a token for subject valid for ttl (DefaultTokenTTL if zero).
func (m *Manager) GenerateToken(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := m.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks the signature, issuer and validity window of a token.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type contextKey struct{}

// SubjectFromContext returns the authenticated caller, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(contextKey{}).(string)
	return sub, ok
}

func ContextWithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, contextKey{}, subject)
}
