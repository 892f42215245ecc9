package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RoundTrip(t *testing.T) {
	t.Parallel()

	m, err := NewManager("secret")
	require.NoError(t, err)

	token, err := m.GenerateToken("alice", time.Hour)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, DefaultIssuer, claims.Issuer)
}

func TestManager_Rejects(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m, err := NewManager("secret", WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	other, err := NewManager("other")
	require.NoError(t, err)
	foreign, err := NewManager("secret", WithIssuer("someone-else"))
	require.NoError(t, err)

	expired, err := m.GenerateToken("alice", time.Minute)
	require.NoError(t, err)
	later, err := NewManager("secret", WithClock(func() time.Time { return now.Add(time.Hour) }))
	require.NoError(t, err)
	_, err = later.ValidateToken(expired)
	require.ErrorIs(t, err, ErrTokenExpired)

	wrongKey, err := other.GenerateToken("alice", time.Hour)
	require.NoError(t, err)
	_, err = m.ValidateToken(wrongKey)
	require.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := foreign.GenerateToken("alice", time.Hour)
	require.NoError(t, err)
	_, err = m.ValidateToken(wrongIssuer)
	require.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "alice"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.ValidateToken(none)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ValidateToken("garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewManager_RequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := NewManager("")
	require.ErrorIs(t, err, ErrMissingSecret)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	m, err := NewManager("secret")
	require.NoError(t, err)
	token, err := m.GenerateToken("bob", time.Hour)
	require.NoError(t, err)

	e := echo.New()
	e.Use(Middleware(m, "/health"))
	handler := func(c echo.Context) error {
		sub, _ := SubjectFromContext(c.Request().Context())
		return c.String(http.StatusOK, sub)
	}
	e.GET("/health", handler)
	e.GET("/private", handler)

	tests := []struct {
		name   string
		target string
		header string
		status int
		body   string
	}{
		{name: "health is open", target: "/health", status: http.StatusOK},
		{name: "missing header", target: "/private", status: http.StatusUnauthorized},
		{name: "wrong scheme", target: "/private", header: "Basic " + token, status: http.StatusUnauthorized},
		{name: "bad token", target: "/private", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "bearer", target: "/private", header: "Bearer " + token, status: http.StatusOK, body: "bob"},
		{name: "query token", target: "/private?access_token=" + token, status: http.StatusOK, body: "bob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, tt.target, http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestMiddleware_DisabledWithoutManager(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(Middleware(nil))
	e.GET("/private", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/private", http.NoBody))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
