package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Middleware rejects requests without a valid bearer token. A nil manager
// disables authentication. Paths in skip are always let through.
func Middleware(m *Manager, skip ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			for _, p := range skip {
				if c.Path() == p {
					return next(c)
				}
			}

			tokenString, ok := bearerToken(c.Request())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed authorization header")
			}

			claims, err := m.ValidateToken(tokenString)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					return echo.NewHTTPError(http.StatusUnauthorized, "token expired")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx := ContextWithSubject(c.Request().Context(), claims.Subject)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("subject", claims.Subject)

			return next(c)
		}
	}
}

// bearerToken reads the token from the Authorization header, or from the
// access_token query parameter for WebSocket clients that cannot set headers.
func bearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, found := strings.Cut(h, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", false
		}
		return token, true
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, true
	}
	return "", false
}
