package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/YudoTLE/VelonY-sub000/internal/apperr"
)

// BearerToken pulls the bearer token from the Authorization header, falling
// back to the access_token query parameter for websocket upgrades where
// browsers cannot set headers.
func BearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.QueryParam("access_token")
}

// Middleware returns echo middleware that authenticates the request and
// attaches the caller Identity. Requests without a valid token are rejected
// before the handler runs.
func Middleware(tokens *TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := BearerToken(c)
			if token == "" {
				err := apperr.New(apperr.KindUnauthenticated, "missing bearer token")
				return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.PublicMessage(err))
			}

			user, err := tokens.ValidateAccessToken(c.Request().Context(), token)
			if err != nil {
				return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.PublicMessage(err))
			}

			SetIdentity(c, &Identity{User: user})
			return next(c)
		}
	}
}
