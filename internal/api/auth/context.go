package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/YudoTLE/VelonY-sub000/internal/apperr"
	"github.com/YudoTLE/VelonY-sub000/pkg/models"
)

const identityContextKey = "velony.identity"

// Identity is the authenticated caller attached to a request.
type Identity struct {
	User *models.User
}

// UserID returns the caller's user id, or "" when unauthenticated.
func (id *Identity) UserID() string {
	if id == nil || id.User == nil {
		return ""
	}
	return id.User.ID
}

// SetIdentity stores the identity on the echo context.
func SetIdentity(c echo.Context, id *Identity) {
	c.Set(identityContextKey, id)
}

// IdentityFrom extracts the caller identity from the echo context.
func IdentityFrom(c echo.Context) (*Identity, error) {
	id, ok := c.Get(identityContextKey).(*Identity)
	if !ok || id == nil || id.User == nil {
		return nil, apperr.New(apperr.KindUnauthenticated, "authentication required")
	}
	return id, nil
}
