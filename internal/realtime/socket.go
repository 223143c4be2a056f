package realtime

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/YudoTLE/VelonY-sub000/internal/api/auth"
	"github.com/YudoTLE/VelonY-sub000/internal/apperr"
)

// SocketBroadcaster maps recipients directly to per-user websocket rooms. A
// connecting client authenticates with its bearer token and is joined to
// the room equal to its own user id; it cannot choose another room.
type SocketBroadcaster struct {
	hub      *Hub
	tokens   *auth.TokenService
	upgrader websocket.Upgrader
}

// NewSocketBroadcaster creates the room-based broadcaster.
func NewSocketBroadcaster(hub *Hub, tokens *auth.TokenService, allowedOrigin string) *SocketBroadcaster {
	return &SocketBroadcaster{
		hub:      hub,
		tokens:   tokens,
		upgrader: newUpgrader(allowedOrigin),
	}
}

// Emit pushes one event into the recipient's room. Failures are logged and
// swallowed; emission must never abort the caller.
func (b *SocketBroadcaster) Emit(namespace, recipientKey, event string, payload any) {
	data := encodeEnvelope(namespace, event, payload)
	if data == nil {
		return
	}
	b.hub.Publish(scopeKey(namespace, recipientKey), data)
}

// Cleanup releases the transport resources.
func (b *SocketBroadcaster) Cleanup() {
	b.hub.Close()
}

// HandleWS serves GET /realtime/ws: authenticate, upgrade, and pin the
// connection to the caller's own room until it drops. Inbound frames are
// read and discarded; the socket is downstream-only.
func (b *SocketBroadcaster) HandleWS(c echo.Context) error {
	token := auth.BearerToken(c)
	if token == "" {
		err := apperr.New(apperr.KindUnauthenticated, "missing bearer token")
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.PublicMessage(err))
	}

	user, err := b.tokens.ValidateAccessToken(c.Request().Context(), token)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.PublicMessage(err))
	}

	conn, err := b.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	leave := b.hub.Join(scopeKey(NamespaceUsers, user.ID), conn)
	defer leave()

	log.Debug().Str("user_id", user.ID).Msg("socket client connected")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Debug().Str("user_id", user.ID).Msg("socket client disconnected")
			return nil
		}
	}
}

func newUpgrader(allowedOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}
}
