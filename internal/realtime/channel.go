package realtime

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/YudoTLE/VelonY-sub000/internal/apperr"
)

// ChannelBroadcaster maps recipients to authenticated pub/sub channels. A
// connecting client must present a short-lived signed grant obtained from
// POST /realtime/auth; subscription is refused for any channel the grant
// does not name.
type ChannelBroadcaster struct {
	hub         *Hub
	grantSecret []byte
	upgrader    websocket.Upgrader
}

// NewChannelBroadcaster creates the grant-authenticated broadcaster.
func NewChannelBroadcaster(hub *Hub, grantSecret string, allowedOrigin string) *ChannelBroadcaster {
	return &ChannelBroadcaster{
		hub:         hub,
		grantSecret: []byte(grantSecret),
		upgrader:    newUpgrader(allowedOrigin),
	}
}

// Emit pushes one event into the recipient's channel. Failures are logged
// and swallowed.
func (b *ChannelBroadcaster) Emit(namespace, recipientKey, event string, payload any) {
	data := encodeEnvelope(namespace, event, payload)
	if data == nil {
		return
	}
	b.hub.Publish(scopeKey(namespace, recipientKey), data)
}

// Cleanup releases the transport resources.
func (b *ChannelBroadcaster) Cleanup() {
	b.hub.Close()
}

// ChannelName returns the channel a user's events are published on.
func ChannelName(userID string) string {
	return scopeKey(NamespaceUsers, userID)
}

// VerifyGrant checks a grant's signature and expiry and returns the user id
// and channel it authorizes.
func (b *ChannelBroadcaster) VerifyGrant(grant string) (userID, channel string, err error) {
	token, err := jwt.Parse(grant, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return b.grantSecret, nil
	}, jwt.WithExpirationRequired(), jwt.WithLeeway(5*time.Second))
	if err != nil {
		return "", "", apperr.Wrap(apperr.KindUnauthenticated, "invalid channel grant", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", apperr.New(apperr.KindUnauthenticated, "invalid grant claims")
	}

	sub, _ := claims["sub"].(string)
	ch, _ := claims["channel"].(string)
	if sub == "" || ch == "" {
		return "", "", apperr.New(apperr.KindUnauthenticated, "grant missing subject or channel")
	}
	return sub, ch, nil
}

// HandleSubscribe serves GET /realtime/subscribe?channel=...&grant=...: the
// grant is verified against the requested channel before the websocket is
// joined to it.
func (b *ChannelBroadcaster) HandleSubscribe(c echo.Context) error {
	requested := c.QueryParam("channel")
	grant := c.QueryParam("grant")
	if requested == "" || grant == "" {
		err := apperr.New(apperr.KindInvalid, "channel and grant are required")
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.PublicMessage(err))
	}

	userID, granted, err := b.VerifyGrant(grant)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.PublicMessage(err))
	}
	if granted != requested {
		err := apperr.New(apperr.KindUnauthenticated, "grant does not cover the requested channel")
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.PublicMessage(err))
	}

	conn, err := b.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	leave := b.hub.Join(requested, conn)
	defer leave()

	log.Debug().Str("user_id", userID).Str("channel", requested).Msg("channel client connected")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Debug().Str("user_id", userID).Str("channel", requested).Msg("channel client disconnected")
			return nil
		}
	}
}
