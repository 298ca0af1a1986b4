package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ResolveFunc maps a token to the local user id that owns the socket.
type ResolveFunc func(ctx context.Context, token string) (string, error)

// NotificationsHandler upgrades GET /ws/notifications?token=... and streams
// the user's notifications. allowed filters the Origin header; nil allows all.
func NotificationsHandler(hub *Hub, resolve ResolveFunc, allowed func(origin string) bool) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowed == nil {
				return true
			}
			return allowed(r.Header.Get("Origin"))
		},
	}

	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token", "code": "unauthorized"})
			return
		}
		userID, err := resolve(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token", "code": "unauthorized"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
			return
		}
		client := hub.Register(userID, conn)
		hub.log.Debug().Str("user_id", userID).Msg("notification socket connected")
		hub.Greet(client, Event{Type: "connected"})

		hub.ReadPump(client)
		hub.log.Debug().Str("user_id", userID).Msg("notification socket disconnected")
	}
}
