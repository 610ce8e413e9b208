package web

import (
	"net/http"

	"chat-relay/auth"
	"chat-relay/relay"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"
)

// wsHandler upgrades an authenticated request into a relay session and
// blocks until that session ends. One goroutine per live connection:
// iris already runs each request on its own.
func wsHandler(d Deps) iris.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	return func(ctx iris.Context) {
		token := ctx.URLParam("token")
		if token == "" {
			token = bearerToken(ctx)
		}
		claims, err := auth.ValidateToken(token)
		if err != nil {
			// AuthFailure: the session never starts, no registry mutation.
			ctx.StopWithJSON(iris.StatusUnauthorized, iris.Map{"detail": "invalid token"})
			return
		}

		wsConn, err := upgrader.Upgrade(ctx.ResponseWriter(), ctx.Request(), nil)
		if err != nil {
			d.Log.Error("WebSocket upgrade failed", "user_id", claims.UserID, "error", err)
			return
		}

		conn := relay.NewConn(d.Log, claims.UserID, wsConn, d.ConnectionBufferSize)
		session := relay.NewSession(
			d.Log, d.Registry, d.Presence, d.Chat, d.Monitoring, conn,
			d.ReadTimeout, d.PingInterval, d.WriteTimeout,
		)
		d.Log.Info("WebSocket connected", "user_id", claims.UserID)
		session.Run(d.RelayCtx)
	}
}
