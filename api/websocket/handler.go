package websocket

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"codeberg.org/tinyurl/server/internal/auth"
	"codeberg.org/tinyurl/server/internal/errors"
	"codeberg.org/tinyurl/server/internal/logger"
	ws "codeberg.org/tinyurl/server/internal/websocket"
)

// streams the clicks of one URL to its owner.
// the token may come from the Authorization header or the token query parameter.
func ClickFeedHandler(d Deps) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     ws.CheckOrigin(d.AllowedOrigins),
	}

	return func(c *gin.Context) {
		var params ConnectParams
		if err := c.ShouldBindQuery(&params); err != nil {
			errors.BadRequest(c, "invalid parameters", err)
			return
		}

		userID, ok := auth.GetUserID(c)
		if !ok {
			errors.Unauthorized(c, "valid authentication required")
			return
		}

		if err := d.Ownership.Require(c.Request.Context(), params.URLID, userID); err != nil {
			errors.Respond(c, "failed to verify ownership", err)
			return
		}

		// check connection limits before accepting new connection
		ipAddress := c.ClientIP()
		if canAccept, reason := d.Hub.CanAcceptConnection(userID, ipAddress); !canAccept {
			errors.TooManyRequests(c, reason)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.ErrorErr(err, "failed to upgrade connection",
				"url_id", params.URLID,
				"ip", ipAddress,
			)

			return
		}

		client := ws.NewClient(ws.GenerateClientID(), params.URLID, userID, ipAddress, conn, d.Hub)

		if !d.Hub.Attach(client) {
			logger.Warn("click feed rejected, hub stopped", "url_id", params.URLID)
			conn.Close() //nolint:errcheck,gosec // nothing else to do with it
			return
		}

		go client.WritePump()
		go client.ReadPump()

		logger.Info("click feed connection established",
			"client_id", client.ID,
			"url_id", params.URLID,
			"user_id", userID,
			"ip", ipAddress,
		)
	}
}
