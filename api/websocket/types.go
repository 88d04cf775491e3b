package websocket

import (
	"context"

	ws "codeberg.org/tinyurl/server/internal/websocket"
)

type ConnectParams struct {
	URLID int64  `form:"url_id" binding:"required,min=1"`
	Token string `form:"token"` // jwt for browsers that cannot set headers
}

type OwnershipChecker interface {
	Require(ctx context.Context, urlID, userID int64) error
}

type Deps struct {
	Hub            *ws.Hub
	Ownership      OwnershipChecker
	AllowedOrigins []string
}
