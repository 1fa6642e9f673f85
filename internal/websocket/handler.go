package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/chorekeeper/internal/auth"
)

// HandleWebSocket upgrades an authenticated request and runs it as a hub
// client until the connection closes.
func HandleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: hub.origins,
		})
		if err != nil {
			hub.logger.Warn("websocket accept", "user_id", userID, "error", err)
			return
		}

		hub.logger.Debug("listener connected", "user_id", userID)
		NewClient(hub, conn, userID).Run(r.Context())
		hub.logger.Debug("listener disconnected", "user_id", userID)
	}
}
