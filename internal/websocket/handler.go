package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"
)

// Handle upgrades r and streams events for accountID until the client leaves.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request, accountID int64) {
	conn, err := ws.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept", "error", err)
		return
	}
	defer conn.CloseNow()

	NewClient(h, conn, accountID).Run(r.Context())
}
