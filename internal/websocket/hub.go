// Package websocket carries card change notifications. The Hub fans events
// out to the connections of the account that owns the card; ReadEvents is
// the client side of the same feed.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	ws "github.com/coder/websocket"
)

// Event types broadcast by the card service.
const (
	CardActivated    = "card_activated"
	CardReplaced     = "card_replaced"
	CardGifted       = "card_gifted"
	CardGiftCanceled = "card_gift_cancelled"
	CardGiftClaimed  = "card_gift_claimed"
	CardRevoked      = "card_revoked"
)

// Event tells an account that one of its cards changed. It carries no card
// state; receivers re-fetch.
type Event struct {
	Type   string `json:"type"`
	CardID int64  `json:"cardId"`
}

// Hub maintains the active connections per account.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]int64
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]int64),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = c.accountID
	h.mu.Unlock()
}

// Unregister removes a client and closes its send channel. Safe to repeat.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Publish sends ev to every connection of accountID. Slow connections drop
// events rather than block the publisher.
func (h *Hub) Publish(accountID int64, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c, owner := range h.clients {
		if owner != accountID {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping card event", "account_id", accountID, "type", ev.Type)
		}
	}
}

// ClientCount returns the number of connections for accountID.
func (h *Hub) ClientCount(accountID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, owner := range h.clients {
		if owner == accountID {
			n++
		}
	}
	return n
}

// ReadEvents decodes events from conn and calls fn for each until the
// connection closes or ctx is done.
func ReadEvents(ctx context.Context, conn *ws.Conn, fn func(Event)) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		fn(ev)
	}
}
