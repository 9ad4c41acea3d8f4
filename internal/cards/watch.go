package cards

import (
	"context"
	"fmt"

	"github.com/dukerupert/scoutcard/internal/websocket"
)

const eventsPath = "/cards/events"

// Watch subscribes to the card change feed and re-fetches the view on each
// event before calling onChange. It returns when ctx is done or the feed
// closes.
func (m *Manager) Watch(ctx context.Context, onChange func(websocket.Event)) error {
	conn, err := m.api.Dial(ctx, eventsPath)
	if err != nil {
		return fmt.Errorf("subscribe to card events: %w", err)
	}
	defer conn.CloseNow()

	m.logger.Debug("watching card events")
	return websocket.ReadEvents(ctx, conn, func(ev websocket.Event) {
		if err := m.Refresh(ctx); err != nil {
			m.logger.Warn("refresh after card event", "type", ev.Type, "card_id", ev.CardID, "error", err)
		}
		if onChange != nil {
			onChange(ev)
		}
	})
}
