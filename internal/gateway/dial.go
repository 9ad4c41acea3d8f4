package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/dukerupert/scoutcard/internal/apperr"
)

// Dial opens an authenticated websocket to path. An expired credential is
// renewed through the same single-flight refresh as Do.
func (g *Gateway) Dial(ctx context.Context, path string) (*websocket.Conn, error) {
	requestID := ulid.Make().String()

	creds, err := g.store.Load(ctx, g.cfg.Scope)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	var conn *websocket.Conn
	attempt := func(access string) error {
		var err error
		conn, err = g.dial(ctx, path, access, requestID)
		return err
	}

	err = attempt(creds.Access)
	if errors.Is(err, apperr.ErrUnauthorized) {
		err = g.recover(ctx, creds.Access, requestID, attempt)
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (g *Gateway) dial(ctx context.Context, path, access, requestID string) (*websocket.Conn, error) {
	u := g.cfg.BaseURL + path
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}

	header := http.Header{}
	header.Set("X-Request-ID", requestID)
	if access != "" {
		header.Set("Authorization", "Bearer "+access)
	}

	dctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	conn, resp, err := websocket.Dial(dctx, u, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, apperr.FromResponse(resp.StatusCode, nil)
		}
		return nil, apperr.Transient(fmt.Errorf("dial %s: %w", path, err))
	}
	return conn, nil
}
