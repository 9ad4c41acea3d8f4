// Package cards drives the card lifecycle. The Manager holds the last
// server snapshot of the caller's cards and applies user actions through
// the gateway. It never mutates the snapshot locally: every success and
// every conflict is followed by a re-fetch, and the snapshot is replaced
// verbatim.
package cards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/dukerupert/scoutcard/internal/apperr"
	"github.com/dukerupert/scoutcard/internal/gateway"
	"github.com/dukerupert/scoutcard/internal/model"
	"github.com/dukerupert/scoutcard/internal/validate"
)

// API is the part of the gateway the manager uses.
type API interface {
	Do(ctx context.Context, req gateway.Request, out any) error
	Dial(ctx context.Context, path string) (*websocket.Conn, error)
}

// Confirmation is obtained from PrepareActivation and passed to Activate.
// It names what the activation will replace so the caller can present it.
type Confirmation struct {
	CardID   int64
	Card     model.Card
	Replaces *model.Card
	// OffersRemaining on the card being replaced, forfeited on activation.
	OffersRemaining int
}

type Manager struct {
	api    API
	logger *slog.Logger

	mu     sync.Mutex
	view   model.OwnedCards
	loaded bool
	// fetches numbers each list call when it is issued; adopted is the
	// number of the snapshot in view. A stale mark records the last number
	// issued when it was set and is cleared only by a later-issued fetch.
	fetches  uint64
	adopted  uint64
	stale    map[int64]uint64
	inflight map[int64]Action
}

func NewManager(api API, logger *slog.Logger) *Manager {
	return &Manager{
		api:      api,
		logger:   logger.With("component", "cards"),
		stale:    make(map[int64]uint64),
		inflight: make(map[int64]Action),
	}
}

// ListOwnedCards fetches the caller's cards and adopts the server partition
// as the new view. On failure the previous view is kept. A response that
// arrives after a later-issued one is returned but not adopted, and it only
// clears stale marks set before it was issued.
func (m *Manager) ListOwnedCards(ctx context.Context) (model.OwnedCards, error) {
	m.mu.Lock()
	m.fetches++
	seq := m.fetches
	m.mu.Unlock()

	var owned model.OwnedCards
	err := m.api.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/cards/my-cards"}, &owned)
	if err != nil {
		return model.OwnedCards{}, fmt.Errorf("list cards: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if seq > m.adopted {
		m.view = owned
		m.adopted = seq
		m.loaded = true
	} else {
		m.logger.Debug("dropped out-of-order card snapshot", "fetch", seq, "adopted", m.adopted)
	}
	for id, mark := range m.stale {
		if mark < seq {
			delete(m.stale, id)
		}
	}
	return owned, nil
}

// Refresh is ListOwnedCards without the result.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err := m.ListOwnedCards(ctx)
	return err
}

// View returns the last adopted snapshot.
func (m *Manager) View() model.OwnedCards {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

// Stale reports whether cardID must be re-fetched before another action.
func (m *Manager) Stale(cardID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.stale[cardID]
	return ok
}

// PrepareActivation checks that cardID can be activated and describes what
// activating it would replace.
func (m *Manager) PrepareActivation(ctx context.Context, cardID int64) (Confirmation, error) {
	card, err := m.lookup(ctx, cardID)
	if err != nil {
		return Confirmation{}, err
	}
	if err := Allowed(ActionActivate, card); err != nil {
		return Confirmation{}, err
	}

	conf := Confirmation{CardID: cardID, Card: card}
	m.mu.Lock()
	if active := m.view.ActiveCard; active != nil {
		replaced := *active
		conf.Replaces = &replaced
		conf.OffersRemaining = max(m.view.ActiveCardTotalOffers-m.view.ActiveCardOffersUsed, 0)
	}
	m.mu.Unlock()
	return conf, nil
}

// Activate makes the confirmed card the caller's active card. The server
// demotes any previously active card to REPLACED.
func (m *Manager) Activate(ctx context.Context, conf Confirmation) (model.Card, error) {
	if conf.CardID == 0 {
		return model.Card{}, apperr.Validation("activation has not been confirmed")
	}

	var card model.Card
	err := m.mutate(ctx, ActionActivate, conf.CardID, func() error {
		return m.api.Do(ctx, gateway.Request{
			Method: http.MethodPost,
			Path:   cardPath(conf.CardID, "activate"),
		}, &card)
	})
	if err != nil {
		return model.Card{}, err
	}
	return card, nil
}

// Gift sends an unused card to a recipient by email.
func (m *Manager) Gift(ctx context.Context, cardID int64, req model.GiftRequest) error {
	req.RecipientEmail = strings.TrimSpace(req.RecipientEmail)
	req.RecipientName = strings.TrimSpace(req.RecipientName)
	if err := validate.Struct(req); err != nil {
		return err
	}
	return m.mutate(ctx, ActionGift, cardID, func() error {
		return m.api.Do(ctx, gateway.Request{
			Method: http.MethodPost,
			Path:   cardPath(cardID, "gift"),
			Body:   req,
		}, nil)
	})
}

// CancelGift returns an unclaimed gifted card to UNASSIGNED.
func (m *Manager) CancelGift(ctx context.Context, cardID int64) error {
	return m.mutate(ctx, ActionCancelGift, cardID, func() error {
		return m.api.Do(ctx, gateway.Request{Method: http.MethodPost, Path: cardPath(cardID, "cancel-gift")}, nil)
	})
}

// ResendGift asks the server to email the gift again. Repeating it is safe.
func (m *Manager) ResendGift(ctx context.Context, cardID int64) error {
	return m.mutate(ctx, ActionResendGift, cardID, func() error {
		return m.api.Do(ctx, gateway.Request{Method: http.MethodPost, Path: cardPath(cardID, "resend-gift")}, nil)
	})
}

func cardPath(id int64, op string) string {
	return "/cards/" + strconv.FormatInt(id, 10) + "/" + op
}

// lookup finds cardID in the view, loading it first if needed.
func (m *Manager) lookup(ctx context.Context, cardID int64) (model.Card, error) {
	m.mu.Lock()
	loaded := m.loaded
	m.mu.Unlock()
	if !loaded {
		if err := m.Refresh(ctx); err != nil {
			return model.Card{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stale[cardID]; ok {
		return model.Card{}, apperr.New(apperr.ErrStaleView, "card %d changed state in an unconfirmed way; refresh before retrying", cardID)
	}
	card, ok := m.view.Find(cardID)
	if !ok {
		return model.Card{}, apperr.New(apperr.ErrNotFound, "card %d is not one of your cards", cardID)
	}
	return card, nil
}

// mutate runs one action against cardID. The guard is checked against the
// view, the call is made, and the view is re-fetched after a success or a
// server rejection. A transient failure
// leaves the outcome unknown, so the card is marked stale until the next
// successful refresh.
func (m *Manager) mutate(ctx context.Context, action Action, cardID int64, call func() error) error {
	card, err := m.lookup(ctx, cardID)
	if err != nil {
		return err
	}
	if err := Allowed(action, card); err != nil {
		return err
	}

	m.mu.Lock()
	if running, busy := m.inflight[cardID]; busy {
		m.mu.Unlock()
		return apperr.New(apperr.ErrConflict, "card %d: %s already in progress", cardID, running)
	}
	m.inflight[cardID] = action
	m.mu.Unlock()

	err = call()

	m.mu.Lock()
	delete(m.inflight, cardID)
	m.mu.Unlock()

	log := m.logger.With("action", string(action), "card_id", cardID)
	switch {
	case err == nil:
		log.Info("card action confirmed")
		if rerr := m.Refresh(ctx); rerr != nil {
			log.Warn("refresh after card action", "error", rerr)
			m.markStale(cardID)
		}
		return nil
	case errors.Is(err, apperr.ErrConflict),
		errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrGone),
		errors.Is(err, apperr.ErrValidation) && apperr.StatusOf(err) != 0:
		log.Info("card action rejected, refreshing", "error", err)
		if rerr := m.Refresh(ctx); rerr != nil {
			log.Warn("refresh after rejection", "error", rerr)
			m.markStale(cardID)
		}
	case errors.Is(err, apperr.ErrTransient):
		log.Warn("card action outcome unknown", "error", err)
		m.markStale(cardID)
	}
	return fmt.Errorf("%s card %d: %w", action, cardID, err)
}

// markStale blocks further actions on cardID until a fetch issued after
// this call completes.
func (m *Manager) markStale(cardID int64) {
	m.mu.Lock()
	m.stale[cardID] = m.fetches
	m.mu.Unlock()
}
