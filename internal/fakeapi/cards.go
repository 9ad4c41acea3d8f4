package fakeapi

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/dukerupert/scoutcard/internal/email"
	"github.com/dukerupert/scoutcard/internal/middleware"
	"github.com/dukerupert/scoutcard/internal/model"
	"github.com/dukerupert/scoutcard/internal/validate"
	"github.com/dukerupert/scoutcard/internal/websocket"
)

func (s *Server) myCards(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountID(r.Context())

	s.mu.Lock()
	owned := s.partition(accountID)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, owned)
}

// partition computes the owned-cards view. Terminal cards count toward the
// total but appear in no list. Caller holds s.mu.
func (s *Server) partition(accountID int64) model.OwnedCards {
	out := model.OwnedCards{
		UnusedCards: []model.Card{},
		GiftedCards: []model.Card{},
	}
	ids := make([]int64, 0)
	for id := range s.cards {
		if s.owners[id] == accountID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		c := s.cards[id]
		s.settle(c)
		out.TotalCards++
		switch c.Status {
		case model.CardActive:
			active := *c
			out.ActiveCard = &active
			out.ActiveCardOffersUsed = c.OffersUsed
			out.ActiveCardTotalOffers = c.TotalOffers
		case model.CardUnassigned:
			out.UnusedCards = append(out.UnusedCards, *c)
		case model.CardGifted:
			out.GiftedCards = append(out.GiftedCards, *c)
		}
	}
	return out
}

func cardID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}

func (s *Server) activate(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountID(r.Context())
	id, ok := cardID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "", "invalid card id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.ownedCard(accountID, id)
	if !ok {
		writeError(w, http.StatusNotFound, "", "card not found")
		return
	}
	if c.Status != model.CardUnassigned {
		writeError(w, http.StatusConflict, "", "card is "+strings.ToLower(string(c.Status))+", only unused cards can be activated")
		return
	}

	s.demoteActive(accountID, id)
	now := s.now()
	c.Status = model.CardActive
	c.ActivatedAt = &now
	c.ExpiresAt = s.cfg.ProgramExpiry
	c.OffersUsed = 0
	c.TotalOffers = s.cfg.TotalOffers

	s.logger.Info("card activated", "account_id", accountID, "card_id", id)
	s.hub.Publish(accountID, websocket.Event{Type: websocket.CardActivated, CardID: id})
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) gift(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountID(r.Context())
	id, ok := cardID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "", "invalid card id")
		return
	}
	var req model.GiftRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}
	req.RecipientEmail = strings.TrimSpace(req.RecipientEmail)
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "", err.Error())
		return
	}

	s.mu.Lock()
	c, ok := s.ownedCard(accountID, id)
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "", "card not found")
		return
	}
	if c.Status != model.CardUnassigned {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "", "only unused cards can be gifted")
		return
	}

	now := s.now()
	c.Status = model.CardGifted
	c.GiftedAt = &now
	c.GiftedToEmail = req.RecipientEmail
	c.GiftedToName = req.RecipientName
	c.GiftMessage = req.GiftMessage
	c.GiftClaimedAt = nil

	tok := randomToken(24)
	s.gifts[tok] = &giftToken{cardID: id, expiresAt: now.Add(s.cfg.GiftTTL)}
	s.giftByCard[id] = tok
	notice := s.giftNotice(id)
	s.mu.Unlock()

	s.logger.Info("card gifted", "account_id", accountID, "card_id", id)
	s.hub.Publish(accountID, websocket.Event{Type: websocket.CardGifted, CardID: id})
	s.dispatch(r.Context(), id, notice)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) cancelGift(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountID(r.Context())
	id, ok := cardID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "", "invalid card id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.ownedCard(accountID, id)
	if !ok {
		writeError(w, http.StatusNotFound, "", "card not found")
		return
	}
	if c.Status != model.CardGifted {
		writeError(w, http.StatusConflict, "", "card has no outstanding gift")
		return
	}
	if c.GiftClaimedAt != nil {
		writeError(w, http.StatusConflict, "already_claimed", "gift was already claimed")
		return
	}

	if g, ok := s.gifts[s.giftByCard[id]]; ok {
		g.state = giftCancelled
	}
	delete(s.giftByCard, id)

	c.Status = model.CardUnassigned
	c.GiftedAt = nil
	c.GiftedToEmail = ""
	c.GiftedToName = ""
	c.GiftMessage = ""

	s.logger.Info("gift cancelled", "account_id", accountID, "card_id", id)
	s.hub.Publish(accountID, websocket.Event{Type: websocket.CardGiftCanceled, CardID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resendGift(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountID(r.Context())
	id, ok := cardID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "", "invalid card id")
		return
	}

	s.mu.Lock()
	c, ok := s.ownedCard(accountID, id)
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "", "card not found")
		return
	}
	if !c.GiftOutstanding() {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "", "card has no outstanding gift")
		return
	}
	notice := s.giftNotice(id)
	s.mu.Unlock()

	s.dispatch(r.Context(), id, notice)
	w.WriteHeader(http.StatusNoContent)
}

// giftNotice builds the email for cardID's outstanding gift. Caller holds s.mu.
func (s *Server) giftNotice(cardID int64) email.GiftNotice {
	c := s.cards[cardID]
	tok := s.giftByCard[cardID]
	var sender string
	if a, ok := s.accounts[s.owners[cardID]]; ok {
		sender = strings.TrimSpace(a.user.FirstName + " " + a.user.LastName)
	}
	return email.GiftNotice{
		To:            c.GiftedToEmail,
		RecipientName: c.GiftedToName,
		SenderName:    sender,
		Message:       c.GiftMessage,
		ClaimURL:      s.cfg.PublicURL + "/gift/" + tok,
		ExpiresAt:     s.gifts[tok].expiresAt,
	}
}

// dispatch sends a gift notice. Delivery failures are logged; the gift
// itself stands.
func (s *Server) dispatch(ctx context.Context, cardID int64, n email.GiftNotice) {
	s.mu.Lock()
	s.dispatches[cardID]++
	count := s.dispatches[cardID]
	s.mu.Unlock()

	if err := s.cfg.Mailer.SendGift(ctx, n); err != nil {
		s.logger.Error("send gift email", "card_id", cardID, "error", err)
		return
	}
	s.logger.Info("gift email sent", "card_id", cardID, "dispatches", count)
}
