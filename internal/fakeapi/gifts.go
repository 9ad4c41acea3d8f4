package fakeapi

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/scoutcard/internal/middleware"
	"github.com/dukerupert/scoutcard/internal/model"
	"github.com/dukerupert/scoutcard/internal/validate"
	"github.com/dukerupert/scoutcard/internal/websocket"
)

// lookupGift resolves a token for reading. Consumed and cancelled tokens are
// indistinguishable from unknown ones. Caller holds s.mu.
func (s *Server) lookupGift(token string) (*giftToken, int) {
	g, ok := s.gifts[token]
	if !ok || g.state != giftOpen {
		return nil, http.StatusNotFound
	}
	if !s.now().Before(g.expiresAt) {
		return nil, http.StatusGone
	}
	return g, http.StatusOK
}

func (s *Server) giftDetails(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, status := s.lookupGift(r.PathValue("token"))
	switch status {
	case http.StatusNotFound:
		writeError(w, status, "", "gift not found or already claimed")
		return
	case http.StatusGone:
		writeError(w, status, "", "gift has expired")
		return
	}

	c := s.cards[g.cardID]
	sender := s.accounts[s.owners[g.cardID]].user
	writeJSON(w, http.StatusOK, model.GiftDetails{
		CardNumber:  c.CardNumber,
		SenderName:  strings.TrimSpace(sender.FirstName + " " + sender.LastName),
		SenderEmail: sender.Email,
		Message:     c.GiftMessage,
		ExpiresAt:   g.expiresAt,
		Status:      c.Status,
	})
}

// claimGift consumes a gift token. With a registration body it creates the
// recipient's account in the same critical section; otherwise the caller
// must present an access credential.
func (s *Server) claimGift(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	var body registrationBody
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "", "invalid request body")
			return
		}
	}
	newUser := body.Email != ""

	var (
		recipientID int64
		hash        []byte
		reg         model.Registration
	)
	if newUser {
		reg = body.registration()
		if err := validate.Struct(reg); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "", err.Error())
			return
		}
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.MinCost)
		if err != nil {
			s.logger.Error("hash password", "error", err)
			writeError(w, http.StatusInternalServerError, "", "internal error")
			return
		}
	} else {
		bearer := middleware.BearerToken(r)
		if bearer == "" {
			writeError(w, http.StatusUnauthorized, "", "sign in or register to claim")
			return
		}
		id, err := s.verifyAccess(bearer)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "", "credential expired or invalid")
			return
		}
		recipientID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.gifts[token]
	if !ok {
		writeError(w, http.StatusNotFound, "", "gift not found")
		return
	}
	switch g.state {
	case giftConsumed:
		writeError(w, http.StatusConflict, "already_claimed", "gift was already claimed")
		return
	case giftCancelled:
		writeError(w, http.StatusConflict, "gift_cancelled", "gift was cancelled by the sender")
		return
	}
	if !s.now().Before(g.expiresAt) {
		writeError(w, http.StatusGone, "", "gift has expired")
		return
	}

	resp := model.ClaimResult{}
	if newUser {
		user, err := s.createAccountLocked(reg.Email, hash, reg.FirstName, reg.LastName)
		if err != nil {
			writeError(w, http.StatusConflict, "email_taken", "an account with that email already exists")
			return
		}
		access, err := s.issueAccess(user.ID)
		if err != nil {
			s.logger.Error("issue access credential", "error", err)
			writeError(w, http.StatusInternalServerError, "", "internal error")
			return
		}
		recipientID = user.ID
		resp.User = &user
		resp.AccessCredential = access
	}

	now := s.now()
	g.state = giftConsumed
	original := s.cards[g.cardID]
	original.GiftClaimedAt = &now
	senderID := s.owners[g.cardID]
	delete(s.giftByCard, g.cardID)

	s.demoteActive(recipientID, 0)
	card := s.newCard(recipientID, model.CardActive)
	resp.Card = *card

	s.logger.Info("gift claimed", "card_id", g.cardID, "recipient_id", recipientID, "new_account", newUser)
	s.hub.Publish(senderID, websocket.Event{Type: websocket.CardGiftClaimed, CardID: g.cardID})
	s.hub.Publish(recipientID, websocket.Event{Type: websocket.CardActivated, CardID: card.ID})
	writeJSON(w, http.StatusOK, resp)
}
