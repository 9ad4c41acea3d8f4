package model

import (
	"time"

	"github.com/google/uuid"
)

type CardStatus string

const (
	CardUnassigned CardStatus = "UNASSIGNED"
	CardActive     CardStatus = "ACTIVE"
	CardGifted     CardStatus = "GIFTED"
	CardReplaced   CardStatus = "REPLACED"
	CardExpired    CardStatus = "EXPIRED"
	CardRevoked    CardStatus = "REVOKED"
)

// Terminal reports whether no client action can move a card out of this status.
func (s CardStatus) Terminal() bool {
	return s == CardReplaced || s == CardExpired || s == CardRevoked
}

type Card struct {
	ID            int64      `json:"id"`
	PublicID      uuid.UUID  `json:"uuid"`
	CardNumber    string     `json:"cardNumber"`
	Status        CardStatus `json:"status"`
	ActivatedAt   *time.Time `json:"activatedAt"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	GiftedAt      *time.Time `json:"giftedAt,omitempty"`
	GiftedToEmail string     `json:"giftedToEmail,omitempty"`
	GiftedToName  string     `json:"giftedToName,omitempty"`
	GiftMessage   string     `json:"giftMessage,omitempty"`
	GiftClaimedAt *time.Time `json:"giftClaimedAt,omitempty"`
	OffersUsed    int        `json:"offersUsed"`
	TotalOffers   int        `json:"totalOffers"`
	ScoutName     string     `json:"scoutName,omitempty"`
}

// GiftOutstanding is true while a gift can still be cancelled or resent.
func (c Card) GiftOutstanding() bool {
	return c.Status == CardGifted && c.GiftClaimedAt == nil
}

// OwnedCards is the server-computed partition of the caller's cards.
type OwnedCards struct {
	ActiveCard            *Card  `json:"activeCard"`
	UnusedCards           []Card `json:"unusedCards"`
	GiftedCards           []Card `json:"giftedCards"`
	TotalCards            int    `json:"totalCards"`
	ActiveCardOffersUsed  int    `json:"activeCardOffersUsed"`
	ActiveCardTotalOffers int    `json:"activeCardTotalOffers"`
}

// Find looks a card up across all partitions.
func (o OwnedCards) Find(id int64) (Card, bool) {
	if o.ActiveCard != nil && o.ActiveCard.ID == id {
		return *o.ActiveCard, true
	}
	for _, c := range o.UnusedCards {
		if c.ID == id {
			return c, true
		}
	}
	for _, c := range o.GiftedCards {
		if c.ID == id {
			return c, true
		}
	}
	return Card{}, false
}
