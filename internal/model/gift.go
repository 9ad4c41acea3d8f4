package model

import "time"

type GiftDetails struct {
	CardNumber  string     `json:"cardNumber"`
	SenderName  string     `json:"senderName"`
	SenderEmail string     `json:"senderEmail"`
	Message     string     `json:"message"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	Status      CardStatus `json:"status"`
}

type GiftRequest struct {
	RecipientEmail string `json:"recipientEmail" validate:"required,email"`
	RecipientName  string `json:"recipientName,omitempty" validate:"max=120"`
	GiftMessage    string `json:"giftMessage,omitempty" validate:"max=500"`
}

type ClaimResult struct {
	Card             Card   `json:"card"`
	User             *User  `json:"user,omitempty"`
	AccessCredential string `json:"accessCredential,omitempty"`
}
