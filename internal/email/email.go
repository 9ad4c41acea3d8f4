// Package email delivers the reference backend's outbound mail: gift
// notices and password reset links.
package email

import (
	"context"
	"sync"
	"time"
)

// Mailer sends the backend's transactional email.
type Mailer interface {
	SendGift(ctx context.Context, n GiftNotice) error
	SendPasswordReset(ctx context.Context, to, link string) error
}

// GiftNotice tells a recipient a card is waiting for them.
type GiftNotice struct {
	To            string
	RecipientName string
	SenderName    string
	Message       string
	ClaimURL      string
	ExpiresAt     time.Time
}

// Message is one email as recorded by Outbox.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Outbox keeps sent mail in memory.
type Outbox struct {
	mu   sync.Mutex
	sent []Message
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) SendGift(_ context.Context, n GiftNotice) error {
	subject, body := giftContent(n)
	o.record(Message{To: n.To, Subject: subject, Body: body})
	return nil
}

func (o *Outbox) SendPasswordReset(_ context.Context, to, link string) error {
	subject, body := resetContent(link)
	o.record(Message{To: to, Subject: subject, Body: body})
	return nil
}

func (o *Outbox) record(m Message) {
	o.mu.Lock()
	o.sent = append(o.sent, m)
	o.mu.Unlock()
}

// Sent returns a copy of every recorded message, oldest first.
func (o *Outbox) Sent() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.sent...)
}
