package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const postmarkEndpoint = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	endpoint    string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithEndpoint overrides the Postmark API URL.
func WithEndpoint(url string) Option {
	return func(cl *Client) {
		cl.endpoint = url
	}
}

func NewClient(serverToken, fromEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		endpoint:    postmarkEndpoint,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	TextBody string `json:"TextBody"`
}

func giftContent(n GiftNotice) (subject, body string) {
	sender := n.SenderName
	if sender == "" {
		sender = "A member"
	}
	subject = fmt.Sprintf("%s sent you a membership card", sender)

	var b strings.Builder
	if n.RecipientName != "" {
		fmt.Fprintf(&b, "Hi %s,\n\n", n.RecipientName)
	}
	fmt.Fprintf(&b, "%s sent you a membership card.\n\n", sender)
	if n.Message != "" {
		fmt.Fprintf(&b, "%q\n\n", n.Message)
	}
	fmt.Fprintf(&b, "Claim it here:\n\n%s\n\nThis link expires on %s.", n.ClaimURL, n.ExpiresAt.UTC().Format("January 2, 2006"))
	return subject, b.String()
}

func resetContent(link string) (subject, body string) {
	return "Reset your password",
		fmt.Sprintf("Use the link below to choose a new password:\n\n%s\n\nThis link expires in 1 hour.", link)
}

func (c *Client) SendGift(ctx context.Context, n GiftNotice) error {
	subject, body := giftContent(n)
	return c.send(ctx, n.To, subject, body)
}

func (c *Client) SendPasswordReset(ctx context.Context, to, link string) error {
	subject, body := resetContent(link)
	return c.send(ctx, to, subject, body)
}

func (c *Client) send(ctx context.Context, to, subject, text string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	body, err := json.Marshal(postmarkEmail{
		From:     c.fromEmail,
		To:       to,
		Subject:  subject,
		TextBody: text,
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
