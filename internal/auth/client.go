package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/scoutcard/internal/gateway"
	"github.com/dukerupert/scoutcard/internal/model"
	"github.com/dukerupert/scoutcard/internal/validate"
)

// Client performs the credential-establishing calls. None of them take part
// in credential refresh.
type Client struct {
	gw     *gateway.Gateway
	logger *slog.Logger
}

func NewClient(gw *gateway.Gateway, logger *slog.Logger) *Client {
	return &Client{gw: gw, logger: logger.With("component", "auth")}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessCredential  string     `json:"accessCredential"`
	RenewalCredential string     `json:"renewalCredential"`
	User              model.User `json:"user"`
}

// Login exchanges an email and password for a credential pair and stores it.
func (c *Client) Login(ctx context.Context, email, password string) (model.User, error) {
	email = strings.TrimSpace(email)
	if err := validate.Email(email); err != nil {
		return model.User{}, err
	}

	var resp loginResponse
	err := c.gw.Do(ctx, gateway.Request{
		Method:    http.MethodPost,
		Path:      "/auth/login",
		Body:      loginRequest{Email: email, Password: password},
		Anonymous: true,
	}, &resp)
	if err != nil {
		return model.User{}, fmt.Errorf("login: %w", err)
	}

	if err := c.gw.SignIn(ctx, model.Credentials{
		Access:  resp.AccessCredential,
		Renewal: resp.RenewalCredential,
	}); err != nil {
		return model.User{}, err
	}
	c.logger.Info("signed in", "user_id", resp.User.ID)
	return resp.User, nil
}

// Register creates an account. It does not sign in.
func (c *Client) Register(ctx context.Context, reg model.Registration) (model.User, error) {
	reg.Email = strings.TrimSpace(reg.Email)
	if err := validate.Struct(reg); err != nil {
		return model.User{}, err
	}

	var user model.User
	err := c.gw.Do(ctx, gateway.Request{
		Method:    http.MethodPost,
		Path:      "/auth/register",
		Body:      reg,
		Anonymous: true,
	}, &user)
	if err != nil {
		return model.User{}, fmt.Errorf("register: %w", err)
	}
	return user, nil
}

// RequestPasswordReset asks the server to email a reset link.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := validate.Email(email); err != nil {
		return err
	}
	err := c.gw.Do(ctx, gateway.Request{
		Method:    http.MethodPost,
		Path:      "/auth/password-reset",
		Body:      map[string]string{"email": email},
		Anonymous: true,
	}, nil)
	if err != nil {
		return fmt.Errorf("password reset: %w", err)
	}
	return nil
}

// Logout purges the stored credentials.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.gw.SignOut(ctx); err != nil {
		return err
	}
	c.logger.Info("signed out")
	return nil
}
