// Package gift implements the recipient side of gift redemption: reading a
// gift by its token and claiming it, either into the signed-in account or
// into a new account created in the same server operation.
package gift

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/dukerupert/scoutcard/internal/apperr"
	"github.com/dukerupert/scoutcard/internal/gateway"
	"github.com/dukerupert/scoutcard/internal/model"
	"github.com/dukerupert/scoutcard/internal/validate"
)

// API is the part of the gateway the protocol uses.
type API interface {
	Do(ctx context.Context, req gateway.Request, out any) error
}

// Authenticator signs in after a new-account claim.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (model.User, error)
}

type Protocol struct {
	api    API
	authn  Authenticator
	logger *slog.Logger
}

func NewProtocol(api API, authn Authenticator, logger *slog.Logger) *Protocol {
	return &Protocol{api: api, authn: authn, logger: logger.With("component", "gift")}
}

func giftPath(token string) string {
	return "/cards/gift/" + url.PathEscape(token)
}

func checkToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return apperr.Validation("gift token is required")
	}
	return nil
}

// FetchGiftDetails reads a gift without consuming it. It is safe to repeat.
// An unknown, claimed or cancelled token fails with apperr.ErrNotFound; an
// expired one with apperr.ErrGone.
func (p *Protocol) FetchGiftDetails(ctx context.Context, token string) (model.GiftDetails, error) {
	if err := checkToken(token); err != nil {
		return model.GiftDetails{}, err
	}
	var details model.GiftDetails
	err := p.api.Do(ctx, gateway.Request{
		Method:    http.MethodGet,
		Path:      giftPath(token),
		Anonymous: true,
	}, &details)
	if err != nil {
		return model.GiftDetails{}, fmt.Errorf("fetch gift: %w", err)
	}
	return details, nil
}

// ClaimAsAuthenticatedUser moves the gift onto the signed-in account as its
// new active card. A lost race fails with apperr.ErrAlreadyClaimed or
// apperr.ErrGiftCancelled.
func (p *Protocol) ClaimAsAuthenticatedUser(ctx context.Context, token string) (model.ClaimResult, error) {
	if err := checkToken(token); err != nil {
		return model.ClaimResult{}, err
	}
	var res model.ClaimResult
	err := p.api.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   giftPath(token) + "/claim",
	}, &res)
	if err != nil {
		return model.ClaimResult{}, fmt.Errorf("claim gift: %w", err)
	}
	p.logger.Info("gift claimed", "card_id", res.Card.ID)
	return res, nil
}

// ClaimAsNewUser registers an account and claims the gift into it in one
// server operation, then signs in with the new credentials. If the claim
// succeeds but sign-in fails, the result is returned with the error; the
// card belongs to the new account either way.
func (p *Protocol) ClaimAsNewUser(ctx context.Context, token string, reg model.Registration) (model.ClaimResult, error) {
	if err := checkToken(token); err != nil {
		return model.ClaimResult{}, err
	}
	reg.Email = strings.TrimSpace(reg.Email)
	reg.FirstName = strings.TrimSpace(reg.FirstName)
	reg.LastName = strings.TrimSpace(reg.LastName)
	if err := validate.Struct(reg); err != nil {
		return model.ClaimResult{}, err
	}

	var res model.ClaimResult
	err := p.api.Do(ctx, gateway.Request{
		Method:    http.MethodPost,
		Path:      giftPath(token) + "/claim",
		Body:      reg,
		Anonymous: true,
	}, &res)
	if err != nil {
		return model.ClaimResult{}, fmt.Errorf("claim gift: %w", err)
	}
	p.logger.Info("gift claimed into new account", "card_id", res.Card.ID)

	if _, err := p.authn.Login(ctx, reg.Email, reg.Password); err != nil {
		return res, fmt.Errorf("sign in after claim: %w", err)
	}
	return res, nil
}
