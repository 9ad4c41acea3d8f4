package cards

import (
	"fmt"
	"strings"

	"github.com/dukerupert/scoutcard/internal/apperr"
	"github.com/dukerupert/scoutcard/internal/model"
)

// Action is a user-initiated card operation.
type Action string

const (
	ActionActivate   Action = "activate"
	ActionGift       Action = "gift"
	ActionCancelGift Action = "cancel-gift"
	ActionResendGift Action = "resend-gift"
)

// transition names the status a card must be in for an action and the
// status the server moves it to. Guard adds conditions beyond the status.
type transition struct {
	From  model.CardStatus
	To    model.CardStatus
	Guard func(model.Card) error
}

var transitions = map[Action]transition{
	ActionActivate: {From: model.CardUnassigned, To: model.CardActive},
	ActionGift:     {From: model.CardUnassigned, To: model.CardGifted},
	ActionCancelGift: {
		From:  model.CardGifted,
		To:    model.CardUnassigned,
		Guard: unclaimed,
	},
	// Resend dispatches the gift email again without a transition.
	ActionResendGift: {
		From:  model.CardGifted,
		To:    model.CardGifted,
		Guard: unclaimed,
	},
}

func unclaimed(c model.Card) error {
	if c.GiftClaimedAt != nil {
		return apperr.New(apperr.ErrAlreadyClaimed, "gift on card %s was already claimed", c.CardNumber)
	}
	return nil
}

// Allowed reports whether action may be applied to c, judged from the
// client's last view. The server remains authoritative.
func Allowed(action Action, c model.Card) error {
	t, ok := transitions[action]
	if !ok {
		return fmt.Errorf("unknown card action %q", action)
	}
	if c.Status != t.From {
		return apperr.New(apperr.ErrConflict, "cannot %s card %s: it is %s",
			action, c.CardNumber, strings.ToLower(string(c.Status)))
	}
	if t.Guard != nil {
		return t.Guard(c)
	}
	return nil
}

// Target returns the status the server moves a card to for action.
func Target(action Action) (model.CardStatus, bool) {
	t, ok := transitions[action]
	return t.To, ok
}
