package gift

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dukerupert/scoutcard/internal/apperr"
	"github.com/dukerupert/scoutcard/internal/model"
)

// State is where a recipient is in redeeming one gift token.
type State int

const (
	StateIdle State = iota
	StateFetched
	StateClaiming
	StateClaimed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetched:
		return "fetched"
	case StateClaiming:
		return "claiming"
	case StateClaimed:
		return "claimed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// sessionTransitions lists, for each target state, the states it may be
// entered from. A failed claim must be followed by a fresh fetch before
// another claim, so Claiming is only reachable from Fetched.
var sessionTransitions = map[State][]State{
	StateFetched:  {StateIdle, StateFetched, StateFailed},
	StateClaiming: {StateFetched},
	StateClaimed:  {StateClaiming},
	StateFailed:   {StateIdle, StateFetched, StateClaiming, StateFailed},
}

// ErrInvalidState is returned for an operation the session's state forbids.
var ErrInvalidState = errors.New("gift session: invalid state")

// Session tracks one recipient's redemption of one token.
type Session struct {
	p     *Protocol
	token string

	mu      sync.Mutex
	state   State
	details model.GiftDetails
	result  model.ClaimResult
	err     error
}

func (p *Protocol) NewSession(token string) *Session {
	return &Session{p: p, token: token}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Details returns the last fetched gift details.
func (s *Session) Details() model.GiftDetails {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.details
}

// Result returns the claim result once the session is claimed.
func (s *Session) Result() (model.ClaimResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.state == StateClaimed
}

// Err returns the failure that moved the session to StateFailed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Terminal reports whether the token can no longer be redeemed.
func (s *Session) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClaimed {
		return true
	}
	return s.state == StateFailed && (errors.Is(s.err, apperr.ErrNotFound) ||
		errors.Is(s.err, apperr.ErrGone) ||
		errors.Is(s.err, apperr.ErrConflict))
}

// move transitions to next. Caller holds s.mu.
func (s *Session) move(next State) error {
	if !slices.Contains(sessionTransitions[next], s.state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, s.state, next)
	}
	s.state = next
	return nil
}

// Fetch reads the gift. Allowed from any state except Claiming and Claimed.
func (s *Session) Fetch(ctx context.Context) (model.GiftDetails, error) {
	s.mu.Lock()
	if s.state == StateClaiming || s.state == StateClaimed {
		st := s.state
		s.mu.Unlock()
		return model.GiftDetails{}, fmt.Errorf("%w: fetch while %s", ErrInvalidState, st)
	}
	s.mu.Unlock()

	details, err := s.p.FetchGiftDetails(ctx, s.token)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.fail(err)
		return model.GiftDetails{}, err
	}
	if err := s.move(StateFetched); err != nil {
		return model.GiftDetails{}, err
	}
	s.details = details
	s.err = nil
	return details, nil
}

// Claim claims into the signed-in account.
func (s *Session) Claim(ctx context.Context) (model.ClaimResult, error) {
	return s.claim(func() (model.ClaimResult, error) {
		return s.p.ClaimAsAuthenticatedUser(ctx, s.token)
	})
}

// ClaimAsNewUser claims into a new account built from reg.
func (s *Session) ClaimAsNewUser(ctx context.Context, reg model.Registration) (model.ClaimResult, error) {
	return s.claim(func() (model.ClaimResult, error) {
		return s.p.ClaimAsNewUser(ctx, s.token, reg)
	})
}

func (s *Session) claim(call func() (model.ClaimResult, error)) (model.ClaimResult, error) {
	s.mu.Lock()
	if err := s.move(StateClaiming); err != nil {
		s.mu.Unlock()
		return model.ClaimResult{}, err
	}
	s.mu.Unlock()

	res, err := call()

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err == nil:
		s.result = res
		s.state = StateClaimed
		return res, nil
	case res.Card.ID != 0:
		// Claimed, but the follow-up sign-in failed.
		s.result = res
		s.state = StateClaimed
		s.err = err
		return res, err
	case errors.Is(err, apperr.ErrValidation) && apperr.StatusOf(err) == 0:
		// Rejected before anything was sent.
		s.state = StateFetched
		return model.ClaimResult{}, err
	default:
		s.fail(err)
		return model.ClaimResult{}, err
	}
}

// fail records err. Caller holds s.mu.
func (s *Session) fail(err error) {
	s.state = StateFailed
	s.err = err
}
