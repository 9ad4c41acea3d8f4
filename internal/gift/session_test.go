package gift

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/scoutcard/internal/apperr"
)

func TestSessionHappyPath(t *testing.T) {
	e := setup(t)
	s := e.recipient(t, "friend@example.com").NewSession(e.token)
	ctx := context.Background()

	assert.Equal(t, StateIdle, s.State())

	_, err := s.Claim(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)

	details, err := s.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateFetched, s.State())
	assert.Equal(t, details, s.Details())

	res, err := s.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateClaimed, s.State())
	got, ok := s.Result()
	assert.True(t, ok)
	assert.Equal(t, res.Card.ID, got.Card.ID)
	assert.True(t, s.Terminal())

	_, err = s.Fetch(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSessionFailedClaimRequiresFetch(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	winner := e.recipient(t, "first@example.com")
	loser := e.recipient(t, "second@example.com").NewSession(e.token)

	_, err := loser.Fetch(ctx)
	require.NoError(t, err)

	_, err = winner.ClaimAsAuthenticatedUser(ctx, e.token)
	require.NoError(t, err)

	_, err = loser.Claim(ctx)
	assert.ErrorIs(t, err, apperr.ErrAlreadyClaimed)
	assert.Equal(t, StateFailed, loser.State())
	assert.ErrorIs(t, loser.Err(), apperr.ErrAlreadyClaimed)
	assert.True(t, loser.Terminal())

	_, err = loser.Claim(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = loser.Fetch(ctx)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, StateFailed, loser.State())
}

func TestSessionValidationKeepsFetched(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	s := e.protocol(e.gateway(t, 0)).NewSession(e.token)

	_, err := s.Fetch(ctx)
	require.NoError(t, err)

	reg := registration("not-an-email")
	_, err = s.ClaimAsNewUser(ctx, reg)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, StateFetched, s.State())

	_, err = s.ClaimAsNewUser(ctx, registration("nia@example.com"))
	require.NoError(t, err)
	assert.Equal(t, StateClaimed, s.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "claiming", StateClaiming.String())
	assert.Equal(t, "State(9)", State(9).String())
}
