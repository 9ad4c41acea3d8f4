package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"token expired"}`, ErrUnauthorized},
		{"not found", http.StatusNotFound, `{"error":"gift not found"}`, ErrNotFound},
		{"gone", http.StatusGone, `{"error":"gift expired"}`, ErrGone},
		{"plain conflict", http.StatusConflict, `{"error":"card is not unassigned"}`, ErrConflict},
		{"already claimed", http.StatusConflict, `{"error":"claimed","code":"already_claimed"}`, ErrAlreadyClaimed},
		{"gift cancelled", http.StatusConflict, `{"error":"cancelled","code":"gift_cancelled"}`, ErrGiftCancelled},
		{"bad request", http.StatusBadRequest, `{"error":"invalid email"}`, ErrValidation},
		{"server error", http.StatusBadGateway, `upstream down`, ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromResponse(tt.status, []byte(tt.body))
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, tt.status, err.Status)
		})
	}
}

func TestClaimConflictsMatchConflict(t *testing.T) {
	err := FromResponse(http.StatusConflict, []byte(`{"code":"already_claimed"}`))
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.NotErrorIs(t, err, ErrGiftCancelled)
}

func TestPlainBodyBecomesMessage(t *testing.T) {
	err := FromResponse(http.StatusConflict, []byte("card already active\n"))
	assert.Equal(t, "card already active", err.Message)
	assert.Equal(t, "conflict (409): card already active", err.Error())
}

func TestWrappedKindsSurviveFmtWrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("list cards: %w", Transient(cause))
	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, cause)
	assert.Zero(t, StatusOf(err))
}
