package gift

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/scoutcard/internal/apperr"
	"github.com/dukerupert/scoutcard/internal/auth"
	"github.com/dukerupert/scoutcard/internal/credential"
	"github.com/dukerupert/scoutcard/internal/fakeapi"
	"github.com/dukerupert/scoutcard/internal/gateway"
	"github.com/dukerupert/scoutcard/internal/model"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type env struct {
	srv    *fakeapi.Server
	ts     *httptest.Server
	sender *gateway.Gateway
	card   model.Card
	token  string
}

// setup starts a backend with one outstanding gift.
func setup(t *testing.T) *env {
	t.Helper()
	e := &env{srv: fakeapi.New(fakeapi.Config{}, discard)}
	e.ts = httptest.NewServer(e.srv.Router())
	t.Cleanup(e.ts.Close)

	u, err := e.srv.CreateAccount("sender@example.com", "correct-horse-9", "Sid", "Sender")
	require.NoError(t, err)
	e.sender = e.gateway(t, u.ID)
	e.card = e.srv.AddCard(u.ID, model.CardUnassigned)

	err = e.sender.Do(context.Background(), gateway.Request{
		Method: http.MethodPost,
		Path:   "/cards/" + strconv.FormatInt(e.card.ID, 10) + "/gift",
		Body:   model.GiftRequest{RecipientEmail: "friend@example.com", GiftMessage: "for you"},
	}, nil)
	require.NoError(t, err)

	var ok bool
	e.token, ok = e.srv.GiftToken(e.card.ID)
	require.True(t, ok)
	return e
}

// gateway returns a gateway signed in as accountID, or anonymous for 0.
func (e *env) gateway(t *testing.T, accountID int64) *gateway.Gateway {
	t.Helper()
	store := credential.NewMemoryStore()
	if accountID != 0 {
		access, renewal, err := e.srv.IssueCredentials(accountID)
		require.NoError(t, err)
		require.NoError(t, store.Save(context.Background(), "default", model.Credentials{Access: access, Renewal: renewal}))
	}
	return gateway.New(gateway.Config{BaseURL: e.ts.URL, Timeout: 5 * time.Second}, store, gateway.WithLogger(discard))
}

func (e *env) protocol(gw *gateway.Gateway) *Protocol {
	return NewProtocol(gw, auth.NewClient(gw, discard), discard)
}

func (e *env) recipient(t *testing.T, email string) *Protocol {
	t.Helper()
	u, err := e.srv.CreateAccount(email, "correct-horse-9", "Rae", "Recipient")
	require.NoError(t, err)
	return e.protocol(e.gateway(t, u.ID))
}

func registration(email string) model.Registration {
	return model.Registration{
		Email:           email,
		Password:        "correct-horse-9",
		PasswordConfirm: "correct-horse-9",
		FirstName:       "Nia",
		LastName:        "New",
	}
}

func TestFetchGiftDetails(t *testing.T) {
	e := setup(t)
	p := e.protocol(e.gateway(t, 0))

	details, err := p.FetchGiftDetails(context.Background(), e.token)
	require.NoError(t, err)
	assert.Equal(t, "Sid Sender", details.SenderName)
	assert.Equal(t, "for you", details.Message)
	assert.Equal(t, model.CardGifted, details.Status)

	// Reading does not consume the token.
	_, err = p.FetchGiftDetails(context.Background(), e.token)
	require.NoError(t, err)

	_, err = p.FetchGiftDetails(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = p.FetchGiftDetails(context.Background(), "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	e.srv.ExpireGift(e.card.ID)
	_, err = p.FetchGiftDetails(context.Background(), e.token)
	assert.ErrorIs(t, err, apperr.ErrGone)
}

func TestClaimAsAuthenticatedUser(t *testing.T) {
	e := setup(t)
	p := e.recipient(t, "friend@example.com")

	res, err := p.ClaimAsAuthenticatedUser(context.Background(), e.token)
	require.NoError(t, err)
	assert.Equal(t, model.CardActive, res.Card.Status)
	assert.Nil(t, res.User)

	_, err = p.FetchGiftDetails(context.Background(), e.token)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = p.ClaimAsAuthenticatedUser(context.Background(), e.token)
	assert.ErrorIs(t, err, apperr.ErrAlreadyClaimed)

	original, _ := e.srv.Card(e.card.ID)
	assert.NotNil(t, original.GiftClaimedAt)
}

func TestClaimAsNewUserSignsIn(t *testing.T) {
	e := setup(t)
	gw := e.gateway(t, 0)
	p := e.protocol(gw)

	res, err := p.ClaimAsNewUser(context.Background(), e.token, registration("nia@example.com"))
	require.NoError(t, err)
	require.NotNil(t, res.User)
	assert.Equal(t, "nia@example.com", res.User.Email)
	assert.NotEmpty(t, res.AccessCredential)

	signedIn, err := gw.SignedIn(context.Background())
	require.NoError(t, err)
	assert.True(t, signedIn)

	var owned model.OwnedCards
	require.NoError(t, gw.Do(context.Background(), gateway.Request{Method: http.MethodGet, Path: "/cards/my-cards"}, &owned))
	require.NotNil(t, owned.ActiveCard)
	assert.Equal(t, res.Card.ID, owned.ActiveCard.ID)
}

func TestClaimAsNewUserValidatesFirst(t *testing.T) {
	e := setup(t)
	p := e.protocol(e.gateway(t, 0))

	reg := registration("nia@example.com")
	reg.PasswordConfirm = "something-else"
	_, err := p.ClaimAsNewUser(context.Background(), e.token, reg)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// Nothing was consumed.
	_, err = p.FetchGiftDetails(context.Background(), e.token)
	require.NoError(t, err)
}

func TestClaimAsNewUserEmailTakenLeavesGiftOpen(t *testing.T) {
	e := setup(t)
	p := e.protocol(e.gateway(t, 0))

	_, err := p.ClaimAsNewUser(context.Background(), e.token, registration("sender@example.com"))
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = p.FetchGiftDetails(context.Background(), e.token)
	require.NoError(t, err)
}

func TestConcurrentClaimsHaveExactlyOneWinner(t *testing.T) {
	e := setup(t)

	var claimers []func(context.Context) error
	for i := range 4 {
		p := e.recipient(t, fmt.Sprintf("member%d@example.com", i))
		claimers = append(claimers, func(ctx context.Context) error {
			_, err := p.ClaimAsAuthenticatedUser(ctx, e.token)
			return err
		})
	}
	for i := range 4 {
		p := e.protocol(e.gateway(t, 0))
		reg := registration(fmt.Sprintf("new%d@example.com", i))
		claimers = append(claimers, func(ctx context.Context) error {
			_, err := p.ClaimAsNewUser(ctx, e.token, reg)
			return err
		})
	}

	errs := make([]error, len(claimers))
	var g errgroup.Group
	for i, claim := range claimers {
		g.Go(func() error {
			errs[i] = claim(context.Background())
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrAlreadyClaimed)
	}
	assert.Equal(t, 1, wins)
}

func TestClaimAfterCancelFailsWithGiftCancelled(t *testing.T) {
	e := setup(t)
	p := e.recipient(t, "friend@example.com")

	err := e.sender.Do(context.Background(), gateway.Request{
		Method: http.MethodPost,
		Path:   "/cards/" + strconv.FormatInt(e.card.ID, 10) + "/cancel-gift",
	}, nil)
	require.NoError(t, err)

	_, err = p.ClaimAsAuthenticatedUser(context.Background(), e.token)
	assert.ErrorIs(t, err, apperr.ErrGiftCancelled)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	got, _ := e.srv.Card(e.card.ID)
	assert.Equal(t, model.CardUnassigned, got.Status)
}

type failingLogin struct{}

func (failingLogin) Login(context.Context, string, string) (model.User, error) {
	return model.User{}, apperr.Transient(errors.New("connection reset"))
}

func TestClaimAsNewUserReturnsResultWhenSignInFails(t *testing.T) {
	e := setup(t)
	p := NewProtocol(e.gateway(t, 0), failingLogin{}, discard)

	res, err := p.ClaimAsNewUser(context.Background(), e.token, registration("nia@example.com"))
	assert.ErrorIs(t, err, apperr.ErrTransient)
	assert.NotZero(t, res.Card.ID)
	require.NotNil(t, res.User)
}
