package fakeapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/scoutcard/internal/email"
	"github.com/dukerupert/scoutcard/internal/model"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func seedAccount(t *testing.T, s *Server, email string) (model.User, string) {
	t.Helper()
	u, err := s.CreateAccount(email, "correct-horse-9", "Pat", "Lee")
	require.NoError(t, err)
	access, _, err := s.IssueCredentials(u.ID)
	require.NoError(t, err)
	return u, access
}

func call(t *testing.T, ts *httptest.Server, method, path, access string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestActivateReplacesPreviousActive(t *testing.T) {
	s, ts := newTestServer(t)
	u, access := seedAccount(t, s, "pat@example.com")
	old := s.AddCard(u.ID, model.CardActive)
	next := s.AddCard(u.ID, model.CardUnassigned)

	status, body := call(t, ts, http.MethodPost, "/cards/"+itoa(next.ID)+"/activate", access, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var got model.Card
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, model.CardActive, got.Status)
	assert.Equal(t, 0, got.OffersUsed)

	prev, _ := s.Card(old.ID)
	assert.Equal(t, model.CardReplaced, prev.Status)

	status, _ = call(t, ts, http.MethodPost, "/cards/"+itoa(next.ID)+"/activate", access, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestMyCardsPartition(t *testing.T) {
	s, ts := newTestServer(t)
	u, access := seedAccount(t, s, "pat@example.com")
	s.AddCard(u.ID, model.CardActive)
	s.AddCard(u.ID, model.CardUnassigned)
	gifted := s.AddCard(u.ID, model.CardUnassigned)
	revoked := s.AddCard(u.ID, model.CardUnassigned)
	s.RevokeCard(revoked.ID)

	status, _ := call(t, ts, http.MethodPost, "/cards/"+itoa(gifted.ID)+"/gift", access,
		model.GiftRequest{RecipientEmail: "friend@example.com"})
	require.Equal(t, http.StatusNoContent, status)

	status, body := call(t, ts, http.MethodGet, "/cards/my-cards", access, nil)
	require.Equal(t, http.StatusOK, status)

	var owned model.OwnedCards
	require.NoError(t, json.Unmarshal(body, &owned))
	require.NotNil(t, owned.ActiveCard)
	assert.Len(t, owned.UnusedCards, 1)
	assert.Len(t, owned.GiftedCards, 1)
	assert.Equal(t, 4, owned.TotalCards)
	assert.Equal(t, 25, owned.ActiveCardTotalOffers)
}

func TestMyCardsRequiresCredential(t *testing.T) {
	s, ts := newTestServer(t)
	_, access := seedAccount(t, s, "pat@example.com")

	status, _ := call(t, ts, http.MethodGet, "/cards/my-cards", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	s.ExpireAccessCredentials()
	status, _ = call(t, ts, http.MethodGet, "/cards/my-cards", access, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRefreshRotatesRenewal(t *testing.T) {
	s, ts := newTestServer(t)
	u, _ := seedAccount(t, s, "pat@example.com")
	_, renewal, err := s.IssueCredentials(u.ID)
	require.NoError(t, err)

	status, body := call(t, ts, http.MethodPost, "/auth/refresh", "", map[string]string{"renewalCredential": renewal})
	require.Equal(t, http.StatusOK, status)

	var resp credentialResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.NotEmpty(t, resp.AccessCredential)
	assert.NotEqual(t, renewal, resp.RenewalCredential)

	status, _ = call(t, ts, http.MethodPost, "/auth/refresh", "", map[string]string{"renewalCredential": renewal})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, int64(2), s.RefreshCalls())
}

func TestLoginAndRegister(t *testing.T) {
	_, ts := newTestServer(t)

	reg := map[string]string{"email": "new@example.com", "password": "correct-horse-9", "firstName": "New", "lastName": "User"}
	status, _ := call(t, ts, http.MethodPost, "/auth/register", "", reg)
	require.Equal(t, http.StatusCreated, status)

	status, body := call(t, ts, http.MethodPost, "/auth/register", "", reg)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), "email_taken")

	status, _ = call(t, ts, http.MethodPost, "/auth/login", "", map[string]string{"email": "new@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = call(t, ts, http.MethodPost, "/auth/login", "", map[string]string{"email": "new@example.com", "password": "correct-horse-9"})
	require.Equal(t, http.StatusOK, status)
	var resp credentialResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.NotEmpty(t, resp.AccessCredential)
	assert.NotEmpty(t, resp.RenewalCredential)
	require.NotNil(t, resp.User)
	assert.Equal(t, "new@example.com", resp.User.Email)
}

func TestGiftLifecycle(t *testing.T) {
	s, ts := newTestServer(t)
	sender, access := seedAccount(t, s, "sender@example.com")
	card := s.AddCard(sender.ID, model.CardUnassigned)
	path := "/cards/" + itoa(card.ID)

	status, _ := call(t, ts, http.MethodPost, path+"/gift", access, model.GiftRequest{RecipientEmail: "not-an-email"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = call(t, ts, http.MethodPost, path+"/gift", access,
		model.GiftRequest{RecipientEmail: "friend@example.com", RecipientName: "Sam", GiftMessage: "enjoy"})
	require.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, 1, s.Dispatches(card.ID))

	status, _ = call(t, ts, http.MethodPost, path+"/resend-gift", access, nil)
	require.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, 2, s.Dispatches(card.ID))

	token, ok := s.GiftToken(card.ID)
	require.True(t, ok)

	status, body := call(t, ts, http.MethodGet, "/cards/gift/"+token, "", nil)
	require.Equal(t, http.StatusOK, status)
	var details model.GiftDetails
	require.NoError(t, json.Unmarshal(body, &details))
	assert.Equal(t, "Pat Lee", details.SenderName)
	assert.Equal(t, "enjoy", details.Message)

	status, _ = call(t, ts, http.MethodPost, path+"/cancel-gift", access, nil)
	require.Equal(t, http.StatusNoContent, status)

	got, _ := s.Card(card.ID)
	assert.Equal(t, model.CardUnassigned, got.Status)
	assert.Empty(t, got.GiftedToEmail)
	assert.Nil(t, got.GiftedAt)

	status, _ = call(t, ts, http.MethodGet, "/cards/gift/"+token, "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	_, recipientAccess := seedAccount(t, s, "friend@example.com")
	status, body = call(t, ts, http.MethodPost, "/cards/gift/"+token+"/claim", recipientAccess, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(body), "gift_cancelled")

	status, _ = call(t, ts, http.MethodPost, path+"/cancel-gift", access, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestGiftExpired(t *testing.T) {
	s, ts := newTestServer(t)
	sender, access := seedAccount(t, s, "sender@example.com")
	card := s.AddCard(sender.ID, model.CardUnassigned)

	status, _ := call(t, ts, http.MethodPost, "/cards/"+itoa(card.ID)+"/gift", access, model.GiftRequest{RecipientEmail: "friend@example.com"})
	require.Equal(t, http.StatusNoContent, status)
	token, _ := s.GiftToken(card.ID)
	s.ExpireGift(card.ID)

	status, _ = call(t, ts, http.MethodGet, "/cards/gift/"+token, "", nil)
	assert.Equal(t, http.StatusGone, status)
	status, _ = call(t, ts, http.MethodGet, "/cards/gift/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	s, ts := newTestServer(t)
	sender, access := seedAccount(t, s, "sender@example.com")
	card := s.AddCard(sender.ID, model.CardUnassigned)
	status, _ := call(t, ts, http.MethodPost, "/cards/"+itoa(card.ID)+"/gift", access, model.GiftRequest{RecipientEmail: "friend@example.com"})
	require.Equal(t, http.StatusNoContent, status)
	token, _ := s.GiftToken(card.ID)

	const n = 8
	accesses := make([]string, n)
	for i := 0; i < n; i += 2 {
		_, accesses[i] = seedAccount(t, s, "r"+itoa(int64(i))+"@example.com")
	}

	statuses := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if accesses[i] != "" {
				statuses[i], _ = call(t, ts, http.MethodPost, "/cards/gift/"+token+"/claim", accesses[i], nil)
				return
			}
			reg := map[string]string{"email": "n" + itoa(int64(i)) + "@example.com", "password": "correct-horse-9", "firstName": "N", "lastName": "U"}
			statuses[i], _ = call(t, ts, http.MethodPost, "/cards/gift/"+token+"/claim", "", reg)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, st := range statuses {
		if st == http.StatusOK {
			wins++
			continue
		}
		assert.Equal(t, http.StatusConflict, st)
	}
	assert.Equal(t, 1, wins)

	got, _ := s.Card(card.ID)
	assert.Equal(t, model.CardGifted, got.Status)
	assert.NotNil(t, got.GiftClaimedAt)
}

func TestClaimDemotesRecipientActiveCard(t *testing.T) {
	s, ts := newTestServer(t)
	sender, access := seedAccount(t, s, "sender@example.com")
	recipient, recipientAccess := seedAccount(t, s, "friend@example.com")
	existing := s.AddCard(recipient.ID, model.CardActive)
	card := s.AddCard(sender.ID, model.CardUnassigned)

	status, _ := call(t, ts, http.MethodPost, "/cards/"+itoa(card.ID)+"/gift", access, model.GiftRequest{RecipientEmail: "friend@example.com"})
	require.Equal(t, http.StatusNoContent, status)
	token, _ := s.GiftToken(card.ID)

	status, body := call(t, ts, http.MethodPost, "/cards/gift/"+token+"/claim", recipientAccess, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var res model.ClaimResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, model.CardActive, res.Card.Status)
	assert.Nil(t, res.User)

	prev, _ := s.Card(existing.ID)
	assert.Equal(t, model.CardReplaced, prev.Status)
}

func TestActiveCardExpires(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	s := New(Config{
		Now:           func() time.Time { return now },
		ProgramExpiry: now.Add(time.Hour),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	u, err := s.CreateAccount("pat@example.com", "correct-horse-9", "Pat", "Lee")
	require.NoError(t, err)
	card := s.AddCard(u.ID, model.CardActive)

	now = now.Add(2 * time.Hour)
	got, _ := s.Card(card.ID)
	assert.Equal(t, model.CardExpired, got.Status)
}

func TestReferralsOmitMissingSummary(t *testing.T) {
	s, ts := newTestServer(t)
	u, access := seedAccount(t, s, "pat@example.com")
	s.SetReferrals(u.ID, []model.ReferralRecord{{ID: 1, ReferredName: "John Doe", IsDirectReferral: true}}, nil)

	status, body := call(t, ts, http.MethodGet, "/referrals/mine", access, nil)
	require.Equal(t, http.StatusOK, status)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Contains(t, raw, "referrals")
	assert.NotContains(t, raw, "totalReferrals")
	assert.NotContains(t, raw, "totalEarnings")
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestGiftAndResetSendEmail(t *testing.T) {
	outbox := email.NewOutbox()
	s := New(Config{Mailer: outbox, PublicURL: "https://cards.test"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)

	u, access := seedAccount(t, s, "pat@example.com")
	card := s.AddCard(u.ID, model.CardUnassigned)

	status, _ := call(t, ts, http.MethodPost, "/cards/"+itoa(card.ID)+"/gift", access,
		model.GiftRequest{RecipientEmail: "friend@example.com", RecipientName: "Sam"})
	require.Equal(t, http.StatusNoContent, status)
	token, _ := s.GiftToken(card.ID)

	status, _ = call(t, ts, http.MethodPost, "/auth/password-reset", "", map[string]string{"email": "pat@example.com"})
	require.Equal(t, http.StatusAccepted, status)
	status, _ = call(t, ts, http.MethodPost, "/auth/password-reset", "", map[string]string{"email": "nobody@example.com"})
	require.Equal(t, http.StatusAccepted, status)

	sent := outbox.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "friend@example.com", sent[0].To)
	assert.Equal(t, "Pat Lee sent you a membership card", sent[0].Subject)
	assert.Contains(t, sent[0].Body, "https://cards.test/gift/"+token)
	assert.Equal(t, "pat@example.com", sent[1].To)
	assert.Contains(t, sent[1].Body, "https://cards.test/reset/")
}
