// Package fakeapi is an in-memory reference implementation of the membership
// API. It enforces the server-side rules (one active card per owner,
// one claim per gift token) under a single lock and is used by tests and by
// cmd/cardsim.
package fakeapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/dukerupert/scoutcard/internal/email"
	"github.com/dukerupert/scoutcard/internal/middleware"
	"github.com/dukerupert/scoutcard/internal/model"
	"github.com/dukerupert/scoutcard/internal/websocket"
)

type Config struct {
	SigningKey    []byte
	AccessTTL     time.Duration
	GiftTTL       time.Duration
	ProgramExpiry time.Time
	TotalOffers   int
	// LoginRate limits login and password-reset attempts per client IP.
	LoginRate  rate.Limit
	LoginBurst int
	// Mailer delivers gift and reset email. Defaults to an in-memory outbox.
	Mailer email.Mailer
	// PublicURL prefixes links placed in email.
	PublicURL string
	// RefreshDelay holds each refresh open, to widen concurrency windows in tests.
	RefreshDelay time.Duration
	Now          func() time.Time
}

type account struct {
	user         model.User
	passwordHash []byte
}

type giftState int

const (
	giftOpen giftState = iota
	giftConsumed
	giftCancelled
)

type giftToken struct {
	cardID    int64
	expiresAt time.Time
	state     giftState
}

type referralSet struct {
	records []model.ReferralRecord
	summary *model.ReferralSummary
}

type Server struct {
	cfg     Config
	logger  *slog.Logger
	hub     *websocket.Hub
	limiter *middleware.RateLimiter

	mu         sync.Mutex
	nextID     int64
	generation int64
	accounts   map[int64]*account
	emails     map[string]int64
	cards      map[int64]*model.Card
	owners     map[int64]int64
	gifts      map[string]*giftToken
	giftByCard map[int64]string
	renewals   map[string]int64
	referrals  map[int64]referralSet
	dispatches map[int64]int

	refreshCalls atomic.Int64
}

func New(cfg Config, logger *slog.Logger) *Server {
	if len(cfg.SigningKey) == 0 {
		cfg.SigningKey = []byte("cardsim-development-signing-key")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.GiftTTL == 0 {
		cfg.GiftTTL = 7 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ProgramExpiry.IsZero() {
		now := cfg.Now().UTC()
		cfg.ProgramExpiry = time.Date(now.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	if cfg.TotalOffers == 0 {
		cfg.TotalOffers = 25
	}
	if cfg.LoginRate == 0 {
		cfg.LoginRate = rate.Inf
	}
	if cfg.Mailer == nil {
		cfg.Mailer = email.NewOutbox()
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://localhost:8080"
	}
	if cfg.LoginBurst == 0 {
		cfg.LoginBurst = 10
	}

	return &Server{
		cfg:        cfg,
		logger:     logger.With("component", "fakeapi"),
		hub:        websocket.NewHub(logger.With("component", "events")),
		limiter:    middleware.NewRateLimiter(cfg.LoginRate, cfg.LoginBurst),
		accounts:   make(map[int64]*account),
		emails:     make(map[string]int64),
		cards:      make(map[int64]*model.Card),
		owners:     make(map[int64]int64),
		gifts:      make(map[string]*giftToken),
		giftByCard: make(map[int64]string),
		renewals:   make(map[string]int64),
		referrals:  make(map[int64]referralSet),
		dispatches: make(map[int64]int),
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.health)

	throttle := middleware.RateLimit(s.limiter, middleware.RealIP)
	mux.Handle("POST /auth/login", throttle(http.HandlerFunc(s.login)))
	mux.Handle("POST /auth/password-reset", throttle(http.HandlerFunc(s.passwordReset)))
	mux.HandleFunc("POST /auth/register", s.register)
	mux.HandleFunc("POST /auth/refresh", s.refresh)

	// Gift redemption is reachable without an account.
	mux.HandleFunc("GET /cards/gift/{token}", s.giftDetails)
	mux.HandleFunc("POST /cards/gift/{token}/claim", s.claimGift)

	authMw := middleware.RequireBearer(s.verifyAccess)
	mux.Handle("GET /cards/my-cards", authMw(http.HandlerFunc(s.myCards)))
	mux.Handle("GET /cards/events", authMw(http.HandlerFunc(s.events)))
	mux.Handle("POST /cards/{id}/activate", authMw(http.HandlerFunc(s.activate)))
	mux.Handle("POST /cards/{id}/gift", authMw(http.HandlerFunc(s.gift)))
	mux.Handle("POST /cards/{id}/cancel-gift", authMw(http.HandlerFunc(s.cancelGift)))
	mux.Handle("POST /cards/{id}/resend-gift", authMw(http.HandlerFunc(s.resendGift)))
	mux.Handle("GET /referrals/mine", authMw(http.HandlerFunc(s.myReferrals)))

	return middleware.RequestLogger(s.logger)(mux)
}

// LimiterCleanup drops idle login throttling buckets.
func (s *Server) LimiterCleanup(idle time.Duration) {
	s.limiter.Cleanup(idle)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	s.hub.Handle(w, r, middleware.AccountID(r.Context()))
}

func (s *Server) now() time.Time {
	return s.cfg.Now().UTC()
}

// id allocates from one sequence shared by accounts, cards and referrals.
// Caller holds s.mu.
func (s *Server) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) newCard(ownerID int64, status model.CardStatus) *model.Card {
	id := s.id()
	c := &model.Card{
		ID:          id,
		PublicID:    uuid.New(),
		CardNumber:  fmt.Sprintf("SC-****-%04d", id%10000),
		Status:      status,
		ExpiresAt:   s.cfg.ProgramExpiry,
		CreatedAt:   s.now(),
		TotalOffers: s.cfg.TotalOffers,
	}
	if a, ok := s.accounts[ownerID]; ok {
		c.ScoutName = a.user.FirstName
	}
	if status == model.CardActive {
		now := s.now()
		c.ActivatedAt = &now
	}
	s.cards[id] = c
	s.owners[id] = ownerID
	return c
}

// settle applies server-computed transitions before a card is read.
// Caller holds s.mu.
func (s *Server) settle(c *model.Card) {
	if c.Status == model.CardActive && !s.now().Before(c.ExpiresAt) {
		c.Status = model.CardExpired
	}
}

func (s *Server) ownedCard(accountID, cardID int64) (*model.Card, bool) {
	c, ok := s.cards[cardID]
	if !ok || s.owners[cardID] != accountID {
		return nil, false
	}
	s.settle(c)
	return c, true
}

// demoteActive parks accountID's current ACTIVE card, if any, as REPLACED.
// Caller holds s.mu.
func (s *Server) demoteActive(accountID, except int64) {
	for id, c := range s.cards {
		if id == except || s.owners[id] != accountID {
			continue
		}
		s.settle(c)
		if c.Status == model.CardActive {
			c.Status = model.CardReplaced
			s.hub.Publish(accountID, websocket.Event{Type: websocket.CardReplaced, CardID: id})
		}
	}
}

// Seeding and inspection helpers for tests and the simulator.

var ErrEmailTaken = errors.New("email already registered")

// CreateAccount registers an account directly.
func (s *Server) CreateAccount(email, password, firstName, lastName string) (model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createAccountLocked(email, hash, firstName, lastName)
}

func (s *Server) createAccountLocked(email string, hash []byte, firstName, lastName string) (model.User, error) {
	if _, ok := s.emails[email]; ok {
		return model.User{}, ErrEmailTaken
	}
	u := model.User{ID: s.id(), Email: email, FirstName: firstName, LastName: lastName}
	s.accounts[u.ID] = &account{user: u, passwordHash: hash}
	s.emails[email] = u.ID
	return u, nil
}

// AddCard issues a card straight onto an account, as a purchase would.
func (s *Server) AddCard(accountID int64, status model.CardStatus) model.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == model.CardActive {
		s.demoteActive(accountID, 0)
	}
	return *s.newCard(accountID, status)
}

// Card returns a snapshot of a card.
func (s *Server) Card(cardID int64) (model.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[cardID]
	if !ok {
		return model.Card{}, false
	}
	s.settle(c)
	return *c, true
}

// CardsOf returns snapshots of every card owned by accountID.
func (s *Server) CardsOf(accountID int64) []model.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Card
	for id, c := range s.cards {
		if s.owners[id] == accountID {
			s.settle(c)
			out = append(out, *c)
		}
	}
	return out
}

// RedeemOffer records one benefit use on a card.
func (s *Server) RedeemOffer(cardID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cards[cardID]; ok && c.OffersUsed < c.TotalOffers {
		c.OffersUsed++
	}
}

// RevokeCard is the administrative action that parks a card as REVOKED.
func (s *Server) RevokeCard(cardID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cards[cardID]; ok {
		c.Status = model.CardRevoked
		s.hub.Publish(s.owners[cardID], websocket.Event{Type: websocket.CardRevoked, CardID: cardID})
	}
}

// GiftToken returns the outstanding token for a gifted card.
func (s *Server) GiftToken(cardID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.giftByCard[cardID]
	return tok, ok
}

// ExpireGift moves a gift token's expiry into the past.
func (s *Server) ExpireGift(cardID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.gifts[s.giftByCard[cardID]]; ok {
		g.expiresAt = s.now().Add(-time.Minute)
	}
}

// Dispatches returns how many gift emails were triggered for a card.
// Failed deliveries count.
func (s *Server) Dispatches(cardID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatches[cardID]
}

// SetReferrals seeds the referral list and, if non-nil, the aggregate.
func (s *Server) SetReferrals(accountID int64, records []model.ReferralRecord, summary *model.ReferralSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referrals[accountID] = referralSet{records: records, summary: summary}
}

// ExpireAccessCredentials invalidates every access credential issued so far.
func (s *Server) ExpireAccessCredentials() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// InvalidateRenewals revokes every outstanding renewal credential.
func (s *Server) InvalidateRenewals() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renewals = make(map[string]int64)
}

// RefreshCalls returns how many times /auth/refresh was hit.
func (s *Server) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	body := map[string]string{"error": msg}
	if code != "" {
		body["code"] = code
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// Subscribers returns the number of open event feeds for accountID.
func (s *Server) Subscribers(accountID int64) int {
	return s.hub.ClientCount(accountID)
}
