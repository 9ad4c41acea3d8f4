// Package gateway wraps outbound calls to the membership API. It attaches the
// current access credential, detects expiry, and renews the credential with
// at most one refresh call in flight per gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/dukerupert/scoutcard/internal/apperr"
	"github.com/dukerupert/scoutcard/internal/credential"
	"github.com/dukerupert/scoutcard/internal/model"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultRefreshPath = "/auth/refresh"
	defaultScope       = "default"
	maxResponseBytes   = 4 << 20
)

// Paths that establish a credential rather than use one. A 401 from these is
// a plain rejection and never triggers a refresh.
var credentialPaths = []string{
	"/auth/login",
	"/auth/register",
	"/auth/password-reset",
	defaultRefreshPath,
}

// Config holds gateway configuration.
type Config struct {
	BaseURL     string
	Scope       string
	Timeout     time.Duration // per attempt
	RateLimit   float64       // requests per second, 0 disables
	RefreshPath string
}

// Request is one logical call. Replays after a refresh reuse it verbatim.
type Request struct {
	Method string
	Path   string
	Body   any
	// Anonymous requests carry no credential and never trigger a refresh.
	Anonymous bool
}

// Gateway is safe for concurrent use.
type Gateway struct {
	cfg        Config
	store      credential.Store
	httpClient *http.Client
	limiter    *rate.Limiter
	coord      *Coordinator
	logger     *slog.Logger
	refreshes  atomic.Int64
}

type Option func(*Gateway)

func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		g.httpClient = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

func New(cfg Config, store credential.Store, opts ...Option) *Gateway {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = defaultRefreshPath
	}
	if cfg.Scope == "" {
		cfg.Scope = defaultScope
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	g := &Gateway{
		cfg:        cfg,
		store:      store,
		httpClient: &http.Client{},
		coord:      &Coordinator{},
		logger:     slog.Default(),
	}
	if cfg.RateLimit > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "gateway", "scope", cfg.Scope)
	return g
}

// Do sends req and decodes a JSON response into out when out is non-nil.
// An expired credential is renewed and the request replayed once.
func (g *Gateway) Do(ctx context.Context, req Request, out any) error {
	requestID := ulid.Make().String()

	var used string
	if !req.Anonymous {
		creds, err := g.store.Load(ctx, g.cfg.Scope)
		if err != nil {
			return fmt.Errorf("load credentials: %w", err)
		}
		used = creds.Access
	}

	var data []byte
	attempt := func(access string) error {
		var err error
		data, err = g.send(ctx, req, access, requestID)
		return err
	}

	err := attempt(used)
	if errors.Is(err, apperr.ErrUnauthorized) && g.refreshable(req) {
		err = g.recover(ctx, used, requestID, attempt)
	}
	if err != nil {
		return err
	}
	return decode(data, out)
}

func (g *Gateway) refreshable(req Request) bool {
	if req.Anonymous {
		return false
	}
	for _, p := range credentialPaths {
		if req.Path == p {
			return false
		}
	}
	return req.Path != g.cfg.RefreshPath
}

type refreshResult struct {
	access string
	err    error
}

// recover runs after attempt failed with Unauthorized using the credential
// used. The first caller becomes the refresher; later callers park until
// the refresher finishes and then replay with its credential.
func (g *Gateway) recover(ctx context.Context, used, requestID string, attempt func(string) error) error {
	wait := make(chan refreshResult, 1)
	leader := g.coord.Join(func(access string, err error) {
		wait <- refreshResult{access: access, err: err}
	})

	if !leader {
		g.logger.Debug("waiting for credential refresh", "request_id", requestID)
		select {
		case r := <-wait:
			if r.err != nil {
				return r.err
			}
			return g.replay(ctx, r.access, requestID, attempt)
		case <-ctx.Done():
			return apperr.Transient(ctx.Err())
		}
	}

	access, err := g.renew(ctx, used)
	if err != nil {
		g.coord.Finish("", err)
		return err
	}
	err = g.replay(ctx, access, requestID, attempt)
	g.coord.Finish(access, nil)
	return err
}

// replay is the single retry of a logical request. A second Unauthorized
// ends the session instead of starting another refresh.
func (g *Gateway) replay(ctx context.Context, access, requestID string, attempt func(string) error) error {
	err := attempt(access)
	if errors.Is(err, apperr.ErrUnauthorized) {
		g.logger.Warn("renewed credential rejected", "request_id", requestID)
		g.purge(ctx)
		return apperr.SessionExpired(err)
	}
	return err
}

type refreshRequest struct {
	RenewalCredential string `json:"renewalCredential"`
}

type refreshResponse struct {
	AccessCredential  string `json:"accessCredential"`
	RenewalCredential string `json:"renewalCredential,omitempty"`
}

// renew exchanges the renewal credential for a new access credential and
// persists it before returning.
func (g *Gateway) renew(ctx context.Context, used string) (string, error) {
	creds, err := g.store.Load(ctx, g.cfg.Scope)
	if err != nil {
		return "", fmt.Errorf("load credentials: %w", err)
	}
	// Renewed by an earlier refresh after this request was sent.
	if creds.Access != "" && creds.Access != used {
		return creds.Access, nil
	}
	if creds.Renewal == "" {
		g.purge(ctx)
		return "", apperr.SessionExpired(apperr.New(apperr.ErrUnauthorized, "no renewal credential"))
	}

	// The refresh serves every parked caller, so it outlives the
	// refresher's own cancellation.
	rctx := context.WithoutCancel(ctx)

	g.refreshes.Add(1)
	start := time.Now()
	data, err := g.send(rctx, Request{
		Method:    http.MethodPost,
		Path:      g.cfg.RefreshPath,
		Body:      refreshRequest{RenewalCredential: creds.Renewal},
		Anonymous: true,
	}, "", ulid.Make().String())
	if errors.Is(err, apperr.ErrTransient) {
		g.logger.Warn("credential refresh unavailable", "error", err)
		return "", err
	}
	if err != nil {
		g.logger.Info("credential refresh rejected, signing out", "error", err)
		g.purge(rctx)
		return "", apperr.SessionExpired(err)
	}

	var resp refreshResponse
	if err := decode(data, &resp); err != nil {
		g.purge(rctx)
		return "", apperr.SessionExpired(err)
	}
	if resp.AccessCredential == "" {
		g.purge(rctx)
		return "", apperr.SessionExpired(errors.New("refresh response without access credential"))
	}

	next := model.Credentials{Access: resp.AccessCredential, Renewal: creds.Renewal}
	if resp.RenewalCredential != "" {
		next.Renewal = resp.RenewalCredential
	}
	if err := g.store.Save(rctx, g.cfg.Scope, next); err != nil {
		return "", fmt.Errorf("persist credentials: %w", err)
	}
	g.logger.Info("access credential renewed", "duration", time.Since(start))
	return next.Access, nil
}

func (g *Gateway) purge(ctx context.Context) {
	if err := g.store.Clear(context.WithoutCancel(ctx), g.cfg.Scope); err != nil {
		g.logger.Error("purge credentials", "error", err)
	}
}

func (g *Gateway) send(ctx context.Context, req Request, access, requestID string) ([]byte, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, apperr.Transient(err)
		}
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	hreq, err := http.NewRequestWithContext(ctx, req.Method, g.cfg.BaseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	hreq.Header.Set("Accept", "application/json")
	hreq.Header.Set("X-Request-ID", requestID)
	if access != "" && !req.Anonymous {
		hreq.Header.Set("Authorization", "Bearer "+access)
	}

	start := time.Now()
	resp, err := g.httpClient.Do(hreq)
	if err != nil {
		g.logger.Debug("request failed", "method", req.Method, "path", req.Path, "request_id", requestID, "error", err)
		return nil, apperr.Transient(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperr.Transient(fmt.Errorf("read response: %w", err))
	}

	g.logger.Debug("request",
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"request_id", requestID,
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.FromResponse(resp.StatusCode, data)
	}
	return data, nil
}

func decode(data []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// SignIn stores a freshly issued credential pair for this gateway's scope.
func (g *Gateway) SignIn(ctx context.Context, creds model.Credentials) error {
	if err := g.store.Save(ctx, g.cfg.Scope, creds); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	return nil
}

// SignOut purges both credentials for this gateway's scope.
func (g *Gateway) SignOut(ctx context.Context) error {
	if err := g.store.Clear(ctx, g.cfg.Scope); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// SignedIn reports whether a credential pair is stored for this scope.
func (g *Gateway) SignedIn(ctx context.Context) (bool, error) {
	creds, err := g.store.Load(ctx, g.cfg.Scope)
	if err != nil {
		return false, fmt.Errorf("load credentials: %w", err)
	}
	return !creds.Empty(), nil
}

// Refreshes returns how many refresh calls this gateway has sent.
func (g *Gateway) Refreshes() int64 {
	return g.refreshes.Load()
}

func (g *Gateway) Scope() string {
	return g.cfg.Scope
}
