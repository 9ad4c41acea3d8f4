package referral

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/scoutcard/internal/gateway"
	"github.com/dukerupert/scoutcard/internal/model"
)

// API is the part of the gateway the engine uses.
type API interface {
	Do(ctx context.Context, req gateway.Request, out any) error
}

// Report is a loaded, partitioned referral view.
type Report struct {
	Partitioned
	Summary model.ReferralSummary
}

type Engine struct {
	api     API
	labeler Labeler
	logger  *slog.Logger
}

type Option func(*Engine)

func WithLabeler(l Labeler) Option {
	return func(e *Engine) {
		e.labeler = l
	}
}

func NewEngine(api API, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		api:     api,
		labeler: OneHopLabeler{},
		logger:  logger.With("component", "referral"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// mineResponse mirrors GET /referrals/mine. The aggregate fields are absent
// when the backend has no summary.
type mineResponse struct {
	Referrals         []model.ReferralRecord `json:"referrals"`
	TotalReferrals    *int                   `json:"totalReferrals"`
	DirectReferrals   *int                   `json:"directReferrals"`
	IndirectReferrals *int                   `json:"indirectReferrals"`
	TotalEarnings     *decimal.Decimal       `json:"totalEarnings"`
	PendingEarnings   *decimal.Decimal       `json:"pendingEarnings"`
}

// serverSummary returns nil unless the response carried the counters.
func (r mineResponse) serverSummary() *model.ReferralSummary {
	if r.TotalReferrals == nil || r.DirectReferrals == nil || r.IndirectReferrals == nil {
		return nil
	}
	sum := &model.ReferralSummary{
		TotalReferrals:    *r.TotalReferrals,
		DirectReferrals:   *r.DirectReferrals,
		IndirectReferrals: *r.IndirectReferrals,
	}
	if r.TotalEarnings != nil {
		sum.TotalEarnings = *r.TotalEarnings
	}
	if r.PendingEarnings != nil {
		sum.PendingEarnings = *r.PendingEarnings
	}
	return sum
}

// Load fetches the caller's referrals and builds the report.
func (e *Engine) Load(ctx context.Context) (Report, error) {
	var resp mineResponse
	err := e.api.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/referrals/mine"}, &resp)
	if err != nil {
		return Report{}, fmt.Errorf("load referrals: %w", err)
	}

	for _, r := range resp.Referrals {
		if MissingReferrer(r) {
			e.logger.Warn("indirect referral without referrer name", "referral_id", r.ID)
		}
	}

	server := resp.serverSummary()
	if server == nil {
		e.logger.Info("referral summary unavailable, estimating from records", "records", len(resp.Referrals))
	}
	return Report{
		Partitioned: Partition(resp.Referrals),
		Summary:     ComputeSummary(resp.Referrals, server),
	}, nil
}

// Label applies the engine's labeler to r.
func (e *Engine) Label(r model.ReferralRecord) string {
	return e.labeler.Label(r)
}
