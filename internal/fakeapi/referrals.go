package fakeapi

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/scoutcard/internal/middleware"
	"github.com/dukerupert/scoutcard/internal/model"
)

// referralsResponse omits the aggregate fields entirely when no summary is
// known, which is how the backend signals the degraded mode.
type referralsResponse struct {
	Referrals         []model.ReferralRecord `json:"referrals"`
	TotalReferrals    *int                   `json:"totalReferrals,omitempty"`
	DirectReferrals   *int                   `json:"directReferrals,omitempty"`
	IndirectReferrals *int                   `json:"indirectReferrals,omitempty"`
	TotalEarnings     *decimal.Decimal       `json:"totalEarnings,omitempty"`
	PendingEarnings   *decimal.Decimal       `json:"pendingEarnings,omitempty"`
}

func (s *Server) myReferrals(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountID(r.Context())

	s.mu.Lock()
	set := s.referrals[accountID]
	s.mu.Unlock()

	resp := referralsResponse{Referrals: set.records}
	if resp.Referrals == nil {
		resp.Referrals = []model.ReferralRecord{}
	}
	if sum := set.summary; sum != nil {
		resp.TotalReferrals = &sum.TotalReferrals
		resp.DirectReferrals = &sum.DirectReferrals
		resp.IndirectReferrals = &sum.IndirectReferrals
		resp.TotalEarnings = &sum.TotalEarnings
		resp.PendingEarnings = &sum.PendingEarnings
	}
	writeJSON(w, http.StatusOK, resp)
}
