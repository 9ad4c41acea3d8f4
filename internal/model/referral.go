package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReferralRecord struct {
	ID               int64     `json:"id"`
	ReferredName     string    `json:"referredName"`
	ReferredEmail    string    `json:"referredEmail"`
	CreatedAt        time.Time `json:"createdAt"`
	PlanType         string    `json:"planType"`
	IsDirectReferral bool      `json:"isDirectReferral"`
	ReferredByName   *string   `json:"referredByName"`
}

type ReferralSummary struct {
	TotalReferrals    int             `json:"totalReferrals"`
	DirectReferrals   int             `json:"directReferrals"`
	IndirectReferrals int             `json:"indirectReferrals"`
	TotalEarnings     decimal.Decimal `json:"totalEarnings"`
	PendingEarnings   decimal.Decimal `json:"pendingEarnings"`
	// Estimated marks a summary derived from the record list because the
	// server aggregate was missing. Earnings are zero in that mode.
	Estimated bool `json:"-"`
}
