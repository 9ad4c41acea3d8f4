// Package referral turns the backend's referral list into the direct and
// indirect views shown to a member. Attribution is one hop deep: an indirect
// record names the direct referral it came through and nothing further.
package referral

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/scoutcard/internal/model"
)

// MaxIndirection is the deepest referral chain the backend reports. A
// Labeler for longer chains must be supplied explicitly.
const MaxIndirection = 1

// UnknownReferrer labels an indirect record whose referrer name is missing.
const UnknownReferrer = "(unknown referrer)"

// Partitioned splits records by attribution, each side in server order.
type Partitioned struct {
	Direct   []model.ReferralRecord
	Indirect []model.ReferralRecord
}

// Partition places every record in exactly one side. Order is preserved.
func Partition(records []model.ReferralRecord) Partitioned {
	p := Partitioned{
		Direct:   make([]model.ReferralRecord, 0, len(records)),
		Indirect: make([]model.ReferralRecord, 0),
	}
	for _, r := range records {
		if r.IsDirectReferral {
			p.Direct = append(p.Direct, r)
		} else {
			p.Indirect = append(p.Indirect, r)
		}
	}
	return p
}

// ComputeSummary returns server verbatim when it is non-nil. Otherwise the
// counters are derived from records, earnings are zero and the summary is
// marked Estimated.
func ComputeSummary(records []model.ReferralRecord, server *model.ReferralSummary) model.ReferralSummary {
	if server != nil {
		sum := *server
		sum.Estimated = false
		return sum
	}

	sum := model.ReferralSummary{
		TotalReferrals:  len(records),
		TotalEarnings:   decimal.Zero,
		PendingEarnings: decimal.Zero,
		Estimated:       true,
	}
	for _, r := range records {
		if r.IsDirectReferral {
			sum.DirectReferrals++
		} else {
			sum.IndirectReferrals++
		}
	}
	return sum
}

// Labeler produces the attribution label shown next to a record.
type Labeler interface {
	Label(r model.ReferralRecord) string
}

// OneHopLabeler labels indirect records "via <referrer>". It never follows
// the chain past the named referrer.
type OneHopLabeler struct{}

func (OneHopLabeler) Label(r model.ReferralRecord) string {
	if r.IsDirectReferral {
		return ""
	}
	if r.ReferredByName == nil || strings.TrimSpace(*r.ReferredByName) == "" {
		return UnknownReferrer
	}
	return "via " + strings.TrimSpace(*r.ReferredByName)
}

// MissingReferrer reports an indirect record with no referrer name.
func MissingReferrer(r model.ReferralRecord) bool {
	return !r.IsDirectReferral && (r.ReferredByName == nil || strings.TrimSpace(*r.ReferredByName) == "")
}
