package referral

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/scoutcard/internal/model"
)

func ptr(s string) *string { return &s }

func day(d int) time.Time {
	return time.Date(2026, time.March, d, 12, 0, 0, 0, time.UTC)
}

// sampleRecords is the backend order: newest first.
func sampleRecords() []model.ReferralRecord {
	return []model.ReferralRecord{
		{ID: 3, ReferredName: "John Doe", ReferredEmail: "john@example.com", PlanType: "annual", CreatedAt: day(3), IsDirectReferral: true},
		{ID: 2, ReferredName: "Jane Smith", ReferredEmail: "jane@example.com", PlanType: "monthly", CreatedAt: day(2), IsDirectReferral: true},
		{ID: 1, ReferredName: "Bob Johnson", ReferredEmail: "bob@example.com", PlanType: "annual", CreatedAt: day(1), ReferredByName: ptr("John Doe")},
	}
}

func names(records []model.ReferralRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ReferredName
	}
	return out
}

func TestPartitionExample(t *testing.T) {
	p := Partition(sampleRecords())
	assert.Equal(t, []string{"John Doe", "Jane Smith"}, names(p.Direct))
	assert.Equal(t, []string{"Bob Johnson"}, names(p.Indirect))
	assert.Equal(t, "via John Doe", OneHopLabeler{}.Label(p.Indirect[0]))
}

func TestPartitionIsComplete(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for range 200 {
		n := rng.IntN(40)
		records := make([]model.ReferralRecord, n)
		for i := range records {
			records[i] = model.ReferralRecord{ID: int64(i + 1), IsDirectReferral: rng.IntN(2) == 0}
		}

		p := Partition(records)
		require.Equal(t, n, len(p.Direct)+len(p.Indirect))

		seen := make(map[int64]int)
		for _, r := range p.Direct {
			assert.True(t, r.IsDirectReferral)
			seen[r.ID]++
		}
		for _, r := range p.Indirect {
			assert.False(t, r.IsDirectReferral)
			seen[r.ID]++
		}
		for _, r := range records {
			assert.Equal(t, 1, seen[r.ID])
		}

		// Server order survives on each side.
		for i := 1; i < len(p.Direct); i++ {
			assert.Less(t, p.Direct[i-1].ID, p.Direct[i].ID)
		}
		for i := 1; i < len(p.Indirect); i++ {
			assert.Less(t, p.Indirect[i-1].ID, p.Indirect[i].ID)
		}
	}
}

func TestPartitionEmpty(t *testing.T) {
	p := Partition(nil)
	assert.Empty(t, p.Direct)
	assert.Empty(t, p.Indirect)
}

func TestComputeSummaryPrefersServer(t *testing.T) {
	server := &model.ReferralSummary{
		TotalReferrals:    10,
		DirectReferrals:   7,
		IndirectReferrals: 3,
		TotalEarnings:     decimal.RequireFromString("125.50"),
		PendingEarnings:   decimal.RequireFromString("20"),
	}

	for _, records := range [][]model.ReferralRecord{nil, sampleRecords()} {
		got := ComputeSummary(records, server)
		assert.Equal(t, 10, got.TotalReferrals)
		assert.Equal(t, 7, got.DirectReferrals)
		assert.Equal(t, 3, got.IndirectReferrals)
		assert.True(t, got.TotalEarnings.Equal(server.TotalEarnings))
		assert.True(t, got.PendingEarnings.Equal(server.PendingEarnings))
		assert.False(t, got.Estimated)
	}
}

func TestComputeSummaryEstimates(t *testing.T) {
	got := ComputeSummary(sampleRecords(), nil)
	assert.Equal(t, 3, got.TotalReferrals)
	assert.Equal(t, 2, got.DirectReferrals)
	assert.Equal(t, 1, got.IndirectReferrals)
	assert.True(t, got.TotalEarnings.IsZero())
	assert.True(t, got.PendingEarnings.IsZero())
	assert.True(t, got.Estimated)
}

func TestOneHopLabeler(t *testing.T) {
	tests := []struct {
		name   string
		record model.ReferralRecord
		want   string
	}{
		{"direct", model.ReferralRecord{IsDirectReferral: true, ReferredByName: ptr("ignored")}, ""},
		{"indirect", model.ReferralRecord{ReferredByName: ptr("John Doe")}, "via John Doe"},
		{"indirect trimmed", model.ReferralRecord{ReferredByName: ptr("  Jane Smith ")}, "via Jane Smith"},
		{"indirect missing", model.ReferralRecord{}, UnknownReferrer},
		{"indirect blank", model.ReferralRecord{ReferredByName: ptr(" ")}, UnknownReferrer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OneHopLabeler{}.Label(tt.record))
		})
	}
}
