package referral

import (
	"bufio"
	"fmt"
	"io"

	"github.com/dukerupert/scoutcard/internal/model"
)

const dateLayout = "2006-01-02"

// Render writes rep as a plain-text report.
func (e *Engine) Render(w io.Writer, rep Report) error {
	bw := bufio.NewWriter(w)

	s := rep.Summary
	fmt.Fprintf(bw, "Referrals: %d total, %d direct, %d indirect", s.TotalReferrals, s.DirectReferrals, s.IndirectReferrals)
	if s.Estimated {
		fmt.Fprint(bw, " (estimated)\nEarnings: unavailable\n")
	} else {
		fmt.Fprintf(bw, "\nEarnings: %s total, %s pending\n", s.TotalEarnings.StringFixed(2), s.PendingEarnings.StringFixed(2))
	}

	e.section(bw, "Direct", rep.Direct)
	e.section(bw, "Indirect", rep.Indirect)

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write referral report: %w", err)
	}
	return nil
}

func (e *Engine) section(w io.Writer, title string, records []model.ReferralRecord) {
	fmt.Fprintf(w, "\n%s (%d)\n", title, len(records))
	if len(records) == 0 {
		fmt.Fprint(w, "  (none)\n")
		return
	}
	for _, r := range records {
		fmt.Fprintf(w, "  %-16s %-24s %-8s %s", r.ReferredName, r.ReferredEmail, r.PlanType, r.CreatedAt.UTC().Format(dateLayout))
		if label := e.labeler.Label(r); label != "" {
			fmt.Fprintf(w, "  %s", label)
		}
		fmt.Fprint(w, "\n")
	}
}
