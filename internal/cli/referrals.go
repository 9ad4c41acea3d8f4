package cli

import (
	"github.com/spf13/cobra"

	"github.com/dukerupert/scoutcard/internal/model"
)

type referralsJSON struct {
	Direct    []model.ReferralRecord `json:"direct"`
	Indirect  []model.ReferralRecord `json:"indirect"`
	Summary   model.ReferralSummary  `json:"summary"`
	Estimated bool                   `json:"estimated"`
}

func NewReferralsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "referrals",
		Short: "Show the members you referred",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := opts.app.referral.Load(cmd.Context())
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), referralsJSON{
					Direct:    rep.Direct,
					Indirect:  rep.Indirect,
					Summary:   rep.Summary,
					Estimated: rep.Summary.Estimated,
				})
			}
			return opts.app.referral.Render(cmd.OutOrStdout(), rep)
		},
	}
}
