package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/scoutcard/internal/model"
)

func NewGiftCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gift",
		Short: "Redeem a gift you received",
	}
	cmd.AddCommand(newGiftShowCommand(opts))
	cmd.AddCommand(newGiftClaimCommand(opts))
	return cmd
}

func newGiftShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <token>",
		Short: "Show who sent a gift",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := opts.app.gifts.FetchGiftDetails(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), details)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Card %s from %s <%s>\n", details.CardNumber, details.SenderName, details.SenderEmail)
			if details.Message != "" {
				fmt.Fprintf(w, "  %q\n", details.Message)
			}
			fmt.Fprintf(w, "Claim before %s\n", details.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
}

func newGiftClaimCommand(opts *RootOptions) *cobra.Command {
	var (
		newAccount bool
		reg        model.Registration
	)

	cmd := &cobra.Command{
		Use:   "claim <token>",
		Short: "Claim a gift into your account, or into a new one with --new-account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := opts.app.gifts.NewSession(args[0])
			if _, err := s.Fetch(cmd.Context()); err != nil {
				return err
			}

			var (
				res model.ClaimResult
				err error
			)
			if newAccount {
				res, err = s.ClaimAsNewUser(cmd.Context(), reg)
			} else {
				res, err = s.Claim(cmd.Context())
			}
			if err != nil && res.Card.ID == 0 {
				return err
			}

			if opts.Format == "json" {
				if werr := writeJSON(cmd.OutOrStdout(), res); werr != nil {
					return werr
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Card %s is now your active card.\n", res.Card.CardNumber)
			if err != nil {
				return fmt.Errorf("account created, but sign-in failed; run cardctl login: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&newAccount, "new-account", false, "register a new account and claim into it")
	registrationFlags(cmd, &reg)
	return cmd
}
