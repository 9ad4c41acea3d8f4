package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dukerupert/scoutcard/internal/model"
	"github.com/dukerupert/scoutcard/internal/websocket"
)

func NewCardsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cards",
		Short: "List and manage your cards",
	}
	cmd.AddCommand(newCardsListCommand(opts))
	cmd.AddCommand(newCardsActivateCommand(opts))
	cmd.AddCommand(newCardsGiftCommand(opts))
	cmd.AddCommand(newCardsCancelGiftCommand(opts))
	cmd.AddCommand(newCardsResendGiftCommand(opts))
	cmd.AddCommand(newCardsWatchCommand(opts))
	return cmd
}

func parseCardID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid card id %q", arg)
	}
	return id, nil
}

func newCardsListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show your active, unused and gifted cards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owned, err := opts.app.cards.ListOwnedCards(cmd.Context())
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), owned)
			}
			printOwned(cmd.OutOrStdout(), owned)
			return nil
		},
	}
}

func newCardsActivateCommand(opts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "activate <card-id>",
		Short: "Make an unused card your active card",
		Long: `Make an unused card your active card.

Your current active card, if any, is replaced and its remaining offers
are forfeited. You are asked to confirm unless --yes is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCardID(args[0])
			if err != nil {
				return err
			}
			conf, err := opts.app.cards.PrepareActivation(cmd.Context(), id)
			if err != nil {
				return err
			}

			if !yes {
				w := cmd.ErrOrStderr()
				fmt.Fprintf(w, "Activate card %s.\n", conf.Card.CardNumber)
				if conf.Replaces != nil {
					fmt.Fprintf(w, "This replaces card %s and forfeits its %d remaining offers.\n",
						conf.Replaces.CardNumber, conf.OffersRemaining)
				}
				answer, err := prompt(cmd, "Continue? [y/N]: ")
				if err != nil {
					return err
				}
				if !strings.EqualFold(strings.TrimSpace(answer), "y") {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}

			card, err := opts.app.cards.Activate(cmd.Context(), conf)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), card)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Card %s is now active.\n", card.CardNumber)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newCardsGiftCommand(opts *RootOptions) *cobra.Command {
	var req model.GiftRequest

	cmd := &cobra.Command{
		Use:   "gift <card-id>",
		Short: "Send an unused card to someone by email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCardID(args[0])
			if err != nil {
				return err
			}
			if err := opts.app.cards.Gift(cmd.Context(), id, req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Gift sent to %s.\n", req.RecipientEmail)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.RecipientEmail, "email", "", "recipient email")
	cmd.Flags().StringVar(&req.RecipientName, "name", "", "recipient name")
	cmd.Flags().StringVar(&req.GiftMessage, "message", "", "personal message")
	cmd.MarkFlagRequired("email")
	return cmd
}

func newCardsCancelGiftCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-gift <card-id>",
		Short: "Take back an unclaimed gift",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCardID(args[0])
			if err != nil {
				return err
			}
			if err := opts.app.cards.CancelGift(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Gift cancelled. The card is unused again.")
			return nil
		},
	}
}

func newCardsResendGiftCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resend-gift <card-id>",
		Short: "Email an unclaimed gift again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCardID(args[0])
			if err != nil {
				return err
			}
			if err := opts.app.cards.ResendGift(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Gift email resent.")
			return nil
		},
	}
}

func newCardsWatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print card changes as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := opts.app.cards.ListOwnedCards(cmd.Context()); err != nil {
				return err
			}
			return opts.app.cards.Watch(cmd.Context(), func(ev websocket.Event) {
				if opts.Format == "json" {
					writeJSON(cmd.OutOrStdout(), ev)
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s card #%d\n", ev.Type, ev.CardID)
				printOwned(cmd.OutOrStdout(), opts.app.cards.View())
			})
		},
	}
}
