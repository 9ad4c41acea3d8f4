package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dukerupert/scoutcard/internal/model"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// prompt reads one line from the command's input.
func prompt(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func printCard(w io.Writer, c model.Card) {
	fmt.Fprintf(w, "  #%-6d %-14s %-10s", c.ID, c.CardNumber, c.Status)
	switch {
	case c.Status == model.CardActive:
		fmt.Fprintf(w, " %d/%d offers used, expires %s", c.OffersUsed, c.TotalOffers, c.ExpiresAt.Format("2006-01-02"))
	case c.Status == model.CardGifted && c.GiftClaimedAt != nil:
		fmt.Fprintf(w, " claimed by %s", c.GiftedToEmail)
	case c.Status == model.CardGifted:
		fmt.Fprintf(w, " pending for %s", c.GiftedToEmail)
	}
	fmt.Fprintln(w)
}

func printOwned(w io.Writer, owned model.OwnedCards) {
	fmt.Fprintf(w, "%d cards\n", owned.TotalCards)
	fmt.Fprintln(w, "Active:")
	if owned.ActiveCard == nil {
		fmt.Fprintln(w, "  (none)")
	} else {
		printCard(w, *owned.ActiveCard)
	}
	fmt.Fprintln(w, "Unused:")
	if len(owned.UnusedCards) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, c := range owned.UnusedCards {
		printCard(w, c)
	}
	fmt.Fprintln(w, "Gifted:")
	if len(owned.GiftedCards) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, c := range owned.GiftedCards {
		printCard(w, c)
	}
}
