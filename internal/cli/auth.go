package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/scoutcard/internal/model"
)

func NewLoginCommand(opts *RootOptions) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store credentials for the scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = prompt(cmd, "Password: "); err != nil {
					return err
				}
			}
			user, err := opts.app.auth.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), user)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s %s (%s)\n", user.FirstName, user.LastName, user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when empty)")
	cmd.MarkFlagRequired("email")
	return cmd
}

func registrationFlags(cmd *cobra.Command, reg *model.Registration) {
	cmd.Flags().StringVar(&reg.Email, "email", "", "account email")
	cmd.Flags().StringVar(&reg.Password, "password", "", "password")
	cmd.Flags().StringVar(&reg.PasswordConfirm, "confirm-password", "", "password again")
	cmd.Flags().StringVar(&reg.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&reg.LastName, "last-name", "", "last name")
}

func NewRegisterCommand(opts *RootOptions) *cobra.Command {
	var reg model.Registration

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := opts.app.auth.Register(cmd.Context(), reg)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), user)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s. Run cardctl login to sign in.\n", user.Email)
			return nil
		},
	}
	registrationFlags(cmd, &reg)
	return cmd
}

func NewResetPasswordCommand(opts *RootOptions) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Email a password reset link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.app.auth.RequestPasswordReset(cmd.Context(), email); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "If an account exists for that address, a reset link is on its way.")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.MarkFlagRequired("email")
	return cmd
}

func NewLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials for the scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.app.auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

type scopeStatus struct {
	Scope         string     `json:"scope"`
	AccessExpires *time.Time `json:"accessExpires,omitempty"`
	Current       bool       `json:"current"`
}

func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List signed-in scopes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scopes, err := opts.app.store.Scopes(cmd.Context())
			if err != nil {
				return err
			}
			out := make([]scopeStatus, 0, len(scopes))
			for name, exp := range scopes {
				out = append(out, scopeStatus{Scope: name, AccessExpires: exp, Current: name == opts.app.gw.Scope()})
			}
			sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })

			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			if len(out) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			for _, s := range out {
				marker := " "
				if s.Current {
					marker = "*"
				}
				exp := "unknown expiry"
				if s.AccessExpires != nil {
					if time.Now().After(*s.AccessExpires) {
						exp = "access expired, will renew on next call"
					} else {
						exp = "access valid until " + s.AccessExpires.Local().Format(time.RFC3339)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s  %s\n", marker, s.Scope, exp)
			}
			return nil
		},
	}
}
