package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/photofactory/pkg/types"
)

func (c *cli) newLoginCmd() *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in as a technician, creating the account on first use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return types.ValidationError("email", "An email address is required (--email).")
			}
			return c.withApp(func(a *app) error {
				user, err := a.auth.SignIn(cmd.Context(), email, name)
				if err != nil {
					return err
				}
				return c.emit(user, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Signed in as %s (user %d)\n", displayName(user), user.UserID)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "technician email address (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name used when the account is created")
	return cmd
}

func (c *cli) newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out the current technician",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error {
				if err := a.auth.SignOut(cmd.Context()); err != nil {
					return err
				}
				return c.emit(map[string]bool{"signed_out": true}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, "Signed out")
					return err
				})
			})
		},
	}
}

func (c *cli) newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in technician",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error {
				user, err := a.auth.Require(cmd.Context())
				if err != nil {
					return err
				}
				return c.emit(user, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s <%s> (user %d)\n", displayName(user), user.Email, user.UserID)
					return err
				})
			})
		},
	}
}

func displayName(u *types.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}
