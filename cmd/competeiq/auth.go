package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/competeiq/api/internal/config"
	"github.com/competeiq/api/internal/model"
)

func newLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if password == "" {
				if password, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			resp, err := a.client.Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			return a.saveLogin(resp)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newRegisterCmd() *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if password == "" {
				if password, err = readPassword(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
					return err
				}
			}
			resp, err := a.client.Register(cmd.Context(), email, password, name)
			if err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}
			return a.saveLogin(resp)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when empty)")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if a.creds != nil && a.creds.Token != "" {
				if err := a.client.Logout(cmd.Context()); err != nil {
					a.logger.Warn("remote logout failed", "error", err)
				}
			}
			if err := config.ClearCredentials(a.dir); err != nil {
				return fmt.Errorf("failed to remove credentials: %w", err)
			}
			fmt.Fprintln(a.out, "Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := a.requireLogin(); err != nil {
				return err
			}
			user, err := a.client.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s <%s> (%s)\n", user.Name, user.Email, user.ID)
			return nil
		},
	}
}

func (a *app) saveLogin(resp *model.AuthResponse) error {
	creds := config.Credentials{
		Token:  resp.Token,
		UserID: resp.User.ID,
		Email:  resp.User.Email,
		Name:   resp.User.Name,
	}
	if err := config.SaveCredentials(a.dir, creds); err != nil {
		return err
	}
	a.creds = &creds
	fmt.Fprintf(a.out, "Logged in as %s <%s>.\n", creds.Name, creds.Email)
	return nil
}

func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "Password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
