package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/contentapi"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/config"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/di"
	"github.com/spf13/cobra"
)

type authFunc func(ctx context.Context, c *contentapi.Client, username, password string) (*contentapi.Session, error)

func newLoginCmd(flags *di.PlayerFlags) *cobra.Command {
	return newAuthCmd(flags, "login", "Log in and store the session token",
		func(ctx context.Context, c *contentapi.Client, u, p string) (*contentapi.Session, error) {
			return c.Login(ctx, u, p)
		})
}

func newRegisterCmd(flags *di.PlayerFlags) *cobra.Command {
	return newAuthCmd(flags, "register", "Create an account and store the session token",
		func(ctx context.Context, c *contentapi.Client, u, p string) (*contentapi.Session, error) {
			return c.Register(ctx, u, p)
		})
}

func newAuthCmd(flags *di.PlayerFlags, use, short string, do authFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <username>",
		Short: short,
		Long: short + `.

The password is read from --password, or from the first line of stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				p, err := readLine(cmd.InOrStdin(), cmd.OutOrStdout(), "Password: ")
				if err != nil {
					return err
				}
				password = p
			}

			container, err := di.BuildPlayerContainer(flags)
			if err != nil {
				return err
			}
			return container.Invoke(func(client *contentapi.Client, apiCfg config.APIConfig) error {
				s, err := do(cmd.Context(), client, args[0], password)
				if err != nil {
					return err
				}
				if err := saveSession(apiCfg.SessionFile, s); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", s.Username)
				return nil
			})
		},
	}
	cmd.Flags().String("password", "", "Account password")
	return cmd
}

func newLogoutCmd(flags *di.PlayerFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := di.BuildPlayerContainer(flags)
			if err != nil {
				return err
			}
			return container.Invoke(func(apiCfg config.APIConfig) error {
				if err := clearSession(apiCfg.SessionFile); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}

func readLine(in io.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
