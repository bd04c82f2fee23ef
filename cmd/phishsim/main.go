package main

import (
	"fmt"
	"os"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/di"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	flags := &di.PlayerFlags{}

	rootCmd := &cobra.Command{
		Use:   "phishsim",
		Short: "Phishing-awareness inbox simulator",
		Long: `phishsim plays the phishing-awareness training game in the terminal.

Read each email, inspect its links and attachments, and decide whether it is
phishing or safe. Simulation levels may deliver new mail while you work.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&flags.ConfigFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&flags.BaseURL, "api", "", "Content API base URL (overrides api.base_url)")
	rootCmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")

	rootCmd.AddCommand(
		newLoginCmd(flags),
		newRegisterCmd(flags),
		newLogoutCmd(flags),
		newScenariosCmd(flags),
		newProfileCmd(flags),
		newLevelsCmd(flags),
		newPlayCmd(flags),
		newSeedCmd(flags),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
