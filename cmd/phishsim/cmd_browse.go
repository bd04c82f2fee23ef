package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/contentapi"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/config"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/di"
	"github.com/spf13/cobra"
)

func newScenariosCmd(flags *di.PlayerFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the simulation scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := di.BuildPlayerContainer(flags)
			if err != nil {
				return err
			}
			return container.Invoke(func(client *contentapi.Client, apiCfg config.APIConfig) error {
				s, err := loadSession(apiCfg.SessionFile)
				if err != nil {
					return err
				}
				scenarios, err := client.FetchScenarios(cmd.Context(), s.Credentials())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-6s %-28s %-20s %s\n", "ID", "COMPANY", "SECTOR", "ROLE")
				for _, sc := range scenarios {
					fmt.Fprintf(out, "%-6d %-28s %-20s %s\n", sc.ID, sc.CompanyName, sc.Sector, sc.RoleTitle)
				}
				return nil
			})
		},
	}
}

func newProfileCmd(flags *di.PlayerFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show your training metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			container, err := di.BuildPlayerContainer(flags)
			if err != nil {
				return err
			}
			return container.Invoke(func(client *contentapi.Client, apiCfg config.APIConfig) error {
				s, err := loadSession(apiCfg.SessionFile)
				if err != nil {
					return err
				}
				m, err := client.FetchProfileMetrics(cmd.Context(), s.Credentials(), s.Username)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if jsonOut {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(m)
				}

				fmt.Fprintf(out, "Player:                   %s\n", m.UserID)
				fmt.Fprintf(out, "Completed runs:           %d\n", m.Overall.TotalRuns)
				fmt.Fprintf(out, "Emails judged:            %d\n", m.Overall.TotalAttempts)
				fmt.Fprintf(out, "Accuracy:                 %s\n", percent(m.Overall.Accuracy))
				fmt.Fprintf(out, "Clicked a link first:     %s\n", percent(m.Overall.PctLinkClickBeforeDecision))
				fmt.Fprintf(out, "Opened attachment first:  %s\n", percent(m.Overall.PctAttachmentOpenBeforeDecision))

				if len(m.ByLevel) > 0 {
					fmt.Fprintln(out)
					fmt.Fprintf(out, "%-6s %6s %9s %9s\n", "LEVEL", "RUNS", "ATTEMPTS", "ACCURACY")
					for _, l := range m.ByLevel {
						fmt.Fprintf(out, "%-6d %6d %9d %9s\n", l.LevelNumber, l.Runs, l.Attempts, percent(l.Accuracy))
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func newLevelsCmd(flags *di.PlayerFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "levels",
		Short: "List player-made levels you can play",
		RunE: func(cmd *cobra.Command, args []string) error {
			mine, _ := cmd.Flags().GetBool("mine")

			container, err := di.BuildPlayerContainer(flags)
			if err != nil {
				return err
			}
			return container.Invoke(func(client *contentapi.Client, apiCfg config.APIConfig) error {
				s, err := loadSession(apiCfg.SessionFile)
				if err != nil {
					return err
				}
				list := client.ListPostedPvpLevels
				if mine {
					list = client.ListMyPvpLevels
				}
				levels, err := list(cmd.Context(), s.Credentials())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-6s %-32s %-10s %s\n", "ID", "TITLE", "VISIBILITY", "COMPANY")
				for _, l := range levels {
					fmt.Fprintf(out, "%-6d %-32s %-10s %s\n", l.ID, l.Title, l.Visibility, l.CompanyName)
				}
				return nil
			})
		},
	}
	cmd.Flags().Bool("mine", false, "List levels you authored instead of posted ones")
	return cmd
}

func percent(ratio float64) string {
	return strings.TrimSuffix(fmt.Sprintf("%.1f", ratio*100), ".0") + "%"
}
