package main

import (
	"fmt"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/config"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/di"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/inbox"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/telemetry"
	"github.com/spf13/cobra"
)

func newPlayCmd(flags *di.PlayerFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a level in the terminal",
		Long: `Play an arcade round, a simulation level or a player-made level.

Examples:
  phishsim play --mode arcade
  phishsim play --mode simulation --scenario 1 --level 3
  phishsim play --mode pvp --pvp-level 12`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rawMode, _ := cmd.Flags().GetString("mode")
			scenarioID, _ := cmd.Flags().GetInt64("scenario")
			level, _ := cmd.Flags().GetInt("level")
			pvpLevel, _ := cmd.Flags().GetInt64("pvp-level")

			mode, err := core.ParseMode(rawMode)
			if err != nil {
				return fmt.Errorf("unknown mode %q: use arcade, simulation or pvp", rawMode)
			}

			container, err := di.BuildPlayerContainer(flags)
			if err != nil {
				return err
			}
			return container.Invoke(func(ctrl *inbox.Controller, reporter *telemetry.Reporter, apiCfg config.APIConfig) error {
				s, err := loadSession(apiCfg.SessionFile)
				if err != nil {
					return err
				}

				defer reporter.Close()
				defer ctrl.Exit()

				p := newPlayer(ctrl, cmd.OutOrStdout())
				ctx := cmd.Context()
				if err := p.start(ctx, inbox.RunParams{
					Mode:       mode,
					ScenarioID: scenarioID,
					Level:      level,
					PvpLevelID: pvpLevel,
					Creds:      s.Credentials(),
				}); err != nil {
					return err
				}
				p.printf("Type `help` for commands.\n")
				return p.loop(ctx, cmd.InOrStdin())
			})
		},
	}
	cmd.Flags().String("mode", string(core.ModeArcade), "Play mode: arcade, simulation or pvp")
	cmd.Flags().Int64("scenario", 0, "Scenario id (simulation)")
	cmd.Flags().Int("level", 0, "Level number (simulation)")
	cmd.Flags().Int64("pvp-level", 0, "Player-made level id (pvp)")
	return cmd
}
