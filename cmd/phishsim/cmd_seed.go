package main

import (
	"fmt"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/config"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/di"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/seed"
	"github.com/spf13/cobra"
)

func newSeedCmd(flags *di.PlayerFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load a content catalogue into the configured store",
		Long: `Load scenarios, levels and arcade emails from a YAML catalogue directly
into the store configured for the server. Levels that already have content
are skipped, so seeding is safe to repeat.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := seed.LoadFile(args[0])
			if err != nil {
				return err
			}

			cfg, err := config.Load(flags.ConfigFile)
			if err != nil {
				return err
			}
			container, err := di.BuildServerContainer(cfg)
			if err != nil {
				return err
			}
			return container.Invoke(func(seeder *seed.Seeder, st core.Store) error {
				defer st.Close()

				res, err := seeder.Apply(cmd.Context(), f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %d scenario(s), %d level(s) and %d email(s); skipped %d existing level(s).\n",
					res.ScenariosCreated, res.LevelsCreated, res.EmailsCreated, res.LevelsSkipped)
				return nil
			})
		},
	}
}
