package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/novelmaze/novelmaze/internal/repository"
	"github.com/novelmaze/novelmaze/internal/seed"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{repository.MigrateUp, repository.MigrateDown},
		RunE: func(_ *cobra.Command, args []string) error {
			return repository.RunMigrations(a.cfg.Database.Postgres.URL(), args[0], a.log.Component("migrate"))
		},
	}
}

func newSeedCommand(a *app) *cobra.Command {
	opts := seed.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo users, a novel and coins",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			deps, err := a.wire(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			res, err := seed.NewSeeder(deps.db, deps.game, a.log).Run(ctx, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "novel %s (%s)\nreader %s\nadmin %s\n",
				res.Novel.Slug, res.Novel.ID, res.Reader.ID, res.Admin.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.NovelTitle, "title", opts.NovelTitle, "demo novel title")
	cmd.Flags().Int64Var(&opts.StartingCoin, "coins", opts.StartingCoin, "coins granted to the demo reader")
	cmd.Flags().Int64Var(&opts.EpisodePrice, "price", opts.EpisodePrice, "price of each paid episode")
	return cmd
}

func newNormalizeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize",
		Short: "Recompute levels for every user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			deps, err := a.wire(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			changed, err := deps.game.NormalizeAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "normalized %d users\n", changed)
			return nil
		},
	}
}
