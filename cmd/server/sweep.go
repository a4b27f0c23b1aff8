package main

import (
	"fmt"

	"github.com/ashureev/anti-todo/internal/store"
	"github.com/ashureev/anti-todo/internal/sweeper"
	"github.com/spf13/cobra"
)

// sweepCmd removes stale devices once and exits.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete boards of devices unseen for longer than BOARD_TTL, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}

		repo, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return err
		}
		defer repo.Close()

		removed := sweeper.New(repo, cfg.Sweep.Interval, cfg.Sweep.BoardTTL, nil).Sweep(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale device(s)\n", removed)
		return nil
	},
}
