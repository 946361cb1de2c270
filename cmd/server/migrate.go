package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/DoyleJ11/pokerboard-backend/internal/store"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			st, err := store.Open(a.cfg.Store(), a.log.Named("store"))
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, st.Close()) }()

			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
			a.log.Info("schema up to date")
			return nil
		},
	}
}
