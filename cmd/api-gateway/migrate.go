package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sustainability-assessment-api/migrations"
	"github.com/noah-isme/sustainability-assessment-api/pkg/database"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := database.NewPostgres(a.cfg.Database)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()

			applied, err := migrations.Apply(cmd.Context(), db, a.logger)
			if err != nil {
				return err
			}
			a.logger.Info("migrations complete", zap.Strings("applied", applied))
			return nil
		},
	}
}
