package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matbeedotcom/media-transparency-sub001/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := db.Migrate(cmd.Context(), env.pool); err != nil {
			return err
		}
		zap.L().Info("schema applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
