package main

import (
	"github.com/spf13/cobra"

	"github.com/lucidiacare/lucidia/storage/database"
)

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose migration command (up, up-to, down, down-to, redo, reset, status, version, create, fix)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.PrepareGoose(cli.conf); err != nil {
				return err
			}
			return gooseRunFunc(cmd.Context(), args[0], cli.db.DB, database.MigrationsDir(), args[1:]...)
		},
	}
}
