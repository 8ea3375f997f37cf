package main

import (
	"fmt"

	"github.com/metalagman/taskflow/internal/db"
	"github.com/metalagman/taskflow/internal/lockfile"
	"github.com/spf13/cobra"
)

func migrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			lock, err := lockfile.Acquire(lockDir(opts.cfg), "migrate")
			if err != nil {
				return err
			}
			defer func() { _ = lock.Release() }()

			database, err := openDB(opts.cfg.DB.Path)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()
			version, err := db.Version(database)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "database %s at schema version %d\n", opts.cfg.DB.Path, version)
			return nil
		},
	}
}
