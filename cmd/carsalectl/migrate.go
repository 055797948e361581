package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/daya-auto/carsale/internal/platform/db"
	"github.com/daya-auto/carsale/migrations"
)

func newMigrateCmd(e env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	open := func() (*db.Migrator, error) {
		cfg, err := e.config()
		if err != nil {
			return nil, err
		}
		return db.NewMigrator(migrations.FS, ".", cfg.PGDSN, e.logger(cfg))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()
			return m.Up()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations, one step by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive number, got %q", args[0])
				}
				steps = n
			}
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()
			return m.Down(steps)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			if dirty {
				cmd.Printf("version %d (dirty)\n", version)
				return nil
			}
			cmd.Printf("version %d\n", version)
			return nil
		},
	})
	return cmd
}
