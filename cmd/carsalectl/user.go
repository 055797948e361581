package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/daya-auto/carsale/internal/auth"
	"github.com/daya-auto/carsale/internal/rbac"
)

func newUserCmd(e env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var email, password, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account, bypassing the sign-up form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}
			cfg, err := e.config()
			if err != nil {
				return err
			}
			pool, err := e.database(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := auth.NewService(auth.NewRepository(pool), rbac.NewAdminPolicy(cfg.AdminEmails))
			user, err := svc.CreateUser(cmd.Context(), email, name, password)
			if err != nil {
				return err
			}
			cmd.Printf("created user %d <%s> role=%s\n", user.ID, user.Email, svc.RoleFor(user.Email))
			return nil
		},
	}
	create.Flags().StringVar(&email, "email", "", "login email")
	create.Flags().StringVar(&password, "password", "", "initial password, at least 6 characters")
	create.Flags().StringVar(&name, "name", "", "display name")
	cmd.AddCommand(create)
	return cmd
}
