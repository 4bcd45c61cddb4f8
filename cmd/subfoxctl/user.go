package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/SubFox/app/repository"
	"github.com/ManuelReschke/SubFox/internal/pkg/auth"
	"github.com/ManuelReschke/SubFox/internal/pkg/database"
	"github.com/ManuelReschke/SubFox/internal/pkg/env"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(userCreateCmd())
	return cmd
}

func userCreateCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		Long: `Create a user account with the same password policy as the
registration endpoint. The password may also be passed in SUBFOX_USER_PASSWORD
to keep it out of the shell history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = env.GetEnv("SUBFOX_USER_PASSWORD", "")
			}

			db, err := database.Open(database.DSN(), 1)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}

			svc, err := auth.NewService(repository.NewUserRepository(db), env.GetEnvInt("BCRYPT_COST", 0))
			if err != nil {
				return err
			}

			res, err := svc.Register(context.Background(), email, password)
			if err != nil {
				return err
			}
			if !res.Success {
				return errors.New(res.Message)
			}
			cmd.Printf("Created user %d <%s>\n", res.User.ID, res.User.Email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "email address of the account")
	cmd.Flags().StringVarP(&password, "password", "p", "", "initial password")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
