/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bookstore/apiserver/internal/auth"
	"github.com/bookstore/apiserver/internal/db"
	"github.com/bookstore/apiserver/internal/services"
	"github.com/bookstore/apiserver/internal/store"
	"github.com/bookstore/apiserver/types"
)

var (
	adminName     string
	adminEmail    string
	adminPassword string
)

// adminCmd groups operator-only account commands. Admin accounts cannot be
// created through the public API.
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage administrator accounts",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new admin account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUserService(cmd, func(users *services.UserService) error {
			user, err := users.ProvisionAdmin(cmd.Context(), adminName, adminEmail, adminPassword)
			if err != nil {
				return describeAdminError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %d <%s>\n", user.ID, user.Email)
			return nil
		})
	},
}

var adminPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Grant the admin role to an existing account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRole(cmd, types.RoleAdmin)
	},
}

var adminDemoteCmd = &cobra.Command{
	Use:   "demote",
	Short: "Revoke the admin role from an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRole(cmd, types.RoleStandard)
	},
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminCreateCmd, adminPromoteCmd, adminDemoteCmd)

	adminCmd.PersistentFlags().StringVar(&adminEmail, "email", "", "account email")
	_ = adminCmd.MarkPersistentFlagRequired("email")

	adminCreateCmd.Flags().StringVar(&adminName, "name", "", "display name")
	adminCreateCmd.Flags().StringVar(&adminPassword, "password", "", "initial password, at least 8 characters")
	_ = adminCreateCmd.MarkFlagRequired("name")
	_ = adminCreateCmd.MarkFlagRequired("password")
}

func setRole(cmd *cobra.Command, role types.Role) error {
	return withUserService(cmd, func(users *services.UserService) error {
		user, err := users.SetRole(cmd.Context(), adminEmail, role)
		if err != nil {
			return describeAdminError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %d <%s> is now %s\n", user.ID, user.Email, user.Role)
		return nil
	})
}

func withUserService(cmd *cobra.Command, fn func(*services.UserService) error) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	conn, err := db.Open(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Msg("closing database")
		}
	}()

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	return fn(services.NewUserService(store.NewUserRepository(conn), tokens))
}

func describeAdminError(err error) error {
	if verr, ok := services.IsValidationError(err); ok {
		return fmt.Errorf("invalid input: %v", verr.Messages)
	}
	switch {
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("an account with email %q already exists", adminEmail)
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("no account with email %q", adminEmail)
	}
	return err
}
