/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sweetshop/apiserver/config"
	"github.com/sweetshop/apiserver/internal/db"
	"github.com/sweetshop/apiserver/internal/services"
	"github.com/sweetshop/apiserver/internal/store"
)

// adminCmd groups account administration commands.
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage admin accounts",
}

var adminPromoteCmd = &cobra.Command{
	Use:   "promote <username>",
	Short: "Grant the admin capability to a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAdmin(cmd, args[0], true)
	},
}

var adminDemoteCmd = &cobra.Command{
	Use:   "demote <username>",
	Short: "Revoke the admin capability from a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAdmin(cmd, args[0], false)
	},
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminPromoteCmd, adminDemoteCmd)
}

// setAdmin takes effect on the user's next login; tokens already issued keep
// their claims until they expire.
func setAdmin(cmd *cobra.Command, username string, isAdmin bool) error {
	cfg := config.LoadConfig()
	conn, err := db.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	users := services.NewUserService(store.NewUserRepository(conn))
	if err := users.SetAdmin(cmd.Context(), username, isAdmin); err != nil {
		return fmt.Errorf("update %s: %w", username, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: is_admin=%t\n", username, isAdmin)
	return nil
}
