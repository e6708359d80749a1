package cli

import (
	"fmt"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage budget owners",
}

var userAddCmd = &cobra.Command{
	Use:   "add <user-id>",
	Short: "Create or update a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)

	userAddCmd.Flags().StringP("email", "e", "", "Alert email address")
	userAddCmd.Flags().String("first-name", "", "First name")
	userAddCmd.Flags().String("last-name", "", "Last name")
	userAddCmd.Flags().Bool("inactive", false, "Stop sending this user's alerts by email")
	_ = userAddCmd.MarkFlagRequired("email")
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	email, _ := cmd.Flags().GetString("email")
	first, _ := cmd.Flags().GetString("first-name")
	last, _ := cmd.Flags().GetString("last-name")
	inactive, _ := cmd.Flags().GetBool("inactive")

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	user := &model.User{
		ID:        args[0],
		Email:     email,
		FirstName: first,
		LastName:  last,
		IsActive:  !inactive,
	}
	if err := store.CreateUser(cmd.Context(), user); err != nil {
		return fmt.Errorf("add user: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "User %s saved (%s)\n", user.ID, user.Email)
	return nil
}
