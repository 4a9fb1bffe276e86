package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/startopia/startopia/internal/identity"
	"github.com/startopia/startopia/internal/users"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var (
	userName  string
	userEmail string
	tokenTTL  time.Duration
)

var userLoginCmd = &cobra.Command{
	Use:   "login [external-id]",
	Short: "Record a login for an identity-provider subject",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		u, err := users.NewService(db).Login(cmd.Context(), args[0], userName, userEmail)
		if err != nil {
			return err
		}
		fmt.Printf("User %s: %s <%s>\n", u.ExternalID, u.Name, u.Email)
		return nil
	},
}

var userTokenCmd = &cobra.Command{
	Use:   "token [external-id]",
	Short: "Issue a bearer token for local testing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := newValidator()
		if v == nil {
			return fmt.Errorf("%s is not set", cfg.Auth.SecretEnv)
		}
		token, err := v.Sign(identity.Principal{UserID: args[0], Name: userName, Email: userEmail}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{userLoginCmd, userTokenCmd} {
		c.Flags().StringVar(&userName, "name", "", "Display name")
		c.Flags().StringVar(&userEmail, "email", "", "Email address")
	}
	userTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")

	userCmd.AddCommand(userLoginCmd)
	userCmd.AddCommand(userTokenCmd)
}
