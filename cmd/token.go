package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceguard/internal/config"
	"github.com/kozaktomas/faceguard/internal/web/middleware"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API token for an identity",
	Long: `Mint a signed API token for the given identity ID.
Useful for granting the admin identity access without going through the
recognition endpoint.`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().String("identity", "", "Identity ID to issue the token for")
}

func runToken(cmd *cobra.Command, args []string) error {
	identityID := mustGetString(cmd, "identity")
	if identityID == "" {
		return errors.New("--identity is required")
	}

	cfg := config.Load()
	fmt.Println(middleware.NewTokenManager(cfg.Web.SessionSecret).Issue(identityID))
	return nil
}
